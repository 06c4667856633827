package submit

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var keyNamespace = uuid.MustParse("6f1c9a52-3a0e-4b8e-9a43-0f8f2d1c7e55")

// Key derives a stable idempotency key from the semantic parts of a
// request. The same parts always give the same key.
func Key(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(kind)
	for _, p := range parts {
		b.WriteByte(0x1f)
		b.WriteString(p)
	}
	return kind + ":" + uuid.NewSHA1(keyNamespace, []byte(b.String())).String()
}

// NormalizeText folds free text typed by an operator so that visually
// equal input yields equal keys: NFC form, collapsed whitespace.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// NewNonce returns a random token identifying one user action.
func NewNonce() string {
	return uuid.NewString()
}
