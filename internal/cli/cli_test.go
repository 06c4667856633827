package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "quote", "expected"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "quote", "--minutes", "10", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestQuote(t *testing.T) {
	tests := []struct {
		args     []string
		billable int
		amount   string
	}{
		{[]string{"--minutes", "45"}, 45, "58.00"},
		{[]string{"--minutes", "95"}, 90, "76.00"},
		{[]string{"--minutes", "200"}, 200, "180.00"},
		{[]string{"--minutes", "200", "--rates", "in-session"}, 200, "172.00"},
	}
	for _, tt := range tests {
		t.Run(tt.args[1], func(t *testing.T) {
			out, err := execute(t, append([]string{"quote", "--format", "json"}, tt.args...)...)
			require.NoError(t, err)

			var res quoteResult
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, tt.billable, res.BillableMinutes)
			assert.Equal(t, tt.amount, res.Amount)
		})
	}
}

func TestQuote_Text(t *testing.T) {
	out, err := execute(t, "quote", "--minutes", "60")
	require.NoError(t, err)
	assert.Equal(t, "general: 60 min elapsed, 60 billable, 58.00\n", out)
}

func TestQuote_Rejections(t *testing.T) {
	_, err := execute(t, "quote")
	assert.Error(t, err)

	_, err = execute(t, "quote", "--minutes", "10", "--rates", "night")
	assert.Error(t, err)

	_, err = execute(t, "quote", "--minutes", "-5")
	assert.Error(t, err)
}

func TestExpected(t *testing.T) {
	out, err := execute(t, "expected", "--start", "300", "--sales", "500", "--expenses", "120", "--withdrawals", "50")
	require.NoError(t, err)
	assert.Equal(t, "expected 630.00\n", out)

	out, err = execute(t, "expected", "--format", "json",
		"--start", "300", "--sales", "500", "--expenses", "120", "--withdrawals", "50", "--counted", "600")
	require.NoError(t, err)
	var res expectedResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "630.00", res.ExpectedCash)
	assert.Equal(t, "-30.00", res.Difference)
}

func TestExpected_BadAmount(t *testing.T) {
	_, err := execute(t, "expected", "--sales", "lots")
	assert.ErrorContains(t, err, "--sales")
}
