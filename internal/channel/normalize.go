package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_pos/domain"
)

var (
	ErrUnknownEvent  = errors.New("unknown event name")
	ErrInvalidAction = errors.New("invalid event action")
	ErrMissingID     = errors.New("event has no entity id")
)

// Normalize turns one push delivery into the canonical event shape. The
// event name selects the collection. The body may wrap the entity under
// its singular or plural name, in snake or camel case:
//
//	{"type":"update","cash_session":{"id":"cs-1",...}}
//	{"type":"update","cashSessions":{"id":"cs-1",...}}
//
// or carry the entity fields next to the action:
//
//	{"type":"delete","id":42}
func Normalize(eventName string, raw []byte) (domain.Event, error) {
	entity, ok := domain.ParseEntityType(eventName)
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, eventName)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.Event{}, fmt.Errorf("decode %s event: %w", eventName, err)
	}

	action, err := readAction(fields)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s event: %w", eventName, err)
	}

	payload, ok := unwrap(entity, fields)
	if !ok {
		delete(fields, "type")
		delete(fields, "action")
		payload, err = json.Marshal(fields)
		if err != nil {
			return domain.Event{}, fmt.Errorf("encode %s payload: %w", eventName, err)
		}
	}

	id, err := readID(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s event: %w", eventName, err)
	}

	// The store decodes payload ids as strings.
	if action != domain.EventDelete {
		payload, err = withStringID(payload, id)
		if err != nil {
			return domain.Event{}, fmt.Errorf("%s event: %w", eventName, err)
		}
	}

	return domain.Event{Entity: entity, Action: action, ID: id, Payload: payload}, nil
}

func readAction(fields map[string]json.RawMessage) (domain.EventAction, error) {
	raw, ok := fields["type"]
	if !ok {
		raw, ok = fields["action"]
	}
	if !ok {
		return "", fmt.Errorf("%w: missing", ErrInvalidAction)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAction, raw)
	}
	action := domain.EventAction(strings.ToLower(s))
	if !action.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return action, nil
}

// unwrap returns the object stored under any accepted spelling of the
// entity name.
func unwrap(entity domain.EntityType, fields map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, name := range wrapperNames(entity) {
		v, ok := fields[name]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) > 0 && v[0] == '{' {
			return v, true
		}
	}
	return nil, false
}

func wrapperNames(entity domain.EntityType) []string {
	singular := string(entity)
	plural := entity.Plural()
	names := []string{singular, plural}
	if c := camel(singular); c != singular {
		names = append(names, c, camel(plural))
	}
	return names
}

func camel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// readID accepts string and numeric ids.
func readID(payload json.RawMessage) (string, error) {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	if len(head.ID) == 0 || string(head.ID) == "null" {
		return "", ErrMissingID
	}

	var s string
	if err := json.Unmarshal(head.ID, &s); err == nil {
		if s == "" {
			return "", ErrMissingID
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(head.ID, &n); err != nil {
		return "", fmt.Errorf("%w: unsupported id %s", ErrMissingID, head.ID)
	}
	return n.String(), nil
}

func withStringID(payload json.RawMessage, id string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	quoted, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(fields["id"], quoted) {
		return payload, nil
	}
	fields["id"] = quoted
	return json.Marshal(fields)
}
