package domain

import "encoding/json"

// Entity is anything kept in a shared collection.
type Entity interface {
	EntityID() string
}

// EntityType names a shared collection.
type EntityType string

const (
	EntityOrder            EntityType = "order"
	EntityCashSession      EntityType = "cash_session"
	EntityCoworkingSession EntityType = "coworking_session"
	EntityCustomer         EntityType = "customer"
	EntityProduct          EntityType = "product"
	EntityWithdrawal       EntityType = "withdrawal"
	EntityExpense          EntityType = "expense"
)

// EntityTypes lists every synchronized collection in bulk-load order.
var EntityTypes = []EntityType{
	EntityProduct,
	EntityCustomer,
	EntityCashSession,
	EntityWithdrawal,
	EntityExpense,
	EntityCoworkingSession,
	EntityOrder,
}

// Plural is the collection name used by list endpoints and push event names.
func (e EntityType) Plural() string {
	return string(e) + "s"
}

func (e EntityType) Valid() bool {
	for _, t := range EntityTypes {
		if t == e {
			return true
		}
	}
	return false
}

// ParseEntityType accepts the singular or plural collection name.
func ParseEntityType(name string) (EntityType, bool) {
	for _, t := range EntityTypes {
		if name == string(t) || name == t.Plural() {
			return t, true
		}
	}
	return "", false
}

type EventAction string

const (
	EventCreate EventAction = "create"
	EventUpdate EventAction = "update"
	EventDelete EventAction = "delete"
)

func (a EventAction) Valid() bool {
	return a == EventCreate || a == EventUpdate || a == EventDelete
}

// Event is the canonical shape of a change notification after
// normalization at the channel boundary.
type Event struct {
	Entity  EntityType      `json:"entity"`
	Action  EventAction     `json:"action"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
