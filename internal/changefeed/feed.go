package changefeed

import "context"

// Collections the console watches for changes.
const (
	CollectionLeads        = "leads"
	CollectionAppointments = "appointments"
	CollectionPayments     = "payments"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes one mutation on a watched collection. Delivery may be out
// of order and events may be coalesced; consumers must treat an event as
// "something changed", not as a delta to apply.
type Event struct {
	Collection string `json:"collection"`
	Op         Op     `json:"op"`
	RecordID   string `json:"record_id"`
}

// Topic is the Kafka topic carrying change events for a collection.
func Topic(collection string) string {
	return "frontdesk." + collection + ".changed.v1"
}

type Handler func(ctx context.Context, evt Event)

type Unsubscribe func()

// Feed is a generic change-notification primitive. The Kafka implementation
// is the production path; polling or log tailing would satisfy the same
// contract.
type Feed interface {
	Subscribe(collection string, handler Handler) (Unsubscribe, error)
}

// NopFeed never delivers events. It stands in when no broker is configured;
// consumers then rely entirely on their periodic reconciliation.
type NopFeed struct{}

func (NopFeed) Subscribe(string, Handler) (Unsubscribe, error) {
	return func() {}, nil
}
