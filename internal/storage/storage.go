package storage

import (
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/frontdesk/internal/changefeed"
	"github.com/md-rashed-zaman/frontdesk/internal/outbox"
)

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// changeEvent builds the outbox event announcing one mutation. It rides in
// the mutation's transaction so the feed never reports phantom writes.
func changeEvent(collection string, op changefeed.Op, recordID string) (outbox.Event, error) {
	payload, err := json.Marshal(changefeed.Event{
		Collection: collection,
		Op:         op,
		RecordID:   recordID,
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: collection,
		AggregateID:   recordID,
		EventType:     changefeed.Topic(collection),
		Payload:       payload,
	}, nil
}
