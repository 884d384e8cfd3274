package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/frontdesk/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// KafkaFeed subscribes to per-collection change topics. Each subscription
// owns its own reader goroutine; Unsubscribe stops the goroutine and closes
// the reader.
type KafkaFeed struct {
	brokers []string
	groupID string
	logger  *slog.Logger
}

type KafkaConfig struct {
	Brokers string
	GroupID string
}

func NewKafkaFeed(logger *slog.Logger, cfg KafkaConfig) (*KafkaFeed, error) {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "frontdesk"
	}
	return &KafkaFeed{brokers: brokers, groupID: groupID, logger: logger}, nil
}

func (f *KafkaFeed) Subscribe(collection string, handler Handler) (Unsubscribe, error) {
	if collection == "" {
		return nil, errors.New("collection is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  f.brokers,
		GroupID:  f.groupID + "." + collection,
		Topic:    Topic(collection),
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.consume(ctx, reader, collection, handler)
	}()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			cancel()
			_ = reader.Close()
			<-done
		})
	}
	return unsub, nil
}

func (f *KafkaFeed) consume(ctx context.Context, reader *kafka.Reader, collection string, handler Handler) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error("changefeed read error", "collection", collection, "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		msgCtx := kafkax.ExtractTraceContext(ctx, msg)
		spanCtx, span := otel.Tracer("changefeed").Start(msgCtx, "changefeed.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		var evt Event
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			// Malformed payloads still signal that the collection changed.
			f.logger.Warn("malformed change event", "collection", collection, "err", err)
			evt = Event{Collection: collection}
		}
		if evt.Collection == "" {
			evt.Collection = collection
		}

		handler(spanCtx, evt)
		span.End()
	}
}
