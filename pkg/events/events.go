// Package events publishes band changes and price refreshes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/segmentio/kafka-go"

	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/types"
)

// Kind identifies an event. It is also the Kafka message key.
type Kind string

const (
	KindBandChange  Kind = "band_change"
	KindPriceUpdate Kind = "price_update"
	KindSpotSlot    Kind = "spot_slot"
)

// Event is a published notification. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind   Kind      `json:"kind"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`

	Band     *types.BandState `json:"band,omitempty"`
	Averages *types.Averages  `json:"averages,omitempty"`
	Zone     types.Zone       `json:"zone,omitempty"`
	National *types.SpotPrice `json:"national,omitempty"`
	Zonal    *types.SpotPrice `json:"zonal,omitempty"`
}

// Publisher delivers events. Publish errors are reported to the caller, which
// logs them and carries on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Configured registers the kafka flags. Without brokers events are only
// logged.
func Configured() Publisher {
	brokers := lflag.String("kafka-brokers", "", "Comma separated Kafka brokers for events (empty logs events instead)")
	topic := lflag.String("kafka-topic", "pungrid.events", "Kafka topic for events")

	var p struct{ Publisher }
	p.Publisher = LogPublisher{}

	lflag.Do(func() {
		var list []string
		for _, b := range strings.Split(*brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				list = append(list, b)
			}
		}
		if len(list) == 0 {
			return
		}
		if *topic == "" {
			panic("kafka-topic is required when kafka-brokers is set")
		}
		p.Publisher = NewKafkaPublisher(list, *topic)
	})
	return &p
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by their kind.
type KafkaPublisher struct {
	writer messageWriter

	closeOnce sync.Once
	closeErr  error
}

// NewKafkaPublisher returns a synchronous publisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish implements Publisher.
func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Kind),
		Value: value,
		Time:  e.Time,
	})
	if err != nil {
		return fmt.Errorf("failed to write %s event: %w", e.Kind, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "published event", slog.String("kind", string(e.Kind)))
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error {
	k.closeOnce.Do(func() {
		k.closeErr = k.writer.Close()
	})
	return k.closeErr
}

// LogPublisher logs events at info level.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(ctx context.Context, e Event) error {
	attrs := []any{
		slog.String("kind", string(e.Kind)),
		slog.Time("time", e.Time),
	}
	if e.Band != nil {
		attrs = append(attrs,
			slog.String("band", e.Band.Band.String()),
			slog.Time("next", e.Band.Next),
			slog.String("nextBand", e.Band.NextBand.String()),
		)
	}
	if e.Averages != nil {
		for _, b := range types.Bands {
			if v, ok := e.Averages.Value(b); ok {
				attrs = append(attrs, slog.Float64(b.String(), v))
			}
		}
	}
	if e.National != nil && e.National.Available {
		attrs = append(attrs, slog.Float64("national", e.National.Value))
	}
	if e.Zonal != nil && e.Zonal.Available {
		attrs = append(attrs, slog.String("zone", string(e.Zone)), slog.Float64("zonal", e.Zonal.Value))
	}
	log.Ctx(ctx).InfoContext(ctx, "event", attrs...)
	return nil
}

// Close implements Publisher.
func (LogPublisher) Close() error {
	return nil
}
