// Package events publishes result-ready notifications to Kafka/Redpanda.
//
// Publication is fire-and-forget: delivery failures are logged and counted
// but never surface to the pipeline.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/polisim/ai-gateway/internal/adapter/observability"
	"github.com/polisim/ai-gateway/internal/domain"
)

// Producer wraps a Kafka producer and implements domain.EventSink.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to the brokers and verifies reachability, retrying
// the initial ping with exponential backoff so a slow broker startup does
// not kill the gateway.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=events.NewProducer: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=events.NewProducer: %w", err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error { return client.Ping(ctx) }, backoff.WithContext(expo, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("op=events.NewProducer: ping brokers: %w", err)
	}

	slog.Info("events producer connected", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Producer{client: client, topic: topic}, nil
}

// PublishResultReady produces the event asynchronously. The returned error
// is always nil; produce failures are observed in the delivery callback.
func (p *Producer) PublishResultReady(ctx domain.Context, evt domain.ResultReadyEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		slog.Error("event marshal failed", slog.Any("error", err))
		observability.EventsPublishedTotal.WithLabelValues("error").Inc()
		return nil
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(evt.RequestID), Value: b}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			slog.Warn("event publish failed",
				slog.String("request_id", evt.RequestID),
				slog.Any("error", err))
			observability.EventsPublishedTotal.WithLabelValues("error").Inc()
			return
		}
		observability.EventsPublishedTotal.WithLabelValues("ok").Inc()
	})
	return nil
}

// Close flushes and closes the underlying client.
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		slog.Warn("event flush on close failed", slog.Any("error", err))
	}
	p.client.Close()
}

// LogSink logs events instead of publishing them; used when the event bus is
// disabled (offline runs, the load driver, tests).
type LogSink struct{}

// NewLogSink creates a logging sink.
func NewLogSink() *LogSink { return &LogSink{} }

// PublishResultReady logs the event at debug level.
func (s *LogSink) PublishResultReady(_ domain.Context, evt domain.ResultReadyEvent) error {
	slog.Debug("result ready",
		slog.String("request_id", evt.RequestID),
		slog.String("source", string(evt.Source)),
		slog.Duration("elapsed", evt.Elapsed))
	observability.EventsPublishedTotal.WithLabelValues("logged").Inc()
	return nil
}
