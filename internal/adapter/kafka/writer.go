package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/disaster-report-server/internal/config"
	"github.com/couchcryptid/disaster-report-server/internal/domain"
	"github.com/couchcryptid/disaster-report-server/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes live area aggregates to the aggregates topic.
type Writer struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured aggregates topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAggregatesTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// aggregateMessage is the value of one feed message.
type aggregateMessage struct {
	Level       string `json:"level"`
	PKey        int64  `json:"pkey"`
	AreaName    string `json:"area_name"`
	Count       int64  `json:"count"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
}

// PublishAggregates writes one message per area in a single WriteMessages
// call. Messages for the same area share a key and so a partition.
func (w *Writer) PublishAggregates(ctx context.Context, level string, window domain.TimeWindow, counts []domain.AreaCount) error {
	if len(counts) == 0 {
		return nil
	}
	computedAt := time.Unix(domain.Now(), 0).UTC()

	msgs := make([]kafkago.Message, len(counts))
	for i := range counts {
		msg, err := serializeToMessage(level, window, counts[i], computedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		w.metrics.PublishErrors.Inc()
		return fmt.Errorf("publish aggregates: %w", err)
	}
	w.metrics.AggregatesPublished.Add(float64(len(msgs)))
	w.logger.Debug("aggregates published", "level", level, "areas", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one area count into a Kafka message.
func serializeToMessage(level string, window domain.TimeWindow, c domain.AreaCount, computedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(aggregateMessage{
		Level:       level,
		PKey:        c.PKey,
		AreaName:    c.AreaName,
		Count:       c.Count,
		WindowStart: domain.FormatISO(window.Start),
		WindowEnd:   domain.FormatISO(window.End),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize area aggregate: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(level + ":" + strconv.FormatInt(c.PKey, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "level", Value: []byte(level)},
			{Key: "computed_at", Value: []byte(computedAt.Format(time.RFC3339))},
		},
	}, nil
}
