package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/wildfire-data-service/internal/config"
	"github.com/couchcryptid/wildfire-data-service/internal/domain"
)

// Writer produces fire detections to a Kafka topic.
// It implements pipeline.DetectionPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured detection topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes all records in a single WriteMessages call.
// Messages are keyed by detection ID so repeats of a detection land on the
// same partition.
func (w *Writer) Publish(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write detections: %w", err)
	}
	w.logger.Debug("detections published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// detectionMessage is the wire form: the record plus its stable ID.
type detectionMessage struct {
	ID string `json:"id"`
	domain.Record
}

// serializeToMessage marshals a Record into a Kafka message.
func serializeToMessage(r domain.Record) (kafkago.Message, error) {
	id := r.ID()
	data, err := json.Marshal(detectionMessage{ID: id, Record: r})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize detection: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(id),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(r.SourceID)},
			{Key: "acq_date", Value: []byte(r.AcquisitionDate)},
		},
	}, nil
}
