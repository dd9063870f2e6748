package repository

import (
	"context"
	"encoding/json"
	"time"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter subset of *kafka.Writer
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ActivityRecord chat activity for analytics consumer
type ActivityRecord struct {
	Event      domain.EventType `json:"event"`
	OccurredAt time.Time        `json:"occurredAt"`
	Payload    interface{}      `json:"payload"`
}

// ActivityRepository publish chat events to kafka topic
type ActivityRepository struct {
	writer KafkaWriter
	now    func() time.Time
}

// NewActivityRepository create ActivityRepository
func NewActivityRepository(writer KafkaWriter) *ActivityRepository {
	return &ActivityRepository{writer: writer, now: time.Now}
}

// Notify write one record, keyed by event type
func (a *ActivityRepository) Notify(ctx context.Context, event domain.Event) error {
	value, err := json.Marshal(ActivityRecord{
		Event:      event.Type,
		OccurredAt: a.now().UTC(),
		Payload:    event.Payload,
	})
	if err != nil {
		return errprocess.Transport(err, "marshal activity")
	}

	if err := a.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: value,
	}); err != nil {
		return errprocess.Transport(err, "publish activity")
	}
	return nil
}
