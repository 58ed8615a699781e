package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/models"
)

// ReservationEvent is the wire shape published to the reservation
// topic. Consumers key analytics off the vehicle and payment method.
type ReservationEvent struct {
	ReservationID string    `json:"reservation_id"`
	OwnerID       string    `json:"owner_id"`
	VehicleID     string    `json:"vehicle_id"`
	PaymentMethod string    `json:"payment_method"`
	Total         float64   `json:"total"`
	CreatedAt     time.Time `json:"created_at"`
}

// KafkaProducer publishes reservation events.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) ReservationCreated(ctx context.Context, r models.Reservation) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(ReservationEvent{
		ReservationID: r.ID,
		OwnerID:       r.OwnerID,
		VehicleID:     r.VehicleID,
		PaymentMethod: string(r.PaymentMethod),
		Total:         r.Quote.Total,
		CreatedAt:     r.CreatedAt,
	})
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(r.ID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
