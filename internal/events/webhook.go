package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// Publisher announces finalized reservations. KafkaProducer and
// WebhookNotifier both implement it; Fanout combines them.
type Publisher interface {
	ReservationCreated(ctx context.Context, r models.Reservation) error
}

// WebhookNotifier POSTs reservation events to a back-office endpoint,
// for integrations that do not consume the Kafka topic.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
}

func NewWebhookNotifier(endpoint string) *WebhookNotifier {
	return &WebhookNotifier{endpoint: endpoint, client: &http.Client{Timeout: 3 * time.Second}}
}

func (n *WebhookNotifier) ReservationCreated(ctx context.Context, r models.Reservation) error {
	b, _ := json.Marshal(ReservationEvent{
		ReservationID: r.ID,
		OwnerID:       r.OwnerID,
		VehicleID:     r.VehicleID,
		PaymentMethod: string(r.PaymentMethod),
		Total:         r.Quote.Total,
		CreatedAt:     r.CreatedAt,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Fanout delivers to every publisher and reports the first failure
// after all have been tried.
type Fanout []Publisher

func (f Fanout) ReservationCreated(ctx context.Context, r models.Reservation) error {
	var first error
	for _, p := range f {
		if err := p.ReservationCreated(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
