package payments

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// Intent is the processor-side handle for a pending card charge. The
// client confirms it with the ClientSecret; the service re-checks the
// outcome by ID.
type Intent struct {
	ID           string
	ClientSecret string
}

// Outcome is the terminal result of a confirmation attempt.
type Outcome struct {
	Succeeded bool
	PaymentID string
}

// ErrDeclined is returned when the processor refuses the charge.
var ErrDeclined = errors.New("payment declined")

// Processor abstracts the hosted payment provider. The amount is always
// the minor-currency-unit integer form of a freshly computed total.
type Processor interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string) (Intent, error)
	ConfirmIntent(ctx context.Context, intentID string) (Outcome, error)
}

// StripeProcessor is a thin wrapper around stripe-go PaymentIntents.
type StripeProcessor struct{}

// NewStripeProcessor sets the package-level stripe key and returns the
// processor.
func NewStripeProcessor(apiKey string) *StripeProcessor {
	stripe.Key = apiKey
	return &StripeProcessor{}
}

func (s *StripeProcessor) CreateIntent(ctx context.Context, amountMinor int64, currency string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	pi, err := paymentintent.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// ConfirmIntent fetches the intent and reports whether the charge went
// through. The card itself is confirmed client-side with the client
// secret; the server never sees card details.
func (s *StripeProcessor) ConfirmIntent(ctx context.Context, intentID string) (Outcome, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return Outcome{}, fmt.Errorf("get payment intent: %w", err)
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return Outcome{Succeeded: true, PaymentID: pi.ID}, nil
	case stripe.PaymentIntentStatusCanceled:
		return Outcome{}, fmt.Errorf("%w: intent canceled", ErrDeclined)
	default:
		return Outcome{Succeeded: false, PaymentID: pi.ID}, nil
	}
}
