// Package adapter translates the payment provider's webhook payload into the
// provider-neutral billing event.
package adapter

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/smallbiznis/reachway/internal/billing/domain"
)

const accessTokenHeader = "Asaas-Access-Token"

type Adapter struct {
	webhookToken string
}

func New(webhookToken string) *Adapter {
	return &Adapter{webhookToken: strings.TrimSpace(webhookToken)}
}

// Verify checks the provider access token before any payload parsing.
func (a *Adapter) Verify(ctx context.Context, headers http.Header) error {
	if a.webhookToken == "" {
		return domain.ErrInvalidSignature
	}
	provided := strings.TrimSpace(headers.Get(accessTokenHeader))
	if subtle.ConstantTimeCompare([]byte(provided), []byte(a.webhookToken)) != 1 {
		return domain.ErrInvalidSignature
	}
	return nil
}

type webhookPayload struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment struct {
		ID           string `json:"id"`
		Subscription string `json:"subscription"`
	} `json:"payment"`
	Subscription struct {
		ID string `json:"id"`
	} `json:"subscription"`
}

// Parse maps provider event types onto subscription status transitions.
// Event types without a billing meaning return ErrEventIgnored.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.ErrInvalidEvent
	}
	if strings.TrimSpace(body.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	ref := strings.TrimSpace(body.Payment.Subscription)
	if ref == "" {
		ref = strings.TrimSpace(body.Subscription.ID)
	}

	var status string
	switch strings.TrimSpace(body.Event) {
	case "PAYMENT_CONFIRMED", "PAYMENT_RECEIVED":
		status = domain.SubscriptionActive
	case "PAYMENT_OVERDUE":
		status = domain.SubscriptionPastDue
	case "SUBSCRIPTION_DELETED", "SUBSCRIPTION_INACTIVATED":
		status = domain.SubscriptionCanceled
	default:
		return nil, domain.ErrEventIgnored
	}

	return &domain.PaymentEvent{
		ProviderEventID: body.ID,
		Type:            body.Event,
		SubscriptionRef: ref,
		NewStatus:       status,
	}, nil
}
