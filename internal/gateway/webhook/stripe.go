package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StripeAdapter handles Stripe Billing webhook notifications. Renewal
// charges arrive as invoice events carrying the subscription id we
// stored as the gateway profile id.
type StripeAdapter struct {
	webhookSecret string
}

func NewStripeAdapter(webhookSecret string) *StripeAdapter {
	return &StripeAdapter{webhookSecret: strings.TrimSpace(webhookSecret)}
}

func (a *StripeAdapter) GatewayName() string {
	return "stripe"
}

func (a *StripeAdapter) Verify(ctx context.Context, payload []byte, headers map[string]string) error {
	sigHeader := strings.TrimSpace(headerValue(headers, "Stripe-Signature"))
	if sigHeader == "" {
		return ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

func (a *StripeAdapter) Parse(ctx context.Context, payload []byte) (*Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Type) {
	case "invoice.payment_succeeded":
		return a.parseInvoice(event, EventRenewalSucceeded)
	case "invoice.payment_failed":
		return a.parseInvoice(event, EventPaymentFailed)
	case "customer.subscription.deleted":
		return a.parseSubscription(event)
	case "charge.refunded":
		return a.parseRefund(event)
	default:
		return nil, ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Charge       string `json:"charge"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Tax          int64  `json:"tax"`
	Created      int64  `json:"created"`
}

type stripeSubscription struct {
	ID         string `json:"id"`
	CanceledAt int64  `json:"canceled_at"`
}

type stripeChargeObject struct {
	ID             string `json:"id"`
	AmountRefunded int64  `json:"amount_refunded"`
	Created        int64  `json:"created"`
	Invoice        string `json:"invoice"`
}

func (a *StripeAdapter) parseInvoice(event stripeEvent, eventType EventType) (*Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.Subscription) == "" {
		return nil, ErrInvalidPayload
	}

	amount := invoice.AmountPaid
	if amount <= 0 {
		amount = invoice.AmountDue
	}
	tax := minorUnits(invoice.Tax)

	return &Event{
		Gateway:       "stripe",
		EventID:       event.ID,
		Type:          eventType,
		ProfileID:     invoice.Subscription,
		TransactionID: strings.TrimSpace(invoice.Charge),
		Amount:        minorUnits(amount),
		Tax:           &tax,
		OccurredAt:    stripeTimestamp(invoice.Created, event.Created),
	}, nil
}

func (a *StripeAdapter) parseSubscription(event stripeEvent) (*Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, ErrInvalidPayload
	}

	return &Event{
		Gateway:    "stripe",
		EventID:    event.ID,
		Type:       EventProfileCancelled,
		ProfileID:  sub.ID,
		OccurredAt: stripeTimestamp(sub.CanceledAt, event.Created),
	}, nil
}

func (a *StripeAdapter) parseRefund(event stripeEvent) (*Event, error) {
	var charge stripeChargeObject
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(charge.ID) == "" {
		return nil, ErrInvalidPayload
	}

	return &Event{
		Gateway:       "stripe",
		EventID:       event.ID,
		Type:          EventRenewalRefunded,
		TransactionID: charge.ID,
		Amount:        minorUnits(charge.AmountRefunded),
		OccurredAt:    stripeTimestamp(charge.Created, event.Created),
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

func stripeTimestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func minorUnits(amount int64) float64 {
	return float64(amount) / 100
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
