package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// BraintreeAdapter handles Braintree webhook notifications. Braintree
// posts form-encoded bt_signature and bt_payload fields; the payload is
// base64 XML describing the subscription the event belongs to.
type BraintreeAdapter struct {
	privateKey string
}

func NewBraintreeAdapter(privateKey string) *BraintreeAdapter {
	return &BraintreeAdapter{privateKey: strings.TrimSpace(privateKey)}
}

func (a *BraintreeAdapter) GatewayName() string {
	return "braintree"
}

// Verify checks bt_signature against bt_payload. The signature field is
// "publicKey|hash" where hash is the HMAC-SHA256 of the payload under
// our private key.
func (a *BraintreeAdapter) Verify(ctx context.Context, payload []byte, headers map[string]string) error {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return ErrInvalidPayload
	}

	signature := values.Get("bt_signature")
	content := values.Get("bt_payload")
	if signature == "" || content == "" {
		return ErrInvalidPayload
	}

	parts := strings.Split(signature, "|")
	if len(parts) != 2 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.privateKey))
	mac.Write([]byte(content))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return ErrInvalidSignature
	}

	return nil
}

func (a *BraintreeAdapter) Parse(ctx context.Context, payload []byte) (*Event, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, ErrInvalidPayload
	}
	encoded := values.Get("bt_payload")
	if encoded == "" {
		return nil, ErrInvalidPayload
	}

	xmlBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some sandboxes post raw XML.
		xmlBytes = []byte(encoded)
	}

	var notification btNotification
	if err := xml.Unmarshal(xmlBytes, &notification); err != nil {
		return nil, ErrInvalidPayload
	}

	var eventType EventType
	switch notification.Kind {
	case "subscription_charged_successfully":
		eventType = EventRenewalSucceeded
	case "subscription_charged_unsuccessfully", "subscription_went_past_due":
		eventType = EventPaymentFailed
	case "subscription_canceled":
		eventType = EventProfileCancelled
	default:
		return nil, ErrEventIgnored
	}

	sub := notification.Subject.Subscription
	if strings.TrimSpace(sub.ID) == "" {
		return nil, ErrInvalidPayload
	}

	event := &Event{
		Gateway:    "braintree",
		EventID:    sub.ID + "_" + notification.Kind,
		Type:       eventType,
		ProfileID:  sub.ID,
		OccurredAt: btTimestamp(notification.Timestamp),
	}

	// The most recent transaction on the subscription carries the
	// charge details. Braintree amounts are already in major units.
	if len(sub.Transactions) > 0 {
		txn := sub.Transactions[0]
		event.TransactionID = strings.TrimSpace(txn.ID)
		event.Amount, _ = strconv.ParseFloat(strings.TrimSpace(txn.Amount), 64)
		if taxStr := strings.TrimSpace(txn.TaxAmount); taxStr != "" {
			if tax, err := strconv.ParseFloat(taxStr, 64); err == nil {
				event.Tax = &tax
			}
		}
	}

	return event, nil
}

func btTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

type btNotification struct {
	XMLName   xml.Name  `xml:"notification"`
	Timestamp string    `xml:"timestamp"`
	Kind      string    `xml:"kind"`
	Subject   btSubject `xml:"subject"`
}

type btSubject struct {
	Subscription btSubscription `xml:"subscription"`
}

type btSubscription struct {
	ID           string          `xml:"id"`
	Transactions []btTransaction `xml:"transactions>transaction"`
}

type btTransaction struct {
	ID        string `xml:"id"`
	Amount    string `xml:"amount"`
	TaxAmount string `xml:"tax-amount"`
}
