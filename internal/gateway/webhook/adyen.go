package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// AdyenAdapter handles Adyen standard notifications. Adyen does not
// sign the HTTP body with a header; each notification item carries its
// own HMAC under additionalData.hmacSignature, so verification walks
// the items.
type AdyenAdapter struct {
	hmacKey string
}

func NewAdyenAdapter(hmacKey string) *AdyenAdapter {
	return &AdyenAdapter{hmacKey: strings.TrimSpace(hmacKey)}
}

func (a *AdyenAdapter) GatewayName() string {
	return "adyen"
}

func (a *AdyenAdapter) Verify(ctx context.Context, payload []byte, headers map[string]string) error {
	var root adyenNotificationRoot
	if err := json.Unmarshal(payload, &root); err != nil {
		return ErrInvalidPayload
	}
	if len(root.NotificationItems) == 0 {
		return ErrInvalidPayload
	}

	for _, item := range root.NotificationItems {
		signature := item.NotificationRequestItem.AdditionalData["hmacSignature"]
		if signature == "" {
			return ErrInvalidSignature
		}
		if err := a.verifyItemSignature(item.NotificationRequestItem, signature); err != nil {
			return err
		}
	}

	return nil
}

// verifyItemSignature recomputes the HMAC over the colon-joined field
// sequence Adyen documents: pspReference, originalReference,
// merchantAccountCode, merchantReference, value, currency, eventCode,
// success. Backslashes and colons inside values are escaped first.
func (a *AdyenAdapter) verifyItemSignature(item adyenNotificationRequestItem, expectedSig string) error {
	parts := []string{
		item.PspReference,
		item.OriginalReference,
		item.MerchantAccountCode,
		item.MerchantReference,
		strconv.FormatInt(item.Amount.Value, 10),
		item.Amount.Currency,
		item.EventCode,
		item.Success,
	}

	var sb strings.Builder
	for i, part := range parts {
		replaced := strings.ReplaceAll(part, "\\", "\\\\")
		replaced = strings.ReplaceAll(replaced, ":", "\\:")
		sb.WriteString(replaced)
		if i < len(parts)-1 {
			sb.WriteString(":")
		}
	}

	// The configured key is hex encoded.
	keyBytes, err := hex.DecodeString(a.hmacKey)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, keyBytes)
	mac.Write([]byte(sb.String()))
	calculated := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(calculated), []byte(expectedSig)) {
		return ErrInvalidSignature
	}
	return nil
}

// Parse maps the first notification item to a lifecycle event. Adyen
// batches items per request, but in practice sends one.
func (a *AdyenAdapter) Parse(ctx context.Context, payload []byte) (*Event, error) {
	var root adyenNotificationRoot
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, ErrInvalidPayload
	}
	if len(root.NotificationItems) == 0 {
		return nil, ErrInvalidPayload
	}

	item := root.NotificationItems[0].NotificationRequestItem

	var eventType EventType
	switch item.EventCode {
	case "AUTHORISATION":
		if item.Success == "true" {
			eventType = EventRenewalSucceeded
		} else {
			eventType = EventPaymentFailed
		}
	case "REFUND":
		if item.Success != "true" {
			return nil, ErrEventIgnored
		}
		eventType = EventRenewalRefunded
	case "RECURRING_CONTRACT_DISABLED", "CANCELLATION":
		if item.Success != "true" {
			return nil, ErrEventIgnored
		}
		eventType = EventProfileCancelled
	default:
		return nil, ErrEventIgnored
	}

	profileID := item.AdditionalData["recurring.recurringDetailReference"]
	if profileID == "" {
		profileID = item.MerchantReference
	}
	if strings.TrimSpace(profileID) == "" {
		return nil, ErrInvalidPayload
	}

	// Adyen has no distinct webhook id; pspReference plus event code is
	// unique per transaction.
	return &Event{
		Gateway:       "adyen",
		EventID:       item.PspReference + "_" + item.EventCode,
		Type:          eventType,
		ProfileID:     profileID,
		TransactionID: item.PspReference,
		Amount:        minorUnits(item.Amount.Value),
		OccurredAt:    adyenEventDate(item.EventDate),
	}, nil
}

// adyenEventDate parses Adyen's RFC 3339 timestamps, e.g.
// 2019-06-28T18:03:50+01:00.
func adyenEventDate(dateStr string) time.Time {
	t, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

type adyenNotificationRoot struct {
	NotificationItems []adyenNotificationItem `json:"notificationItems"`
}

type adyenNotificationItem struct {
	NotificationRequestItem adyenNotificationRequestItem `json:"NotificationRequestItem"`
}

type adyenNotificationRequestItem struct {
	AdditionalData      map[string]string `json:"additionalData"`
	Amount              adyenAmount       `json:"amount"`
	EventCode           string            `json:"eventCode"`
	EventDate           string            `json:"eventDate"`
	MerchantAccountCode string            `json:"merchantAccountCode"`
	MerchantReference   string            `json:"merchantReference"`
	OriginalReference   string            `json:"originalReference"`
	PspReference        string            `json:"pspReference"`
	Reason              string            `json:"reason"`
	Success             string            `json:"success"`
}

type adyenAmount struct {
	Currency string `json:"currency"`
	Value    int64  `json:"value"`
}
