package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"testing"
)

const btNotificationXML = `<notification>
  <timestamp type="datetime">2026-02-01T10:00:00Z</timestamp>
  <kind>subscription_charged_successfully</kind>
  <subject>
    <subscription>
      <id>bt_sub_1</id>
      <transactions type="array">
        <transaction>
          <id>txn_bt_1</id>
          <amount>19.99</amount>
          <tax-amount>1.99</tax-amount>
        </transaction>
      </transactions>
    </subscription>
  </subject>
</notification>`

func buildBraintreePayload(privateKey, xmlBody string) []byte {
	encoded := base64.StdEncoding.EncodeToString([]byte(xmlBody))

	mac := hmac.New(sha256.New, []byte(privateKey))
	mac.Write([]byte(encoded))
	hash := hex.EncodeToString(mac.Sum(nil))

	values := url.Values{}
	values.Set("bt_signature", "public_key|"+hash)
	values.Set("bt_payload", encoded)
	return []byte(values.Encode())
}

func TestBraintreeVerify(t *testing.T) {
	privateKey := "bt_private"
	payload := buildBraintreePayload(privateKey, btNotificationXML)

	adapter := NewBraintreeAdapter(privateKey)
	if err := adapter.Verify(context.Background(), payload, nil); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	wrong := NewBraintreeAdapter("other_key")
	if err := wrong.Verify(context.Background(), payload, nil); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}
}

func TestBraintreeParse(t *testing.T) {
	adapter := NewBraintreeAdapter("bt_private")
	payload := buildBraintreePayload("bt_private", btNotificationXML)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Type != EventRenewalSucceeded {
		t.Fatalf("expected renewal succeeded, got %s", event.Type)
	}
	if event.ProfileID != "bt_sub_1" {
		t.Fatalf("expected profile bt_sub_1, got %q", event.ProfileID)
	}
	if event.TransactionID != "txn_bt_1" {
		t.Fatalf("expected transaction txn_bt_1, got %q", event.TransactionID)
	}
	if event.Amount != 19.99 {
		t.Fatalf("expected amount 19.99, got %v", event.Amount)
	}
	if event.Tax == nil || *event.Tax != 1.99 {
		t.Fatalf("expected tax 1.99, got %v", event.Tax)
	}
}

func TestBraintreeParseCancellation(t *testing.T) {
	xmlBody := `<notification><timestamp type="datetime">2026-02-01T10:00:00Z</timestamp><kind>subscription_canceled</kind><subject><subscription><id>bt_sub_2</id></subscription></subject></notification>`
	adapter := NewBraintreeAdapter("bt_private")

	event, err := adapter.Parse(context.Background(), buildBraintreePayload("bt_private", xmlBody))
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Type != EventProfileCancelled {
		t.Fatalf("expected profile cancelled, got %s", event.Type)
	}
	if event.ProfileID != "bt_sub_2" {
		t.Fatalf("expected profile bt_sub_2, got %q", event.ProfileID)
	}
}
