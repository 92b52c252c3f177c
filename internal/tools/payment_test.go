package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/regdesk/regdesk/internal/adapters/payments"
)

type fakePayments struct {
	lastAmount   int
	lastMetadata map[string]string
	failing      bool
}

func (f *fakePayments) CreateBillingRequest(ctx context.Context, amountPence int, description string, metadata map[string]string) (*payments.BillingRequest, error) {
	if f.failing {
		return nil, errors.New("boom")
	}
	f.lastAmount = amountPence
	f.lastMetadata = metadata
	return &payments.BillingRequest{ID: "BRQ123", PaymentURL: "https://pay.example/BRQ123"}, nil
}

func (f *fakePayments) CreatePaymentURL(ctx context.Context, billingRequestID string) (string, error) {
	if f.failing {
		return "", errors.New("boom")
	}
	return "https://pay.example/" + billingRequestID + "/fresh", nil
}

func (f *fakePayments) CreateSubscription(ctx context.Context, params payments.SubscriptionParams) (*payments.Subscription, error) {
	return &payments.Subscription{ID: "SB001", Status: "active", StartDate: time.Now()}, nil
}

func (f *fakePayments) CancelSubscription(ctx context.Context, subscriptionID string) error { return nil }
func (f *fakePayments) Health(ctx context.Context) error                                    { return nil }

type fakeSMS struct {
	lastTo   string
	lastBody string
	failing  bool
}

func (f *fakeSMS) Send(ctx context.Context, to, body string) (string, error) {
	if f.failing {
		return "", errors.New("gateway down")
	}
	f.lastTo, f.lastBody = to, body
	return "MSG001", nil
}

func (f *fakeSMS) Health(ctx context.Context) error { return nil }

func TestCreatePaymentToken(t *testing.T) {
	provider := &fakePayments{}
	tool := &createPaymentToken{payments: provider, monthly: 27.50, signingFee: 30}

	res, err := tool.Execute(context.Background(),
		json.RawMessage(`{"preferred_payment_day": 15, "player_name": "Ruby Carter", "team": "Tigers"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s %s", res.ErrKind, res.Content)
	}
	out := decodeResult(t, res.Content)
	if out["billing_request_id"] != "BRQ123" || out["payment_url"] != "https://pay.example/BRQ123" {
		t.Fatalf("result = %v", out)
	}
	if provider.lastAmount != 3000 {
		t.Fatalf("signing fee pence = %d, want 3000", provider.lastAmount)
	}
	if provider.lastMetadata["player_name"] != "Ruby Carter" {
		t.Fatalf("metadata = %v", provider.lastMetadata)
	}

	for _, day := range []int{0, 29, 31, -2} {
		params, _ := json.Marshal(map[string]any{"preferred_payment_day": day, "player_name": "Ruby Carter"})
		res, _ := tool.Execute(context.Background(), params)
		if !res.IsError || res.ErrKind != "invalid_day" {
			t.Fatalf("day %d = %+v, want invalid_day", day, res)
		}
	}

	res, _ = tool.Execute(context.Background(),
		json.RawMessage(`{"preferred_payment_day": -1, "player_name": "Ruby Carter"}`))
	if res.IsError {
		t.Fatalf("-1 means last day of month and must pass: %s", res.Content)
	}

	tool.payments = &fakePayments{failing: true}
	res, _ = tool.Execute(context.Background(),
		json.RawMessage(`{"preferred_payment_day": 15, "player_name": "Ruby Carter"}`))
	if !res.IsError || res.ErrKind != "provider_error" {
		t.Fatalf("provider failure = %+v, want provider_error", res)
	}
}

func TestCreateSignupPaymentLink(t *testing.T) {
	tool := &createSignupPaymentLink{payments: &fakePayments{}}

	res, _ := tool.Execute(context.Background(), json.RawMessage(`{"billing_request_id": "BRQ123"}`))
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	if out := decodeResult(t, res.Content); out["payment_url"] != "https://pay.example/BRQ123/fresh" {
		t.Fatalf("result = %v", out)
	}

	res, _ = tool.Execute(context.Background(), json.RawMessage(`{"billing_request_id": ""}`))
	if !res.IsError {
		t.Fatal("empty billing request id must fail")
	}
}

func TestSendSMSPaymentLink(t *testing.T) {
	gateway := &fakeSMS{}
	tool := &sendSMSPaymentLink{sms: gateway}

	res, _ := tool.Execute(context.Background(),
		json.RawMessage(`{"phone": "+44 7700 900123", "payment_url": "https://pay.example/x", "player_name": "Ruby"}`))
	if res.IsError {
		t.Fatalf("unexpected error: %s %s", res.ErrKind, res.Content)
	}
	if gateway.lastTo != "07700900123" {
		t.Fatalf("normalized phone = %q", gateway.lastTo)
	}
	if out := decodeResult(t, res.Content); out["message_id"] != "MSG001" {
		t.Fatalf("result = %v", out)
	}

	for _, phone := range []string{"0780090012", "0870090012345", "1234567890", "07abc900123"} {
		params, _ := json.Marshal(map[string]string{"phone": phone, "payment_url": "https://pay.example/x"})
		res, _ := tool.Execute(context.Background(), params)
		if !res.IsError || res.ErrKind != "invalid_phone" {
			t.Fatalf("phone %q = %+v, want invalid_phone", phone, res)
		}
	}

	tool.sms = &fakeSMS{failing: true}
	res, _ = tool.Execute(context.Background(),
		json.RawMessage(`{"phone": "07700900123", "payment_url": "https://pay.example/x"}`))
	if !res.IsError || res.ErrKind != "provider_error" {
		t.Fatalf("gateway failure = %+v, want provider_error", res)
	}
}
