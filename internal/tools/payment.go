package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/regdesk/regdesk/internal/adapters/payments"
	"github.com/regdesk/regdesk/internal/adapters/sms"
	"github.com/regdesk/regdesk/internal/agent"
)

// ---- create_payment_token ----

type createPaymentToken struct {
	payments   payments.Client
	monthly    float64
	signingFee float64
}

func (t *createPaymentToken) Name() string { return "create_payment_token" }
func (t *createPaymentToken) Description() string {
	return "Creates the billing request for the signing fee and direct debit mandate. The preferred collection day must be 1 to 28, or -1 for the last day of the month."
}
func (t *createPaymentToken) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"preferred_payment_day": {"type": "integer", "description": "Day of month for collections, 1-28 or -1 for last day"},
			"player_name": {"type": "string"},
			"parent_name": {"type": "string"},
			"team": {"type": "string"}
		},
		"required": ["preferred_payment_day", "player_name"],
		"additionalProperties": false
	}`)
}

func (t *createPaymentToken) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		PreferredPaymentDay int    `json:"preferred_payment_day"`
		PlayerName          string `json:"player_name"`
		ParentName          string `json:"parent_name"`
		Team                string `json:"team"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}
	if in.PreferredPaymentDay != -1 && (in.PreferredPaymentDay < 1 || in.PreferredPaymentDay > 28) {
		return fail("invalid_day", "the collection day must be between 1 and 28, or -1 for the last day of the month")
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	metadata := map[string]string{"player_name": in.PlayerName}
	if in.ParentName != "" {
		metadata["parent_name"] = in.ParentName
	}
	if in.Team != "" {
		metadata["team"] = in.Team
	}

	description := fmt.Sprintf("Signing fee for %s", in.PlayerName)
	br, err := t.payments.CreateBillingRequest(ctx, poundsToPence(t.signingFee), description, metadata)
	if err != nil {
		return fail("provider_error", "the payment provider rejected the request")
	}

	return ok(map[string]any{
		"billing_request_id":    br.ID,
		"payment_url":           br.PaymentURL,
		"signing_fee_pounds":    t.signingFee,
		"monthly_pounds":        t.monthly,
		"preferred_payment_day": in.PreferredPaymentDay,
	})
}

func poundsToPence(pounds float64) int {
	return int(math.Round(pounds * 100))
}

// ---- create_signup_payment_link ----

type createSignupPaymentLink struct {
	payments payments.Client
}

func (t *createSignupPaymentLink) Name() string { return "create_signup_payment_link" }
func (t *createSignupPaymentLink) Description() string {
	return "Opens a fresh hosted payment URL for an existing billing request, for resending an expired link."
}
func (t *createSignupPaymentLink) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"billing_request_id": {"type": "string"}
		},
		"required": ["billing_request_id"],
		"additionalProperties": false
	}`)
}

func (t *createSignupPaymentLink) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		BillingRequestID string `json:"billing_request_id"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}
	if strings.TrimSpace(in.BillingRequestID) == "" {
		return fail("invalid_params", "billing_request_id is required")
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	url, err := t.payments.CreatePaymentURL(ctx, in.BillingRequestID)
	if err != nil {
		return fail("provider_error", "the payment provider could not open a new payment flow")
	}
	return ok(map[string]any{
		"billing_request_id": in.BillingRequestID,
		"payment_url":        url,
	})
}

// ---- send_sms_payment_link ----

var ukMobileRe = regexp.MustCompile(`^07\d{9}$`)

type sendSMSPaymentLink struct {
	sms sms.Sender
}

func (t *sendSMSPaymentLink) Name() string { return "send_sms_payment_link" }
func (t *sendSMSPaymentLink) Description() string {
	return "Texts the payment link to the parent's UK mobile number."
}
func (t *sendSMSPaymentLink) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"phone": {"type": "string", "description": "UK mobile, 07 followed by nine digits"},
			"payment_url": {"type": "string"},
			"player_name": {"type": "string"}
		},
		"required": ["phone", "payment_url"],
		"additionalProperties": false
	}`)
}

func (t *sendSMSPaymentLink) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Phone      string `json:"phone"`
		PaymentURL string `json:"payment_url"`
		PlayerName string `json:"player_name"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}

	phone := strings.ReplaceAll(strings.TrimSpace(in.Phone), " ", "")
	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "44") && len(phone) == 12 {
		phone = "0" + phone[2:]
	}
	if !ukMobileRe.MatchString(phone) {
		return fail("invalid_phone", "the number must be a UK mobile starting 07")
	}

	body := "Complete your registration payment here: " + in.PaymentURL
	if in.PlayerName != "" {
		body = fmt.Sprintf("Complete %s's registration payment here: %s", in.PlayerName, in.PaymentURL)
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	messageID, err := t.sms.Send(ctx, phone, body)
	if err != nil {
		return fail("provider_error", "the SMS gateway is not responding")
	}
	return ok(map[string]any{"message_id": messageID, "phone": phone})
}
