// Package webhook processes payment-provider webhooks: signature
// verification, event fan-out, and the record-state transitions that activate
// a registration once the signing fee is paid and the mandate is live.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/regdesk/regdesk/internal/adapters/payments"
	"github.com/regdesk/regdesk/internal/observability"
	"github.com/regdesk/regdesk/internal/records"
	"github.com/regdesk/regdesk/internal/subscription"
	"github.com/regdesk/regdesk/pkg/models"
)

// MaxEvents caps the number of events accepted in one webhook payload.
const MaxEvents = 100

// EventTimeout bounds the handling of a single event.
const EventTimeout = 30 * time.Second

// SiblingDiscountFactor is applied to the monthly amount when an active
// sibling registration shares the parent and surname.
const SiblingDiscountFactor = 0.9

var (
	// ErrBadSignature rejects payloads whose HMAC does not match.
	ErrBadSignature = errors.New("webhook: signature mismatch")

	// ErrTooManyEvents rejects payloads over MaxEvents.
	ErrTooManyEvents = errors.New("webhook: too many events")
)

// Event is one provider event.
type Event struct {
	ID           string `json:"id"`
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Links        struct {
		Payment        string `json:"payment,omitempty"`
		Mandate        string `json:"mandate,omitempty"`
		BillingRequest string `json:"billing_request,omitempty"`
		Subscription   string `json:"subscription,omitempty"`
	} `json:"links"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

type payload struct {
	Events []Event `json:"events"`
}

// EventResult is the per-event outcome reported back to the provider.
type EventResult struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"` // processed | ignored | error
	Detail  string `json:"detail,omitempty"`
}

// Processor validates and applies webhook payloads.
type Processor struct {
	secret   string
	records  records.Store
	payments payments.Client
	logger   *observability.Logger
	metrics  *observability.Metrics
	devMode  bool
	now      func() time.Time
}

// Config configures a Processor.
type Config struct {
	Secret   string
	Records  records.Store
	Payments payments.Client
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	DevMode  bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

// New creates a Processor. An empty secret is only tolerated in dev mode.
func New(cfg Config) (*Processor, error) {
	if cfg.Secret == "" && !cfg.DevMode {
		return nil, fmt.Errorf("webhook secret is required outside dev mode")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		secret:   cfg.Secret,
		records:  cfg.Records,
		payments: cfg.Payments,
		logger:   logger,
		metrics:  cfg.Metrics,
		devMode:  cfg.DevMode,
		now:      now,
	}, nil
}

// VerifySignature checks the provider's HMAC-SHA256 hex signature over the
// raw body. Comparison is constant-time.
func (p *Processor) VerifySignature(body []byte, signature string) error {
	if p.secret == "" {
		if p.devMode {
			return nil
		}
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrBadSignature
	}
	return nil
}

// Process verifies and applies a webhook payload, returning one result per
// event. Event failures do not abort the batch.
func (p *Processor) Process(ctx context.Context, body []byte, signature string) ([]EventResult, error) {
	if err := p.VerifySignature(body, signature); err != nil {
		return nil, err
	}

	var in payload
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("webhook: decode payload: %w", err)
	}
	if len(in.Events) > MaxEvents {
		return nil, ErrTooManyEvents
	}

	results := make([]EventResult, 0, len(in.Events))
	for _, event := range in.Events {
		results = append(results, p.processEvent(ctx, event))
	}
	return results, nil
}

func (p *Processor) processEvent(ctx context.Context, event Event) EventResult {
	ctx, cancel := context.WithTimeout(ctx, EventTimeout)
	defer cancel()

	key := event.ResourceType + "." + event.Action
	result := EventResult{EventID: event.ID, Status: "processed"}

	var err error
	switch key {
	case "payments.confirmed":
		err = p.handlePaymentConfirmed(ctx, event)
	case "mandates.active":
		err = p.handleMandateActive(ctx, event)
	case "billing_requests.fulfilled":
		// Legacy shape of mandate activation from older provider API versions.
		err = p.handleMandateActive(ctx, event)
	case "subscriptions.payment_created":
		err = p.handleSubscriptionPayment(ctx, event)
	case "subscriptions.created":
		err = p.handleSubscriptionCreated(ctx, event)
	case "subscriptions.cancelled":
		err = p.handleSubscriptionCancelled(ctx, event)
	default:
		result.Status = "ignored"
		result.Detail = key
	}

	if err != nil {
		p.logger.Error("webhook event failed", "event", key, "id", event.ID, "error", err)
		result.Status = "error"
		result.Detail = err.Error()
	}
	if p.metrics != nil {
		p.metrics.WebhookEvents.WithLabelValues(key, result.Status).Inc()
	}
	return result
}

// handlePaymentConfirmed marks the signing fee paid and moves a pending
// record to incomplete. Re-delivery is a no-op.
func (p *Processor) handlePaymentConfirmed(ctx context.Context, event Event) error {
	record, err := p.findRecord(ctx, event)
	if err != nil {
		return err
	}
	changed := false
	if record.SigningFeePaid != models.FlagYes {
		record.SigningFeePaid = models.FlagYes
		record.PaymentConfirmedAt = p.now().UTC()
		changed = true
	}
	if event.Links.Payment != "" && record.PaymentID == "" {
		record.PaymentID = event.Links.Payment
		changed = true
	}
	if record.Status == models.StatusPending {
		record.Status = models.StatusIncomplete
		changed = true
	}
	if !changed {
		return nil
	}
	return p.save(ctx, record)
}

// handleMandateActive is the activation path: mandate authorised, sibling
// discount applied, subscriptions scheduled, record activated. Safe to
// re-deliver; existing subscriptions are never recreated.
func (p *Processor) handleMandateActive(ctx context.Context, event Event) error {
	record, err := p.findRecord(ctx, event)
	if err != nil {
		return err
	}

	if record.MandateAuthorised != models.FlagYes {
		record.MandateAuthorised = models.FlagYes
	}
	if event.Links.Mandate != "" && record.MandateID == "" {
		record.MandateID = event.Links.Mandate
	}

	if record.SiblingDiscount != models.FlagYes {
		siblings, err := p.records.FindActiveSiblings(ctx, record.ParentFullName, record.PlayerLastName(), record.BillingRequestID)
		switch {
		case err != nil && !errors.Is(err, records.ErrNotFound):
			// Activation proceeds at full price rather than blocking on the
			// lookup; the discount can be applied manually later.
			p.logger.Warn("sibling lookup failed, activating without discount",
				"billing_request", record.BillingRequestID, "error", err)
		case len(siblings) > 0:
			record.MonthlyAmount = roundPounds(record.MonthlyAmount * SiblingDiscountFactor)
			record.SiblingDiscount = models.FlagYes
		}
	}

	if record.SubscriptionID == "" {
		if err := p.createSubscriptions(ctx, record); err != nil {
			// Persist the mandate state before surfacing the failure so a
			// re-delivery resumes from subscription creation.
			if saveErr := p.save(ctx, record); saveErr != nil {
				return fmt.Errorf("create subscriptions: %w (save: %v)", err, saveErr)
			}
			return fmt.Errorf("create subscriptions: %w", err)
		}
	}

	record.SubscriptionActive = models.FlagYes
	record.Status = models.StatusActive
	return p.save(ctx, record)
}

func (p *Processor) createSubscriptions(ctx context.Context, record *models.RegistrationRecord) error {
	plan, err := subscription.Compute(p.now().UTC(), record.PreferredPaymentDay, record.MonthlyAmount)
	if err != nil {
		return err
	}

	amountPence := int(math.Round(record.MonthlyAmount * 100))
	metadata := map[string]string{
		"billing_request_id": record.BillingRequestID,
		"player_name":        record.PlayerFullName,
	}

	if plan.CreateInterim && record.InterimSubID == "" {
		interim, err := p.payments.CreateSubscription(ctx, payments.SubscriptionParams{
			MandateID:   record.MandateID,
			AmountPence: amountPence,
			DayOfMonth:  plan.InterimStart.Day(),
			StartDate:   plan.InterimStart,
			Count:       1,
			Metadata:    metadata,
		})
		if err != nil {
			return fmt.Errorf("interim subscription: %w", err)
		}
		record.InterimSubID = interim.ID
		record.InterimStart = plan.InterimStart.Format("2006-01-02")
		record.InterimEnd = plan.InterimEnd.Format("2006-01-02")
	}

	ongoing, err := p.payments.CreateSubscription(ctx, payments.SubscriptionParams{
		MandateID:   record.MandateID,
		AmountPence: amountPence,
		DayOfMonth:  record.PreferredPaymentDay,
		StartDate:   plan.OngoingStart,
		EndDate:     plan.EndDate,
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("ongoing subscription: %w", err)
	}
	record.SubscriptionID = ongoing.ID
	return nil
}

// seasonMonths are the collection months a season covers, September through
// May.
var seasonMonths = map[time.Month]bool{
	time.September: true, time.October: true, time.November: true,
	time.December: true, time.January: true, time.February: true,
	time.March: true, time.April: true, time.May: true,
}

// handleSubscriptionPayment marks the event's month paid on the record. The
// provider timestamp wins over the wall clock so a retried or late-delivered
// event still lands on the month the payment was collected.
func (p *Processor) handleSubscriptionPayment(ctx context.Context, event Event) error {
	record, err := p.findRecord(ctx, event)
	if err != nil {
		return err
	}
	when := event.CreatedAt
	if when.IsZero() {
		when = p.now()
	}
	when = when.UTC()
	if !seasonMonths[when.Month()] {
		return nil
	}
	key := strings.ToLower(when.Month().String()) + "_" + fmt.Sprintf("%d", when.Year())
	if record.PaymentMonths == nil {
		record.PaymentMonths = map[string]string{}
	}
	if record.PaymentMonths[key] == "paid" {
		return nil
	}
	record.PaymentMonths[key] = "paid"
	return p.save(ctx, record)
}

func (p *Processor) handleSubscriptionCreated(ctx context.Context, event Event) error {
	if event.Links.Subscription == "" {
		return nil
	}
	record, err := p.findRecord(ctx, event)
	if err != nil {
		return err
	}
	if record.SubscriptionID == event.Links.Subscription || record.InterimSubID == event.Links.Subscription {
		return nil
	}
	if record.SubscriptionID == "" {
		record.SubscriptionID = event.Links.Subscription
		return p.save(ctx, record)
	}
	return nil
}

// handleSubscriptionCancelled suspends the record when its ongoing
// subscription stops. Interim cancellations are expected and ignored.
func (p *Processor) handleSubscriptionCancelled(ctx context.Context, event Event) error {
	record, err := p.findRecord(ctx, event)
	if err != nil {
		return err
	}
	if event.Links.Subscription != "" && event.Links.Subscription == record.InterimSubID {
		return nil
	}
	if record.Status != models.StatusActive {
		return nil
	}
	record.SubscriptionActive = models.FlagNo
	record.Status = models.StatusSuspended
	return p.save(ctx, record)
}

// findRecord resolves the registration record an event refers to, through the
// billing request link or metadata.
func (p *Processor) findRecord(ctx context.Context, event Event) (*models.RegistrationRecord, error) {
	id := event.Links.BillingRequest
	if id == "" {
		id = event.Metadata["billing_request_id"]
	}
	if id == "" {
		return nil, fmt.Errorf("event %s has no billing request reference", event.ID)
	}
	record, err := p.records.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}
	return record, nil
}

func (p *Processor) save(ctx context.Context, record *models.RegistrationRecord) error {
	record.UpdatedAt = p.now().UTC()
	if err := p.records.Save(ctx, record); err != nil {
		return fmt.Errorf("save record %s: %w", record.BillingRequestID, err)
	}
	return nil
}

func roundPounds(v float64) float64 {
	return math.Round(v*100) / 100
}
