// Package tools implements the registry tools the model may call during a
// registration turn: input validation, record-table reads and writes, payment
// setup, SMS delivery, and the photo upload.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/regdesk/regdesk/internal/adapters/addresslookup"
	"github.com/regdesk/regdesk/internal/adapters/objectstore"
	"github.com/regdesk/regdesk/internal/adapters/payments"
	"github.com/regdesk/regdesk/internal/adapters/sms"
	"github.com/regdesk/regdesk/internal/agent"
	"github.com/regdesk/regdesk/internal/observability"
	"github.com/regdesk/regdesk/internal/records"
)

// Per-call deadlines. The photo tool gets longer because it re-encodes and
// uploads the image in one call.
const (
	defaultTimeout = 20 * time.Second
	photoTimeout   = 60 * time.Second
)

// Deps carries the adapters and policy values the tools need.
type Deps struct {
	Records  records.Store
	Payments payments.Client
	SMS      sms.Sender
	Lookup   addresslookup.Lookup
	Photos   objectstore.Store
	Logger   *observability.Logger

	// Season is the current season code, e.g. "2526".
	Season string
	// SeasonStartYear anchors the 31-August age-group cutoff, e.g. 2025.
	SeasonStartYear int

	MonthlyPounds    float64
	SigningFeePounds float64

	// AllowedPostcodeAreas restricts address_validation to the club's
	// catchment. Empty allows any UK address.
	AllowedPostcodeAreas []string
}

// RegisterAll registers every tool on the registry.
func RegisterAll(registry *agent.ToolRegistry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	all := []agent.Tool{
		&personNameValidation{},
		&childDOBValidation{seasonStartYear: deps.SeasonStartYear},
		&medicalIssuesValidation{},
		&addressValidation{allowedAreas: deps.AllowedPostcodeAreas},
		&addressLookup{lookup: deps.Lookup},
		&checkRecordExists{records: deps.Records, logger: deps.Logger},
		&checkKitNeeded{records: deps.Records},
		&checkShirtNumber{records: deps.Records},
		&updateRegDetails{records: deps.Records},
		&updateKitDetails{records: deps.Records},
		&updatePhotoLink{records: deps.Records},
		&createPaymentToken{payments: deps.Payments, monthly: deps.MonthlyPounds, signingFee: deps.SigningFeePounds},
		&createSignupPaymentLink{payments: deps.Payments},
		&sendSMSPaymentLink{sms: deps.SMS},
		&uploadPhoto{photos: deps.Photos, season: deps.Season},
	}
	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func ok(v any) (*agent.ToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return fail("internal", "encode result: "+err.Error())
	}
	return &agent.ToolResult{Content: string(b)}, nil
}

func fail(kind, msg string) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: msg, IsError: true, ErrKind: kind}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
