// Package payments is the adapter to the direct debit provider. It creates
// billing requests (the one-off signing fee plus mandate authorisation) and
// the monthly subscriptions collected against that mandate.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/regdesk/regdesk/internal/retry"
)

// ErrProviderUnavailable wraps transport failures and provider 5xx responses.
var ErrProviderUnavailable = errors.New("payments: provider unavailable")

// Config configures the provider client.
type Config struct {
	AccessToken string
	Environment string // sandbox | live
	BaseURL     string
	Timeout     time.Duration
}

// BillingRequest is the provider object that carries the signing fee payment
// and the mandate authorisation in a single hosted flow.
type BillingRequest struct {
	ID         string
	PaymentURL string
}

// SubscriptionParams describes one subscription to create on a mandate.
type SubscriptionParams struct {
	MandateID   string
	AmountPence int
	// DayOfMonth is 1..28 or -1 for the last day of the month.
	DayOfMonth int
	StartDate  time.Time
	EndDate    time.Time
	// Count limits the number of collections; zero means run to EndDate.
	Count    int
	Metadata map[string]string
}

// Subscription is the created provider subscription.
type Subscription struct {
	ID        string
	Status    string
	StartDate time.Time
}

// Client is the provider contract the tools and webhook processor consume.
type Client interface {
	// CreateBillingRequest opens a hosted payment flow for the signing fee
	// and mandate. The returned URL is sent to the parent by SMS.
	CreateBillingRequest(ctx context.Context, amountPence int, description string, metadata map[string]string) (*BillingRequest, error)

	// CreatePaymentURL opens a fresh hosted flow for an existing billing
	// request, for resent links and the persistent /reg_setup redirect.
	CreatePaymentURL(ctx context.Context, billingRequestID string) (string, error)

	// CreateSubscription creates a monthly collection schedule on a mandate.
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)

	// CancelSubscription stops an existing subscription.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// Health probes provider reachability for the /health endpoint.
	Health(ctx context.Context) error
}

// HTTPClient talks to the provider's REST API.
type HTTPClient struct {
	baseURL     string
	accessToken string
	environment string
	httpClient  *http.Client
}

// NewHTTPClient creates a provider client.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("payments access token is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Environment == "live" {
			baseURL = "https://api.gocardless.com"
		} else {
			baseURL = "https://api-sandbox.gocardless.com"
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		environment: cfg.Environment,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

type billingRequestBody struct {
	BillingRequests struct {
		PaymentRequest struct {
			Description string `json:"description"`
			Amount      int    `json:"amount"`
			Currency    string `json:"currency"`
		} `json:"payment_request"`
		MandateRequest struct {
			Scheme string `json:"scheme"`
		} `json:"mandate_request"`
		Metadata map[string]string `json:"metadata,omitempty"`
	} `json:"billing_requests"`
}

type billingRequestResponse struct {
	BillingRequests struct {
		ID string `json:"id"`
	} `json:"billing_requests"`
}

type billingRequestFlowResponse struct {
	BillingRequestFlows struct {
		AuthorisationURL string `json:"authorisation_url"`
	} `json:"billing_request_flows"`
}

func (c *HTTPClient) CreateBillingRequest(ctx context.Context, amountPence int, description string, metadata map[string]string) (*BillingRequest, error) {
	var body billingRequestBody
	body.BillingRequests.PaymentRequest.Description = description
	body.BillingRequests.PaymentRequest.Amount = amountPence
	body.BillingRequests.PaymentRequest.Currency = "GBP"
	body.BillingRequests.MandateRequest.Scheme = "bacs"
	body.BillingRequests.Metadata = metadata

	var created billingRequestResponse
	if err := c.doJSON(ctx, http.MethodPost, "/billing_requests", body, &created); err != nil {
		return nil, err
	}
	if created.BillingRequests.ID == "" {
		return nil, retry.Permanent(fmt.Errorf("provider returned empty billing request id"))
	}

	url, err := c.CreatePaymentURL(ctx, created.BillingRequests.ID)
	if err != nil {
		return nil, err
	}

	return &BillingRequest{
		ID:         created.BillingRequests.ID,
		PaymentURL: url,
	}, nil
}

func (c *HTTPClient) CreatePaymentURL(ctx context.Context, billingRequestID string) (string, error) {
	if billingRequestID == "" {
		return "", retry.Permanent(fmt.Errorf("billing request id is required"))
	}
	flowBody := map[string]any{
		"billing_request_flows": map[string]any{
			"links": map[string]string{"billing_request": billingRequestID},
		},
	}
	var flow billingRequestFlowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/billing_request_flows", flowBody, &flow); err != nil {
		return "", err
	}
	return flow.BillingRequestFlows.AuthorisationURL, nil
}

type subscriptionResponse struct {
	Subscriptions struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		StartDate string `json:"start_date"`
	} `json:"subscriptions"`
}

func (c *HTTPClient) CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error) {
	if params.MandateID == "" {
		return nil, retry.Permanent(fmt.Errorf("mandate id is required"))
	}
	sub := map[string]any{
		"amount":         params.AmountPence,
		"currency":       "GBP",
		"interval_unit":  "monthly",
		"start_date":     params.StartDate.Format("2006-01-02"),
		"links":          map[string]string{"mandate": params.MandateID},
	}
	if params.DayOfMonth == -1 {
		sub["day_of_month"] = -1
	} else if params.DayOfMonth > 0 {
		sub["day_of_month"] = params.DayOfMonth
	}
	if params.Count > 0 {
		sub["count"] = params.Count
	} else if !params.EndDate.IsZero() {
		sub["end_date"] = params.EndDate.Format("2006-01-02")
	}
	if len(params.Metadata) > 0 {
		sub["metadata"] = params.Metadata
	}

	var out subscriptionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/subscriptions", map[string]any{"subscriptions": sub}, &out); err != nil {
		return nil, err
	}
	start, _ := time.Parse("2006-01-02", out.Subscriptions.StartDate)
	return &Subscription{
		ID:        out.Subscriptions.ID,
		Status:    out.Subscriptions.Status,
		StartDate: start,
	}, nil
}

func (c *HTTPClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	path := fmt.Sprintf("/subscriptions/%s/actions/cancel", subscriptionID)
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{}, nil)
}

func (c *HTTPClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/creditors", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("provider rate limited: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return retry.Permanent(fmt.Errorf("provider rejected request: status %d: %s", resp.StatusCode, truncate(raw, 200)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("GoCardless-Version", "2015-07-06")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
