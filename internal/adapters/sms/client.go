// Package sms sends the payment link text message to the parent's mobile.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/regdesk/regdesk/internal/retry"
)

// ErrGatewayUnavailable wraps transport failures and gateway 5xx responses.
var ErrGatewayUnavailable = errors.New("sms: gateway unavailable")

// Config configures the SMS gateway client.
type Config struct {
	APIKey  string
	Sender  string
	BaseURL string
	Timeout time.Duration
}

// Sender delivers text messages.
type Sender interface {
	// Send delivers one message to a UK mobile number in 07 format and
	// returns the gateway message id.
	Send(ctx context.Context, to, body string) (string, error)

	// Health probes gateway reachability for the /health endpoint.
	Health(ctx context.Context) error
}

// HTTPSender talks to the gateway's REST API.
type HTTPSender struct {
	apiKey     string
	sender     string
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSender creates an SMS gateway client.
func NewHTTPSender(cfg Config) (*HTTPSender, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sms api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.textlocal.com"
	}
	sender := cfg.Sender
	if sender == "" {
		sender = "FOOTBALL"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		apiKey:     cfg.APIKey,
		sender:     sender,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPSender) Send(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"to":     to,
		"from":   s.sender,
		"body":   body,
		"apikey": s.apiKey,
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/messages", bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("sms gateway rate limited: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", retry.Permanent(fmt.Errorf("sms gateway rejected message: status %d", resp.StatusCode))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.ID == "" {
		return uuid.NewString(), nil
	}
	return out.ID, nil
}

func (s *HTTPSender) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v2/status", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	return nil
}
