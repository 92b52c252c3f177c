// Package addresslookup resolves a UK postcode plus house name or number to a
// formatted postal address.
package addresslookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/regdesk/regdesk/internal/retry"
)

var (
	// ErrNotFound is returned when the postcode or house cannot be matched.
	// Callers fall through to manual address entry.
	ErrNotFound = errors.New("addresslookup: address not found")

	// ErrUnavailable wraps transport failures and provider 5xx responses.
	// Callers also fall through to manual entry rather than blocking the flow.
	ErrUnavailable = errors.New("addresslookup: provider unavailable")
)

// Config configures the lookup provider client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Match confidence levels. High means the house token matched exactly,
// medium a prefix match (house names, "12a" for "12"), low a single-candidate
// fallback the parent should be asked to confirm.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Address is a resolved postal address.
type Address struct {
	Formatted  string
	Components []string
	Confidence string
}

// Lookup resolves addresses.
type Lookup interface {
	// Find returns the single address matching postcode and house.
	Find(ctx context.Context, postcode, house string) (*Address, error)

	// Health probes provider reachability for the /health endpoint.
	Health(ctx context.Context) error
}

// HTTPLookup talks to the lookup provider's REST API.
type HTTPLookup struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewHTTPLookup creates a lookup client.
func NewHTTPLookup(cfg Config) (*HTTPLookup, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("address lookup api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.getaddress.io"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLookup{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type findResponse struct {
	Addresses []string `json:"addresses"`
	Postcode  string   `json:"postcode"`
}

func (l *HTTPLookup) Find(ctx context.Context, postcode, house string) (*Address, error) {
	postcode = strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
	if postcode == "" || house == "" {
		return nil, retry.Permanent(fmt.Errorf("%w: postcode and house are required", ErrNotFound))
	}

	endpoint := fmt.Sprintf("%s/find/%s?api-key=%s&expand=false",
		l.baseURL, url.PathEscape(postcode), url.QueryEscape(l.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, retry.Permanent(fmt.Errorf("lookup rejected: status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	var out findResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	match, confidence := matchHouse(out.Addresses, house)
	if match == "" {
		return nil, ErrNotFound
	}
	pc := out.Postcode
	if pc == "" {
		pc = postcode
	}
	components := append(splitComponents(match), pc)
	return &Address{
		Formatted:  strings.Join(components, ", "),
		Components: components,
		Confidence: confidence,
	}, nil
}

func (l *HTTPLookup) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// matchHouse picks the address line whose leading token matches the house
// name or number, with a confidence level. Provider lines look like
// "12 High Street, , , Townsville".
func matchHouse(addresses []string, house string) (string, string) {
	want := strings.ToLower(strings.TrimSpace(house))
	var prefix, loose string
	for _, addr := range addresses {
		first := addr
		if i := strings.IndexByte(addr, ','); i >= 0 {
			first = addr[:i]
		}
		first = strings.ToLower(strings.TrimSpace(first))
		switch {
		case first == want || strings.HasPrefix(first, want+" "):
			return addr, ConfidenceHigh
		case prefix == "" && strings.HasPrefix(first, want):
			prefix = addr
		case loose == "" && strings.Contains(strings.ToLower(addr), want):
			loose = addr
		}
	}
	if prefix != "" {
		return prefix, ConfidenceMedium
	}
	if loose != "" {
		return loose, ConfidenceLow
	}
	return "", ""
}

func splitComponents(addr string) []string {
	parts := strings.Split(addr, ",")
	kept := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return kept
}
