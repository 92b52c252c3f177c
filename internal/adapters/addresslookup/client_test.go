package addresslookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/regdesk/regdesk/internal/retry"
)

func newTestLookup(t *testing.T, handler http.HandlerFunc) *HTTPLookup {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	lookup, err := NewHTTPLookup(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPLookup() error = %v", err)
	}
	return lookup
}

func TestFindMatchesHouseNumber(t *testing.T) {
	lookup := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"postcode": "AB1 2CD",
			"addresses": [
				"10 High Street, , , Townsville",
				"12 High Street, , , Townsville",
				"12a High Street, , , Townsville"
			]
		}`))
	})

	got, err := lookup.Find(context.Background(), "ab1 2cd", "12")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	want := "12 High Street, Townsville, AB1 2CD"
	if got.Formatted != want {
		t.Fatalf("Find() = %q, want %q", got.Formatted, want)
	}
	if got.Confidence != ConfidenceHigh {
		t.Fatalf("Confidence = %q, want %q", got.Confidence, ConfidenceHigh)
	}
	if len(got.Components) != 3 {
		t.Fatalf("Components = %v", got.Components)
	}
}

func TestFindHouseNamePrefix(t *testing.T) {
	lookup := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"postcode": "AB1 2CD",
			"addresses": ["12a High Street, , , Townsville"]
		}`))
	})

	got, err := lookup.Find(context.Background(), "AB1 2CD", "12a")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got.Confidence != ConfidenceHigh {
		t.Fatalf("Confidence = %q, want %q", got.Confidence, ConfidenceHigh)
	}
}

func TestFindNoMatchingHouse(t *testing.T) {
	lookup := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"addresses": ["10 High Street, , , Townsville"]}`))
	})

	_, err := lookup.Find(context.Background(), "AB1 2CD", "99")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Find() error = %v, want ErrNotFound", err)
	}
}

func TestFindUnknownPostcode(t *testing.T) {
	lookup := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := lookup.Find(context.Background(), "ZZ9 9ZZ", "1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Find() error = %v, want ErrNotFound", err)
	}
}

func TestFindProviderDown(t *testing.T) {
	lookup := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := lookup.Find(context.Background(), "AB1 2CD", "12")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Find() error = %v, want ErrUnavailable", err)
	}
	if !retry.IsRetryable(err) {
		t.Fatal("provider outages must be retryable")
	}
}

func TestFindBadRequestIsPermanent(t *testing.T) {
	lookup := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := lookup.Find(context.Background(), "AB1 2CD", "12")
	if err == nil {
		t.Fatal("Find() expected error")
	}
	if retry.IsRetryable(err) {
		t.Fatal("4xx responses must not be retried")
	}
}
