package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func decodeResult(t *testing.T, content string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		t.Fatalf("decode result %q: %v", content, err)
	}
	return out
}

func TestPersonNameValidation(t *testing.T) {
	tool := &personNameValidation{}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"name": "sarah o’brien"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s %s", res.ErrKind, res.Content)
	}
	out := decodeResult(t, res.Content)
	if out["normalized"] != "Sarah O'brien" {
		t.Fatalf("normalized = %q", out["normalized"])
	}

	cases := []struct {
		name string
		kind string
	}{
		{"Madonna", "too_few_tokens"},
		{"J Smith", "too_few_tokens"},
		{"John Sm1th", "invalid_chars"},
		{"John <script>", "invalid_chars"},
	}
	for _, tc := range cases {
		params, _ := json.Marshal(map[string]string{"name": tc.name})
		res, err := tool.Execute(context.Background(), params)
		if err != nil {
			t.Fatalf("Execute(%q) error = %v", tc.name, err)
		}
		if !res.IsError || res.ErrKind != tc.kind {
			t.Fatalf("Execute(%q) = %+v, want kind %s", tc.name, res, tc.kind)
		}
	}
}

func TestChildDOBValidation(t *testing.T) {
	tool := &childDOBValidation{seasonStartYear: 2025}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"dob": "12/03/2017"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s %s", res.ErrKind, res.Content)
	}
	out := decodeResult(t, res.Content)
	if out["iso_date"] != "12-03-2017" {
		t.Fatalf("iso_date = %q", out["iso_date"])
	}
	if out["age_group"] != "U9" {
		t.Fatalf("age_group = %q", out["age_group"])
	}

	for dob, kind := range map[string]string{
		"not a date": "unparseable",
		"01-01-2999": "in_future",
		"15-06-2001": "too_old",
	} {
		params, _ := json.Marshal(map[string]string{"dob": dob})
		res, err := tool.Execute(context.Background(), params)
		if err != nil {
			t.Fatalf("Execute(%q) error = %v", dob, err)
		}
		if !res.IsError || res.ErrKind != kind {
			t.Fatalf("Execute(%q) kind = %q, want %q", dob, res.ErrKind, kind)
		}
	}
}

func TestMedicalIssuesValidation(t *testing.T) {
	tool := &medicalIssuesValidation{}

	res, _ := tool.Execute(context.Background(), json.RawMessage(`{"answer": "no"}`))
	if res.IsError {
		t.Fatalf("plain no must pass: %s", res.Content)
	}

	res, _ = tool.Execute(context.Background(), json.RawMessage(`{"answer": "yes", "details": "asthma"}`))
	if !res.IsError || res.ErrKind != "needs_followup" {
		t.Fatalf("asthma without management = %+v, want needs_followup", res)
	}

	res, _ = tool.Execute(context.Background(),
		json.RawMessage(`{"answer": "yes", "details": "Asthma and hayfever", "followup_details": "inhaler in kit bag"}`))
	if res.IsError {
		t.Fatalf("asthma with management must pass: %s", res.Content)
	}
	out := decodeResult(t, res.Content)
	if out["conditions"] != "asthma, hayfever" {
		t.Fatalf("conditions = %q", out["conditions"])
	}
}

func TestAddressValidation(t *testing.T) {
	tool := &addressValidation{allowedAreas: []string{"LS", "BD"}}

	res, _ := tool.Execute(context.Background(),
		json.RawMessage(`{"address": "14 Mill Lane, Leeds, LS6 2AB"}`))
	if res.IsError {
		t.Fatalf("in-area address rejected: %s %s", res.ErrKind, res.Content)
	}

	res, _ = tool.Execute(context.Background(),
		json.RawMessage(`{"address": "1 High Street, London, SW1A 1AA"}`))
	if !res.IsError || res.ErrKind != "out_of_area" {
		t.Fatalf("out-of-area = %+v, want out_of_area", res)
	}

	res, _ = tool.Execute(context.Background(), json.RawMessage(`{"address": "just a street"}`))
	if !res.IsError || res.ErrKind != "incomplete" {
		t.Fatalf("short address = %+v, want incomplete", res)
	}

	res, _ = tool.Execute(context.Background(), json.RawMessage(`{"address": "14 Mill Lane, Leeds"}`))
	if !res.IsError || res.ErrKind != "incomplete" {
		t.Fatalf("missing postcode = %+v, want incomplete", res)
	}
}
