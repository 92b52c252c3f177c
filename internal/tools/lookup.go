package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/regdesk/regdesk/internal/adapters/addresslookup"
	"github.com/regdesk/regdesk/internal/agent"
)

type addressLookup struct {
	lookup addresslookup.Lookup
}

func (t *addressLookup) Name() string { return "address_lookup" }
func (t *addressLookup) Description() string {
	return "Looks up the full address for a UK postcode and house number or name through the address service."
}
func (t *addressLookup) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"postcode": {"type": "string", "description": "UK postcode"},
			"house": {"type": "string", "description": "House number or name"}
		},
		"required": ["postcode", "house"],
		"additionalProperties": false
	}`)
}

func (t *addressLookup) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Postcode string `json:"postcode"`
		House    string `json:"house"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}
	postcode := strings.ToUpper(strings.TrimSpace(in.Postcode))
	house := strings.TrimSpace(in.House)
	if postcode == "" || house == "" {
		return fail("invalid_params", "both postcode and house are required")
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	addr, err := t.lookup.Find(ctx, postcode, house)
	if err != nil {
		if errors.Is(err, addresslookup.ErrNotFound) {
			return fail("not_found", "no address matched that postcode and house")
		}
		return fail("provider_unavailable", "the address service is not responding; the address can be typed manually instead")
	}

	return ok(map[string]any{
		"formatted_address": addr.Formatted,
		"components":        addr.Components,
		"confidence":        addr.Confidence,
	})
}
