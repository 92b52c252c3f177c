package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/regdesk/regdesk/internal/agent"
	"github.com/regdesk/regdesk/internal/routine"
)

// ---- person_name_validation ----

var nameTokenRe = regexp.MustCompile(`^[A-Za-z][A-Za-z\-']*$`)

// apostropheFolder maps curly apostrophes to straight ones before validation.
var apostropheFolder = strings.NewReplacer("‘", "'", "’", "'", "ʼ", "'")

type personNameValidation struct{}

func (t *personNameValidation) Name() string { return "person_name_validation" }
func (t *personNameValidation) Description() string {
	return "Validates a person's full name: at least a first and last name, letters, hyphens and apostrophes only. Returns the normalized form."
}
func (t *personNameValidation) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "The full name as the user typed it"}
		},
		"required": ["name"],
		"additionalProperties": false
	}`)
}

func (t *personNameValidation) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}

	folded := apostropheFolder.Replace(in.Name)
	tokens := strings.Fields(folded)
	if len(tokens) < 2 {
		return fail("too_few_tokens", "a first and last name are both needed")
	}
	normalized := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 2 {
			return fail("too_few_tokens", fmt.Sprintf("%q is too short to be a name", tok))
		}
		if !nameTokenRe.MatchString(tok) {
			return fail("invalid_chars", fmt.Sprintf("%q contains characters that are not allowed in a name", tok))
		}
		normalized = append(normalized, strings.ToUpper(tok[:1])+tok[1:])
	}

	return ok(map[string]any{
		"valid":      true,
		"normalized": strings.Join(normalized, " "),
	})
}

// ---- child_dob_validation ----

// dobLayouts are the date shapes parents actually type.
var dobLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2006-01-02",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

const minBirthYear = 2007

type childDOBValidation struct {
	seasonStartYear int
}

func (t *childDOBValidation) Name() string { return "child_dob_validation" }
func (t *childDOBValidation) Description() string {
	return "Validates the child's date of birth, normalizes it to DD-MM-YYYY, and computes the age group for the season."
}
func (t *childDOBValidation) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"dob": {"type": "string", "description": "The date of birth as the user typed it"}
		},
		"required": ["dob"],
		"additionalProperties": false
	}`)
}

func (t *childDOBValidation) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		DOB string `json:"dob"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}

	dob, err := parseDOB(strings.TrimSpace(in.DOB))
	if err != nil {
		return fail("unparseable", "the date could not be understood; formats like 12-03-2017 work best")
	}
	if dob.After(time.Now()) {
		return fail("in_future", "the date of birth is in the future")
	}
	if dob.Year() < minBirthYear {
		return fail("too_old", fmt.Sprintf("players must be born in %d or later", minBirthYear))
	}

	return ok(map[string]any{
		"valid":      true,
		"iso_date":   dob.Format("02-01-2006"),
		"birth_year": dob.Year(),
		"age_group":  routine.AgeGroup(dob, t.seasonStartYear),
	})
}

func parseDOB(s string) (time.Time, error) {
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ---- medical_issues_validation ----

// criticalConditions require an explicit follow-up before the step completes.
var criticalConditions = []string{
	"asthma", "epilepsy", "diabetes", "anaphylaxis", "seizure",
	"heart", "allergy", "allergic",
}

type medicalIssuesValidation struct{}

func (t *medicalIssuesValidation) Name() string { return "medical_issues_validation" }
func (t *medicalIssuesValidation) Description() string {
	return "Validates the medical conditions answer. Serious conditions need a follow-up question about management before the step can complete."
}
func (t *medicalIssuesValidation) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"answer": {"type": "string", "description": "yes or no"},
			"details": {"type": "string", "description": "The conditions listed, if any"},
			"followup_details": {"type": "string", "description": "The parent's answer to the management follow-up question"}
		},
		"required": ["answer"],
		"additionalProperties": false
	}`)
}

func (t *medicalIssuesValidation) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Answer          string `json:"answer"`
		Details         string `json:"details"`
		FollowupDetails string `json:"followup_details"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}

	answer := strings.ToLower(strings.TrimSpace(in.Answer))
	if answer == "no" || answer == "none" || answer == "n" {
		return ok(map[string]any{"valid": true, "conditions": ""})
	}

	conditions := normalizeConditionList(in.Details)
	if conditions == "" {
		return fail("needs_followup", "ask which conditions or allergies the child has")
	}
	if critical := firstCritical(conditions); critical != "" && strings.TrimSpace(in.FollowupDetails) == "" {
		return fail("needs_followup",
			fmt.Sprintf("ask how %s is managed and whether the coaches need to do anything during sessions", critical))
	}

	out := map[string]any{"valid": true, "conditions": conditions}
	if strings.TrimSpace(in.FollowupDetails) != "" {
		out["management"] = strings.TrimSpace(in.FollowupDetails)
	}
	return ok(out)
}

func normalizeConditionList(details string) string {
	details = strings.ToLower(details)
	details = strings.ReplaceAll(details, " and ", ",")
	details = strings.ReplaceAll(details, ";", ",")
	var parts []string
	for _, p := range strings.Split(details, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func firstCritical(conditions string) string {
	for _, c := range criticalConditions {
		if strings.Contains(conditions, c) {
			return c
		}
	}
	return ""
}

// ---- address_validation ----

var ukPostcodeRe = regexp.MustCompile(`(?i)\b([A-Z]{1,2})[0-9][0-9A-Z]?\s*[0-9][A-Z]{2}\b`)

type addressValidation struct {
	allowedAreas []string
}

func (t *addressValidation) Name() string { return "address_validation" }
func (t *addressValidation) Description() string {
	return "Validates a manually typed UK address: needs a street line, a town and a postcode within the club's area."
}
func (t *addressValidation) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"address": {"type": "string", "description": "The full address, comma separated"}
		},
		"required": ["address"],
		"additionalProperties": false
	}`)
}

func (t *addressValidation) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}

	raw := strings.ReplaceAll(in.Address, "\n", ",")
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return fail("incomplete", "the address needs at least a street line, a town and a postcode")
	}

	match := ukPostcodeRe.FindStringSubmatch(raw)
	if match == nil {
		return fail("incomplete", "the address is missing a UK postcode")
	}
	if len(t.allowedAreas) > 0 {
		area := strings.ToUpper(match[1])
		found := false
		for _, allowed := range t.allowedAreas {
			if strings.EqualFold(allowed, area) {
				found = true
				break
			}
		}
		if !found {
			return fail("out_of_area", "the postcode is outside the club's catchment area")
		}
	}

	return ok(map[string]any{
		"valid":             true,
		"formatted_address": strings.Join(parts, ", "),
	})
}
