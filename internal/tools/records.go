package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/regdesk/regdesk/internal/agent"
	"github.com/regdesk/regdesk/internal/observability"
	"github.com/regdesk/regdesk/internal/records"
	"github.com/regdesk/regdesk/pkg/models"
)

// ---- check_if_record_exists_in_db ----

type checkRecordExists struct {
	records records.Store
	logger  *observability.Logger
}

func (t *checkRecordExists) Name() string { return "check_if_record_exists_in_db" }
func (t *checkRecordExists) Description() string {
	return "Checks the record table for a returning player by parent and child full names. Returns the record id and last-season status when found."
}
func (t *checkRecordExists) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"parent_name": {"type": "string", "description": "Parent or guardian full name"},
			"child_name": {"type": "string", "description": "Child full name"}
		},
		"required": ["parent_name", "child_name"],
		"additionalProperties": false
	}`)
}

func (t *checkRecordExists) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		ParentName string `json:"parent_name"`
		ChildName  string `json:"child_name"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	record, err := t.records.FindByParentChild(ctx, in.ParentName, in.ChildName)
	if errors.Is(err, records.ErrNotFound) {
		return ok(map[string]any{"found": false})
	}
	if err != nil {
		t.logger.Error("record lookup failed", "error", err)
		return fail("db_unavailable", "the record table is not reachable")
	}

	out := map[string]any{
		"found":              true,
		"record_id":          record.BillingRequestID,
		"played_last_season": string(record.PlayedLastSeason),
		"team":               record.Team,
		"age_group":          record.AgeGroup,
	}
	if record.PlayedLastSeason == models.FlagYes && record.Team != "" {
		needed, err := t.records.KitNeeded(ctx, record.Team, record.AgeGroup)
		if err == nil {
			out["kit_needed"] = needed
		}
	}
	return ok(out)
}

// ---- check_if_kit_needed ----

type checkKitNeeded struct {
	records records.Store
}

func (t *checkKitNeeded) Name() string { return "check_if_kit_needed" }
func (t *checkKitNeeded) Description() string {
	return "Reports whether the team and age group issues new kit this season."
}
func (t *checkKitNeeded) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team": {"type": "string"},
			"age_group": {"type": "string", "description": "e.g. U10 or OpenAge"}
		},
		"required": ["team", "age_group"],
		"additionalProperties": false
	}`)
}

func (t *checkKitNeeded) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Team     string `json:"team"`
		AgeGroup string `json:"age_group"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	needed, err := t.records.KitNeeded(ctx, in.Team, in.AgeGroup)
	if errors.Is(err, records.ErrNotFound) {
		return fail("db_unavailable", "no team table row matches "+in.Team+" "+in.AgeGroup)
	}
	if err != nil {
		return fail("db_unavailable", "the team table is not reachable")
	}
	return ok(map[string]any{"kit_needed": needed})
}

// ---- check_shirt_number_availability ----

type checkShirtNumber struct {
	records records.Store
}

func (t *checkShirtNumber) Name() string { return "check_shirt_number_availability" }
func (t *checkShirtNumber) Description() string {
	return "Checks whether a shirt number between 1 and 25 is still free in the team and age group."
}
func (t *checkShirtNumber) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team": {"type": "string"},
			"age_group": {"type": "string"},
			"number": {"type": "integer", "description": "Requested shirt number"}
		},
		"required": ["team", "age_group", "number"],
		"additionalProperties": false
	}`)
}

func (t *checkShirtNumber) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Team     string `json:"team"`
		AgeGroup string `json:"age_group"`
		Number   int    `json:"number"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}
	if in.Number < 1 || in.Number > 25 {
		return fail("out_of_range", "shirt numbers run from 1 to 25")
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	conflicts, err := t.records.ShirtNumberConflicts(ctx, in.Team, in.AgeGroup, in.Number)
	if err != nil {
		return fail("db_unavailable", "the record table is not reachable")
	}
	return ok(map[string]any{
		"number":    in.Number,
		"available": conflicts == 0,
	})
}

// ---- update_reg_details_to_db ----

// regDetailsRequired are the fields a registration row cannot be written
// without.
var regDetailsRequired = []string{"parent_full_name", "parent_phone", "player_full_name", "player_dob", "team", "age_group"}

type updateRegDetails struct {
	records records.Store
}

func (t *updateRegDetails) Name() string { return "update_reg_details_to_db" }
func (t *updateRegDetails) Description() string {
	return "Writes the collected registration details to the record table, creating the row on first write."
}
func (t *updateRegDetails) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_id": {"type": "string", "description": "Existing record id, omit on first write"},
			"parent_full_name": {"type": "string"},
			"parent_phone": {"type": "string"},
			"parent_email": {"type": "string"},
			"parent_dob": {"type": "string"},
			"parent_address": {"type": "string"},
			"relationship": {"type": "string"},
			"player_full_name": {"type": "string"},
			"player_dob": {"type": "string"},
			"player_gender": {"type": "string"},
			"player_address": {"type": "string"},
			"player_phone": {"type": "string"},
			"player_email": {"type": "string"},
			"medical_notes": {"type": "string"},
			"team": {"type": "string"},
			"age_group": {"type": "string"},
			"season": {"type": "string"},
			"played_last_season": {"type": "string", "enum": ["Y", "N"]}
		},
		"required": ["parent_full_name", "parent_phone", "player_full_name", "player_dob", "team", "age_group"],
		"additionalProperties": false
	}`)
}

func (t *updateRegDetails) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in map[string]string
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}
	var missing []string
	for _, field := range regDetailsRequired {
		if strings.TrimSpace(in[field]) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fail("validation_failed", "missing required fields: "+strings.Join(missing, ", "))
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	action := "updated"
	var record *models.RegistrationRecord
	if id := strings.TrimSpace(in["record_id"]); id != "" {
		existing, err := t.records.Get(ctx, id)
		switch {
		case err == nil:
			record = existing
		case errors.Is(err, records.ErrNotFound):
			record = &models.RegistrationRecord{BillingRequestID: id, Status: models.StatusPending}
			action = "created"
		default:
			return fail("db_unavailable", "the record table is not reachable")
		}
	} else {
		record = &models.RegistrationRecord{
			BillingRequestID: "local_" + uuid.NewString(),
			Status:           models.StatusPending,
		}
		action = "created"
	}

	applyRegDetails(record, in)
	record.UpdatedAt = time.Now().UTC()

	if err := t.records.Save(ctx, record); err != nil {
		return fail("db_unavailable", "the record table rejected the write")
	}
	return ok(map[string]any{
		"record_id": record.BillingRequestID,
		"action":    action,
	})
}

func applyRegDetails(record *models.RegistrationRecord, in map[string]string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(in[key]); v != "" {
			*dst = v
		}
	}
	set(&record.ParentFullName, "parent_full_name")
	set(&record.ParentPhone, "parent_phone")
	set(&record.ParentEmail, "parent_email")
	set(&record.ParentDOB, "parent_dob")
	set(&record.ParentAddress, "parent_address")
	set(&record.Relationship, "relationship")
	set(&record.PlayerFullName, "player_full_name")
	set(&record.PlayerDOB, "player_dob")
	set(&record.PlayerGender, "player_gender")
	set(&record.PlayerAddress, "player_address")
	set(&record.PlayerPhone, "player_phone")
	set(&record.PlayerEmail, "player_email")
	set(&record.MedicalNotes, "medical_notes")
	set(&record.Team, "team")
	set(&record.AgeGroup, "age_group")
	set(&record.Season, "season")
	if v := in["played_last_season"]; v == "Y" || v == "N" {
		record.PlayedLastSeason = models.Flag(v)
	}
}

// ---- update_kit_details_to_db ----

type updateKitDetails struct {
	records records.Store
}

func (t *updateKitDetails) Name() string { return "update_kit_details_to_db" }
func (t *updateKitDetails) Description() string {
	return "Writes the chosen kit size, shirt number and kit type onto an existing registration record."
}
func (t *updateKitDetails) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_id": {"type": "string"},
			"kit_size": {"type": "string"},
			"shirt_number": {"type": "integer"},
			"kit_type": {"type": "string"}
		},
		"required": ["record_id", "kit_size"],
		"additionalProperties": false
	}`)
}

func (t *updateKitDetails) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		RecordID    string `json:"record_id"`
		KitSize     string `json:"kit_size"`
		ShirtNumber int    `json:"shirt_number"`
		KitType     string `json:"kit_type"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}
	if strings.TrimSpace(in.KitSize) == "" {
		return fail("validation_failed", "kit_size is required")
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	record, err := t.records.Get(ctx, in.RecordID)
	if errors.Is(err, records.ErrNotFound) {
		return fail("record_missing", "no record matches "+in.RecordID)
	}
	if err != nil {
		return fail("db_unavailable", "the record table is not reachable")
	}

	record.KitSize = strings.TrimSpace(in.KitSize)
	if in.ShirtNumber > 0 {
		record.ShirtNumber = in.ShirtNumber
	}
	if v := strings.TrimSpace(in.KitType); v != "" {
		record.KitType = v
	}
	record.UpdatedAt = time.Now().UTC()

	if err := t.records.Save(ctx, record); err != nil {
		return fail("db_unavailable", "the record table rejected the write")
	}
	return ok(map[string]any{"record_id": record.BillingRequestID, "action": "updated"})
}

// ---- update_photo_link_to_db ----

type updatePhotoLink struct {
	records records.Store
}

func (t *updatePhotoLink) Name() string { return "update_photo_link_to_db" }
func (t *updatePhotoLink) Description() string {
	return "Stores the uploaded photo URL on the registration record, together with the conversation snapshot."
}
func (t *updatePhotoLink) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_id": {"type": "string"},
			"photo_url": {"type": "string"},
			"conversation_json": {"type": "string", "description": "JSON snapshot of the conversation history"}
		},
		"required": ["record_id", "photo_url"],
		"additionalProperties": false
	}`)
}

func (t *updatePhotoLink) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		RecordID         string `json:"record_id"`
		PhotoURL         string `json:"photo_url"`
		ConversationJSON string `json:"conversation_json"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail("invalid_params", err.Error())
	}
	if strings.TrimSpace(in.PhotoURL) == "" {
		return fail("validation_failed", "photo_url is required")
	}

	ctx, cancel := withTimeout(ctx, defaultTimeout)
	defer cancel()

	record, err := t.records.Get(ctx, in.RecordID)
	if errors.Is(err, records.ErrNotFound) {
		return fail("record_missing", "no record matches "+in.RecordID)
	}
	if err != nil {
		return fail("db_unavailable", "the record table is not reachable")
	}

	record.PhotoURL = strings.TrimSpace(in.PhotoURL)
	// The dispatcher's snapshot of the session history wins over whatever the
	// model chose to pass.
	snapshot := agent.ConversationSnapshot(ctx)
	if snapshot == "" {
		snapshot = in.ConversationJSON
	}
	if snapshot != "" {
		record.ConversationJSON = snapshot
	}
	record.UpdatedAt = time.Now().UTC()

	if err := t.records.Save(ctx, record); err != nil {
		return fail("db_unavailable", "the record table rejected the write")
	}
	return ok(map[string]any{"record_id": record.BillingRequestID, "photo_url": record.PhotoURL})
}
