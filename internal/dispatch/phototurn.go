package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/regdesk/regdesk/internal/agent"
	"github.com/regdesk/regdesk/internal/routine"
	"github.com/regdesk/regdesk/internal/sessions"
	"github.com/regdesk/regdesk/pkg/models"
)

// PhotoTurn runs the photo-upload step for the background pipeline: the
// uploaded file path is handed to the model as a system marker and the model
// drives the upload and record-link tools. The session lock must not already
// be held by the caller.
func (d *Dispatcher) PhotoTurn(ctx context.Context, sessionID, tempPath string) (*TurnReply, error) {
	if err := sessions.ValidateID(sessionID); err != nil {
		return nil, err
	}

	release, err := d.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, d.turnTimeout)
	defer cancel()

	session := d.loadOrBlank(ctx, sessionID)

	marker := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleSystem,
		Content:   models.MarkerUploadedFilePath + " " + tempPath,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.sessions.Append(ctx, sessionID, marker); err != nil {
		return nil, fmt.Errorf("append upload marker: %w", err)
	}
	session.History = append(session.History, marker)

	return d.runTurn(ctx, session, turnPlan{
		agent:       models.AgentNewRegistration,
		routine:     routine.StepPhotoUpload,
		userMessage: "The photo has been uploaded to the path in the marker above. Process and store it, then confirm to me.",
		internal:    true,
	})
}

// ageGroupFromOutcomes scans the turn's tool outcomes for the age group the
// date-of-birth validation computed.
func ageGroupFromOutcomes(outcomes []agent.ToolOutcome) string {
	for _, o := range outcomes {
		if o.Name != "child_dob_validation" || o.IsError {
			continue
		}
		var payload struct {
			AgeGroup string `json:"age_group"`
		}
		if err := json.Unmarshal([]byte(o.Content), &payload); err == nil && payload.AgeGroup != "" {
			return payload.AgeGroup
		}
	}
	return ""
}
