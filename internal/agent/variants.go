package agent

import (
	"strings"

	"github.com/regdesk/regdesk/pkg/models"
)

// stepPlaceholder is replaced with the current routine step's instructions.
const stepPlaceholder = "%STEP_INSTRUCTIONS%"

const replyFormat = `Always answer with a single JSON object of the form
{"agent_final_response": "<message to the parent>", "routine_number": <current or next step number>}.
The agent_final_response field is shown to the parent verbatim. Never include anything outside the JSON object.`

const sharedGuidance = `You are the registration assistant for a youth football club. You talk to a
parent or guardian over chat. Be warm, brief and plain-spoken. Ask for exactly
one thing at a time. Never invent data the parent has not given you, and never
skip a step. Use the tools to validate and record information; trust the tool
results over your own judgement. Tool summaries earlier in the conversation
(lines starting "tool=") describe what has already been done.`

// Variant is one agent definition: instructions plus the tool subset it may
// use. Variants are pure data; per-turn state lives in the session.
type Variant struct {
	Name         models.AgentName
	Instructions string
	ToolNames    []string
}

var variants = map[models.AgentName]Variant{
	models.AgentGeneric: {
		Name: models.AgentGeneric,
		Instructions: sharedGuidance + `

The parent has not yet supplied a valid registration code. Greet them, explain
that registration needs the code from the club (for example 201-Tigers-U10-2526)
and ask them to paste it. Answer general questions about the club briefly, but
always steer back to the code. Do not set a routine_number.

` + replyFormat,
		ToolNames: []string{"check_if_record_exists_in_db"},
	},

	models.AgentNewRegistration: {
		Name: models.AgentNewRegistration,
		Instructions: sharedGuidance + `

You are registering a NEW player. Work strictly through the intake steps; the
current step is below. Do what it says and nothing else.

Current step:
` + stepPlaceholder + `

` + replyFormat,
		ToolNames: []string{
			"person_name_validation",
			"child_dob_validation",
			"medical_issues_validation",
			"address_lookup",
			"address_validation",
			"check_if_record_exists_in_db",
			"check_if_kit_needed",
			"check_shirt_number_availability",
			"update_reg_details_to_db",
			"update_kit_details_to_db",
			"update_photo_link_to_db",
			"create_payment_token",
			"create_signup_payment_link",
			"send_sms_payment_link",
			"upload_photo_to_s3",
		},
	},

	models.AgentReRegistration: {
		Name: models.AgentReRegistration,
		Instructions: sharedGuidance + `

You are re-registering a RETURNING player for the new season. Their record
from last season may already exist, so confirm what is on file instead of
re-collecting it. Ask the parent to confirm or correct each detail in turn.

` + stepPlaceholder + `

` + replyFormat,
		ToolNames: []string{"address_validation", "address_lookup"},
	},
}

// Resolve returns the effective instructions and allowed tool names for an
// agent at the given step. Unknown agents fall back to the generic variant.
func Resolve(name models.AgentName, stepText string) (string, []string) {
	v, ok := variants[name]
	if !ok {
		v = variants[models.AgentGeneric]
	}
	instructions := strings.ReplaceAll(v.Instructions, stepPlaceholder, stepText)
	return instructions, v.ToolNames
}
