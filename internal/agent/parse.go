package agent

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FinalReply is the structured outcome of a turn.
type FinalReply struct {
	// Reply is the text shown to the parent.
	Reply string

	// RoutineNumber is the step the model reports, valid when RoutineSet.
	RoutineNumber int
	RoutineSet    bool
}

// flatTextKeys are envelope fields some models wrap their JSON answer in.
var flatTextKeys = []string{"text", "content", "response", "message", "reply"}

// ParseFinalReply extracts the user-facing reply and the reported routine
// number from raw model output. Accepted shapes, in order: a JSON object with
// agent_final_response (and optional routine_number); a JSON object whose
// flat text field itself contains that object; plain text as-is with no
// routine number.
func ParseFinalReply(raw string) FinalReply {
	text := stripFences(strings.TrimSpace(raw))

	if out, ok := parseEnvelope(text); ok {
		return out
	}
	return FinalReply{Reply: text}
}

func parseEnvelope(text string) (FinalReply, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return FinalReply{}, false
	}

	if raw, ok := obj["agent_final_response"]; ok {
		var reply string
		if err := json.Unmarshal(raw, &reply); err == nil {
			out := FinalReply{Reply: reply}
			out.RoutineNumber, out.RoutineSet = parseRoutineNumber(obj["routine_number"])
			return out, true
		}
	}

	// Some wire shapes put the real object inside a flat text field.
	for _, key := range flatTextKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			continue
		}
		if out, ok := parseEnvelope(strings.TrimSpace(inner)); ok {
			return out, true
		}
	}

	return FinalReply{}, false
}

func parseRoutineNumber(raw json.RawMessage) (int, bool) {
	if raw == nil {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
