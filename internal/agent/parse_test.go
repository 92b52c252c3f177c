package agent

import "testing"

func TestParseFinalReplyJSON(t *testing.T) {
	out := ParseFinalReply(`{"agent_final_response": "Thanks! What's your child's name?", "routine_number": 2}`)
	if out.Reply != "Thanks! What's your child's name?" {
		t.Fatalf("Reply = %q", out.Reply)
	}
	if !out.RoutineSet || out.RoutineNumber != 2 {
		t.Fatalf("RoutineNumber = %d (set=%v), want 2", out.RoutineNumber, out.RoutineSet)
	}
}

func TestParseFinalReplyWithoutRoutine(t *testing.T) {
	out := ParseFinalReply(`{"agent_final_response": "Welcome! Please paste your registration code."}`)
	if out.Reply != "Welcome! Please paste your registration code." {
		t.Fatalf("Reply = %q", out.Reply)
	}
	if out.RoutineSet {
		t.Fatal("routine number must not be set when absent")
	}
}

func TestParseFinalReplyFencedJSON(t *testing.T) {
	out := ParseFinalReply("```json\n{\"agent_final_response\": \"Got it.\", \"routine_number\": 5}\n```")
	if out.Reply != "Got it." || !out.RoutineSet || out.RoutineNumber != 5 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestParseFinalReplyFlatTextField(t *testing.T) {
	out := ParseFinalReply(`{"text": "{\"agent_final_response\": \"Hello there\", \"routine_number\": 3}"}`)
	if out.Reply != "Hello there" || !out.RoutineSet || out.RoutineNumber != 3 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestParseFinalReplyStringRoutineNumber(t *testing.T) {
	out := ParseFinalReply(`{"agent_final_response": "ok", "routine_number": "12"}`)
	if !out.RoutineSet || out.RoutineNumber != 12 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestParseFinalReplyRawText(t *testing.T) {
	out := ParseFinalReply("Welcome to the club! Please paste your registration code.")
	if out.RoutineSet {
		t.Fatal("raw text must not set a routine number")
	}
	if out.Reply != "Welcome to the club! Please paste your registration code." {
		t.Fatalf("Reply = %q", out.Reply)
	}
}

func TestParseFinalReplyJSONWithoutKnownFields(t *testing.T) {
	raw := `{"something": "else"}`
	out := ParseFinalReply(raw)
	if out.RoutineSet {
		t.Fatal("unknown JSON must not set a routine number")
	}
	if out.Reply != raw {
		t.Fatalf("Reply = %q, want raw text", out.Reply)
	}
}
