package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/regdesk/regdesk/internal/agent"
	"github.com/regdesk/regdesk/internal/records"
	"github.com/regdesk/regdesk/internal/regcode"
	"github.com/regdesk/regdesk/internal/retry"
	"github.com/regdesk/regdesk/internal/sessions"
	"github.com/regdesk/regdesk/pkg/models"
)

// scriptedProvider returns canned completions in order.
type scriptedProvider struct {
	completions []*agent.Completion
	calls       int
	requests    []*agent.CompletionRequest
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	i := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	if i < len(s.completions) {
		return s.completions[i], nil
	}
	return &agent.Completion{Text: `{"agent_final_response": "done", "routine_number": 2}`}, nil
}

func newTestDispatcher(t *testing.T, provider agent.Provider) (*Dispatcher, sessions.Store) {
	t.Helper()
	store := sessions.NewMemoryStore(sessions.DefaultMaxHistory)
	teams := records.NewMemoryStore([]records.Team{
		{Name: "Tigers", AgeGroup: "U10", KitRequired: true},
	})
	d := New(Config{
		Sessions: store,
		Locker:   sessions.NewLocker(2),
		Parser:   regcode.NewParser("2526", teams),
		Loop:     agent.NewLoop(agent.LoopConfig{Provider: provider}),
		Registry: agent.NewToolRegistry(),
		DevMode:  true,
	})
	return d, store
}

func TestHandleGenericWithoutCode(t *testing.T) {
	provider := &scriptedProvider{completions: []*agent.Completion{
		{Text: `{"agent_final_response": "Welcome! Please paste your registration code."}`},
	}}
	d, store := newTestDispatcher(t, provider)

	reply, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "hello"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply.Agent != models.AgentGeneric {
		t.Fatalf("Agent = %s, want generic", reply.Agent)
	}
	if reply.Reply != "Welcome! Please paste your registration code." {
		t.Fatalf("Reply = %q", reply.Reply)
	}

	session, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(session.History) != 2 {
		t.Fatalf("history length = %d, want user + assistant", len(session.History))
	}
	if session.LastAgent != models.AgentGeneric {
		t.Fatalf("LastAgent = %s", session.LastAgent)
	}
}

func TestHandleCodeStartsNewRegistration(t *testing.T) {
	provider := &scriptedProvider{completions: []*agent.Completion{
		{Text: `{"agent_final_response": "Great, let's start. What's your full name?", "routine_number": 1}`},
	}}
	d, store := newTestDispatcher(t, provider)

	reply, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "201-Tigers-U10-2526"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply.Agent != models.AgentNewRegistration {
		t.Fatalf("Agent = %s, want new_registration", reply.Agent)
	}
	if reply.RoutineNumber != 1 {
		t.Fatalf("RoutineNumber = %d, want 1", reply.RoutineNumber)
	}

	session, _ := store.Get(context.Background(), "s1")
	if session.Code == nil || session.Code.Team != "Tigers" {
		t.Fatalf("Code = %+v", session.Code)
	}
	if session.RoutineNumber != 1 {
		t.Fatalf("RoutineNumber = %d", session.RoutineNumber)
	}
}

func TestHandleReRegistrationCode(t *testing.T) {
	provider := &scriptedProvider{completions: []*agent.Completion{
		{Text: `{"agent_final_response": "Welcome back! Who played last season?"}`},
	}}
	d, _ := newTestDispatcher(t, provider)

	reply, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "101-Tigers-U10-2526"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply.Agent != models.AgentReRegistration {
		t.Fatalf("Agent = %s, want re_registration", reply.Agent)
	}
}

func TestHandleHintsWinOverCode(t *testing.T) {
	provider := &scriptedProvider{}
	d, _ := newTestDispatcher(t, provider)

	reply, err := d.Handle(context.Background(), TurnRequest{
		SessionID:     "s1",
		Message:       "201-Tigers-U10-2526",
		HintLastAgent: models.AgentReRegistration,
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply.Agent != models.AgentReRegistration {
		t.Fatalf("Agent = %s, hint must win", reply.Agent)
	}
}

func TestHandleHintRoutineForcesStep(t *testing.T) {
	provider := &scriptedProvider{completions: []*agent.Completion{
		{Text: `{"agent_final_response": "Sure.", "routine_number": 5}`},
	}}
	d, _ := newTestDispatcher(t, provider)

	reply, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "ok", HintRoutine: 5})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply.Agent != models.AgentNewRegistration || reply.RoutineNumber != 5 {
		t.Fatalf("reply = %+v", reply)
	}
	if len(provider.requests) == 0 || provider.requests[0].System == "" {
		t.Fatal("system prompt missing")
	}
}

func TestHandleSessionContinuity(t *testing.T) {
	provider := &scriptedProvider{completions: []*agent.Completion{
		{Text: `{"agent_final_response": "Step one.", "routine_number": 1}`},
		{Text: `{"agent_final_response": "Step two.", "routine_number": 2}`},
	}}
	d, store := newTestDispatcher(t, provider)

	if _, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "201-Tigers-U10-2526"}); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	reply, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "John Smith"})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if reply.Agent != models.AgentNewRegistration {
		t.Fatalf("Agent = %s, session must stay on new_registration", reply.Agent)
	}
	if reply.RoutineNumber != 2 {
		t.Fatalf("RoutineNumber = %d, want 2", reply.RoutineNumber)
	}

	session, _ := store.Get(context.Background(), "s1")
	if session.RoutineNumber != 2 {
		t.Fatalf("stored routine = %d", session.RoutineNumber)
	}
}

func TestHandleAgeRoutingHop(t *testing.T) {
	// The model lands on the age-routing step; the dispatcher must advance
	// past it with a synthesized turn instead of waiting for the parent.
	provider := &scriptedProvider{completions: []*agent.Completion{
		{Text: `{"agent_final_response": "Noted.", "routine_number": 22}`},
		{Text: `{"agent_final_response": "Now, how would you like to pay?", "routine_number": 28}`},
	}}
	d, store := newTestDispatcher(t, provider)

	if err := store.SetAgeGroup(context.Background(), "s1", "U10"); err != nil {
		t.Fatalf("seed age group: %v", err)
	}
	if err := store.SetLastAgent(context.Background(), "s1", models.AgentNewRegistration); err != nil {
		t.Fatalf("seed agent: %v", err)
	}

	reply, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "yes"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("model calls = %d, want 2 (turn + hop)", provider.calls)
	}
	if reply.RoutineNumber != 28 {
		t.Fatalf("RoutineNumber = %d, want 28 for under-16", reply.RoutineNumber)
	}

	session, _ := store.Get(context.Background(), "s1")
	var markers int
	for _, m := range session.History {
		if m.Role == models.RoleSystem {
			markers++
		}
	}
	if markers != 1 {
		t.Fatalf("transition markers = %d, want 1", markers)
	}
}

// lookupCaptureTool stands in for the record lookup and grabs the turn
// context's conversation snapshot.
type lookupCaptureTool struct {
	captured string
}

func (c *lookupCaptureTool) Name() string        { return "check_if_record_exists_in_db" }
func (c *lookupCaptureTool) Description() string { return "test double" }
func (c *lookupCaptureTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}, "additionalProperties": false}`)
}

func (c *lookupCaptureTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	c.captured = agent.ConversationSnapshot(ctx)
	return &agent.ToolResult{Content: `{"found": false}`}, nil
}

func TestTurnCarriesConversationSnapshot(t *testing.T) {
	provider := &scriptedProvider{completions: []*agent.Completion{
		{ToolCalls: []models.ToolCall{{ID: "t1", Name: "check_if_record_exists_in_db", Input: json.RawMessage(`{}`)}}},
		{Text: `{"agent_final_response": "Checked."}`},
	}}
	store := sessions.NewMemoryStore(sessions.DefaultMaxHistory)
	capture := &lookupCaptureTool{}
	registry := agent.NewToolRegistry()
	registry.MustRegister(capture)
	d := New(Config{
		Sessions: store,
		Locker:   sessions.NewLocker(2),
		Parser:   regcode.NewParser("2526", records.NewMemoryStore(nil)),
		Loop:     agent.NewLoop(agent.LoopConfig{Provider: provider}),
		Registry: registry,
	})

	if _, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "hello"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	want := `[{"role":"user","content":"hello"}]`
	if capture.captured != want {
		t.Fatalf("snapshot = %s, want %s", capture.captured, want)
	}
}

func TestHandleFailureLeavesSessionUntouched(t *testing.T) {
	provider := &failingProvider{}
	d, store := newTestDispatcher(t, provider)

	reply, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "hello"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply.Reply != fallbackReply {
		t.Fatalf("Reply = %q", reply.Reply)
	}
	if _, err := store.Get(context.Background(), "s1"); err == nil {
		t.Fatal("failed turn must not create the session")
	}
}

func TestHandleRejectsInvalidSessionID(t *testing.T) {
	d, _ := newTestDispatcher(t, &scriptedProvider{})
	if _, err := d.Handle(context.Background(), TurnRequest{SessionID: "bad id!", Message: "hi"}); err == nil {
		t.Fatal("invalid session id must be rejected")
	}
}

func TestDevCodeJump(t *testing.T) {
	d, store := newTestDispatcher(t, &scriptedProvider{})

	reply, err := d.Handle(context.Background(), TurnRequest{SessionID: "s1", Message: "SDH 29"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply.RoutineNumber != 29 {
		t.Fatalf("RoutineNumber = %d, want 29", reply.RoutineNumber)
	}
	session, _ := store.Get(context.Background(), "s1")
	if session.RoutineNumber != 29 || session.LastAgent != models.AgentNewRegistration {
		t.Fatalf("session = %+v", session)
	}
}

type failingProvider struct{}

func (f *failingProvider) Name() string { return "failing" }
func (f *failingProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	return nil, retry.Permanent(errors.New("model down"))
}
