// Package dispatch routes each inbound chat message to the right agent
// variant, runs the model turn, and persists the outcome on the session. It
// is the only writer of session history during a chat turn.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/regdesk/regdesk/internal/agent"
	"github.com/regdesk/regdesk/internal/observability"
	"github.com/regdesk/regdesk/internal/regcode"
	"github.com/regdesk/regdesk/internal/routine"
	"github.com/regdesk/regdesk/internal/sessions"
	"github.com/regdesk/regdesk/pkg/models"
)

// DefaultTurnTimeout bounds one full turn including tool rounds.
const DefaultTurnTimeout = 120 * time.Second

// fallbackReply is returned when the model turn fails outright. The session
// is left untouched so the parent can simply resend.
const fallbackReply = "Sorry, something went wrong on our side. Please send that again."

// Dispatcher owns turn handling for all sessions.
type Dispatcher struct {
	sessions    sessions.Store
	locker      *sessions.Locker
	parser      *regcode.Parser
	loop        *agent.Loop
	registry    *agent.ToolRegistry
	logger      *observability.Logger
	metrics     *observability.Metrics
	turnTimeout time.Duration
	devMode     bool
}

// Config configures a Dispatcher.
type Config struct {
	Sessions    sessions.Store
	Locker      *sessions.Locker
	Parser      *regcode.Parser
	Loop        *agent.Loop
	Registry    *agent.ToolRegistry
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	TurnTimeout time.Duration
	DevMode     bool
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	return &Dispatcher{
		sessions:    cfg.Sessions,
		locker:      cfg.Locker,
		parser:      cfg.Parser,
		loop:        cfg.Loop,
		registry:    cfg.Registry,
		logger:      logger,
		metrics:     cfg.Metrics,
		turnTimeout: timeout,
		devMode:     cfg.DevMode,
	}
}

// TurnRequest is one inbound chat message plus the client's routing hints.
type TurnRequest struct {
	SessionID string
	Message   string

	// HintRoutine forces the routine step for this turn. Zero means absent.
	HintRoutine int

	// HintLastAgent forces the agent variant for this turn.
	HintLastAgent models.AgentName
}

// TurnReply is what the chat endpoint returns to the client.
type TurnReply struct {
	Reply         string           `json:"response"`
	Agent         models.AgentName `json:"last_agent,omitempty"`
	RoutineNumber int              `json:"routine_number,omitempty"`
}

// Handle runs one chat turn. On model failure the session is left exactly as
// it was before the turn.
func (d *Dispatcher) Handle(ctx context.Context, req TurnRequest) (*TurnReply, error) {
	if err := sessions.ValidateID(req.SessionID); err != nil {
		return nil, err
	}

	release, err := d.locker.Acquire(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, d.turnTimeout)
	defer cancel()

	session := d.loadOrBlank(ctx, req.SessionID)

	if d.devMode {
		if reply, handled := d.handleDevCode(ctx, session, req.Message); handled {
			return reply, nil
		}
	}

	agentName, code := d.classify(ctx, session, req)
	routineNumber := d.effectiveRoutine(session, req, agentName, code)

	reply, err := d.runTurn(ctx, session, turnPlan{
		agent:       agentName,
		routine:     routineNumber,
		code:        code,
		userMessage: req.Message,
	})
	if err != nil {
		d.logger.Error("turn failed", "session", req.SessionID, "agent", string(agentName), "error", err)
		if d.metrics != nil {
			d.metrics.ChatTurns.WithLabelValues(string(agentName), "error").Inc()
		}
		return &TurnReply{Reply: fallbackReply, Agent: agentName, RoutineNumber: session.RoutineNumber}, nil
	}
	if d.metrics != nil {
		d.metrics.ChatTurns.WithLabelValues(string(agentName), "ok").Inc()
	}
	return reply, nil
}

type turnPlan struct {
	agent       models.AgentName
	routine     int
	code        *models.CodeContext
	userMessage string
	// internal marks a server-synthesized re-entry turn.
	internal bool
}

// runTurn executes the model turn and, only on success, persists the user
// message, the tool records, the assistant reply, and the routing state.
func (d *Dispatcher) runTurn(ctx context.Context, session *sessions.Session, plan turnPlan) (*TurnReply, error) {
	userMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   plan.userMessage,
		CreatedAt: time.Now().UTC(),
	}

	history := make([]models.Message, 0, len(session.History)+1)
	for _, m := range session.History {
		history = append(history, *m)
	}
	history = append(history, *userMsg)

	stepText := ""
	if plan.routine > 0 {
		stepText = routine.InstructionText(plan.routine)
	}
	system, toolNames := agent.Resolve(plan.agent, stepText)

	// The snapshot rides on the context so the photo-link tool persists the
	// server's view of the conversation, not whatever the model passes.
	ctx = agent.WithConversationSnapshot(ctx, conversationSnapshot(session.History, userMsg))

	result, err := d.loop.Run(ctx, agent.TurnInput{
		Agent:    plan.agent,
		System:   system,
		History:  history,
		Registry: d.registry.Filtered(toolNames),
	})
	if err != nil {
		return nil, err
	}

	if err := d.persistTurn(ctx, session, plan, userMsg, result); err != nil {
		return nil, err
	}

	nextRoutine := session.RoutineNumber
	if result.RoutineSet {
		nextRoutine = result.RoutineNumber
	} else if plan.routine > 0 {
		nextRoutine = plan.routine
	}

	// The age-routing step never waits for the parent: re-enter immediately
	// with a synthesized message and return that turn's reply instead.
	if routine.IsServerInternal(nextRoutine) && !plan.internal {
		return d.ageRoutingHop(ctx, session, plan.agent, nextRoutine)
	}

	return &TurnReply{
		Reply:         result.Reply,
		Agent:         plan.agent,
		RoutineNumber: nextRoutine,
	}, nil
}

// persistTurn writes the turn's messages and routing state to the session.
func (d *Dispatcher) persistTurn(ctx context.Context, session *sessions.Session, plan turnPlan, userMsg *models.Message, result *agent.TurnResult) error {
	if err := d.sessions.Append(ctx, session.ID, userMsg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	session.History = append(session.History, userMsg)
	for _, record := range result.ToolRecords {
		toolMsg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Role:      models.RoleTool,
			Content:   record,
			CreatedAt: time.Now().UTC(),
		}
		if err := d.sessions.Append(ctx, session.ID, toolMsg); err != nil {
			return fmt.Errorf("append tool record: %w", err)
		}
		session.History = append(session.History, toolMsg)
	}
	assistantMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   result.Reply,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.sessions.Append(ctx, session.ID, assistantMsg); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	session.History = append(session.History, assistantMsg)

	if plan.code != nil && session.Code == nil {
		if err := d.sessions.SetCode(ctx, session.ID, plan.code); err != nil && !errors.Is(err, sessions.ErrCodeAlreadySet) {
			return fmt.Errorf("set code context: %w", err)
		}
		session.Code = plan.code
	}

	if err := d.sessions.SetLastAgent(ctx, session.ID, plan.agent); err != nil {
		return fmt.Errorf("set last agent: %w", err)
	}
	session.LastAgent = plan.agent

	if result.RoutineSet {
		if err := d.sessions.SetRoutine(ctx, session.ID, result.RoutineNumber); err != nil {
			return fmt.Errorf("set routine: %w", err)
		}
		session.RoutineNumber = result.RoutineNumber
	} else if plan.routine > 0 && plan.routine != session.RoutineNumber {
		if err := d.sessions.SetRoutine(ctx, session.ID, plan.routine); err != nil {
			return fmt.Errorf("set routine: %w", err)
		}
		session.RoutineNumber = plan.routine
	}

	if ageGroup := ageGroupFromOutcomes(result.ToolOutcomes); ageGroup != "" {
		if err := d.sessions.SetAgeGroup(ctx, session.ID, ageGroup); err != nil {
			return fmt.Errorf("set age group: %w", err)
		}
		session.AgeGroup = ageGroup
	}
	return nil
}

// ageRoutingHop advances past the server-internal age-routing step: it picks
// the branch from the stored age group, records the transition, and runs one
// synthesized turn at the landing step.
func (d *Dispatcher) ageRoutingHop(ctx context.Context, session *sessions.Session, agentName models.AgentName, step int) (*TurnReply, error) {
	next := routine.OnValid(step, routine.Context{AgeGroup: session.AgeGroup})

	marker := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleSystem,
		Content:   fmt.Sprintf("%s routine %d -> %d age_group=%s", models.MarkerAgentTransition, step, next, session.AgeGroup),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.sessions.Append(ctx, session.ID, marker); err != nil {
		return nil, fmt.Errorf("append transition marker: %w", err)
	}
	session.History = append(session.History, marker)

	if err := d.sessions.SetRoutine(ctx, session.ID, next); err != nil {
		return nil, fmt.Errorf("set routine: %w", err)
	}
	session.RoutineNumber = next

	return d.runTurn(ctx, session, turnPlan{
		agent:       agentName,
		routine:     next,
		userMessage: "Please continue with the next step.",
		internal:    true,
	})
}

// classify picks the agent variant for this turn. Client hints win, then a
// registration code in the message, then the session's own routing state.
func (d *Dispatcher) classify(ctx context.Context, session *sessions.Session, req TurnRequest) (models.AgentName, *models.CodeContext) {
	if req.HintRoutine > 0 {
		return models.AgentNewRegistration, nil
	}
	switch req.HintLastAgent {
	case models.AgentReRegistration:
		return models.AgentReRegistration, nil
	case models.AgentNewRegistration:
		return models.AgentNewRegistration, nil
	}

	if session.Code == nil {
		code, err := d.parser.Parse(ctx, req.Message)
		if err == nil {
			if code.Classification == regcode.ClassificationRe {
				return models.AgentReRegistration, code
			}
			return models.AgentNewRegistration, code
		}
		if !errors.Is(err, regcode.ErrNoMatch) {
			d.logger.Info("registration code rejected", "session", session.ID, "error", err)
		}
	}

	switch session.LastAgent {
	case models.AgentNewRegistration, models.AgentReRegistration:
		return session.LastAgent, nil
	}
	return models.AgentGeneric, nil
}

// effectiveRoutine picks the routine step for this turn. A hint wins, a fresh
// code starts the workflow at step one, otherwise the session's step carries.
func (d *Dispatcher) effectiveRoutine(session *sessions.Session, req TurnRequest, agentName models.AgentName, code *models.CodeContext) int {
	if req.HintRoutine > 0 {
		return req.HintRoutine
	}
	if code != nil && agentName == models.AgentNewRegistration && session.RoutineNumber == 0 {
		return routine.FirstStep
	}
	return session.RoutineNumber
}

// conversationSnapshot serializes the history plus the turn's user message
// into the form persisted on the registration record.
func conversationSnapshot(history []*models.Message, userMsg *models.Message) string {
	all := make([]*models.Message, 0, len(history)+1)
	all = append(all, history...)
	all = append(all, userMsg)
	b, err := json.Marshal(models.SnapshotHistory(all))
	if err != nil {
		return ""
	}
	return string(b)
}

func (d *Dispatcher) loadOrBlank(ctx context.Context, id string) *sessions.Session {
	session, err := d.sessions.Get(ctx, id)
	if err != nil {
		now := time.Now().UTC()
		return &sessions.Session{ID: id, LastAgent: models.AgentNone, CreatedAt: now, UpdatedAt: now}
	}
	return session
}
