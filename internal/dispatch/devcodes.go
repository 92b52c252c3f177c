package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/regdesk/regdesk/internal/routine"
	"github.com/regdesk/regdesk/internal/sessions"
	"github.com/regdesk/regdesk/pkg/models"
)

// Development shortcuts, active only when dev mode is on. "SDH <n>" jumps the
// routine to step n; "lah" dumps the session history.
const (
	devCodeJump    = "SDH"
	devCodeHistory = "lah"
)

func (d *Dispatcher) handleDevCode(ctx context.Context, session *sessions.Session, message string) (*TurnReply, bool) {
	trimmed := strings.TrimSpace(message)

	if strings.EqualFold(trimmed, devCodeHistory) {
		return &TurnReply{
			Reply:         formatHistory(session),
			Agent:         session.LastAgent,
			RoutineNumber: session.RoutineNumber,
		}, true
	}

	if rest, found := strings.CutPrefix(trimmed, devCodeJump+" "); found {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || n < routine.FirstStep || n > routine.LastStep {
			return &TurnReply{
				Reply:         fmt.Sprintf("dev: step must be %d..%d", routine.FirstStep, routine.LastStep),
				Agent:         session.LastAgent,
				RoutineNumber: session.RoutineNumber,
			}, true
		}
		if err := d.sessions.SetRoutine(ctx, session.ID, n); err != nil {
			return &TurnReply{Reply: "dev: " + err.Error(), Agent: session.LastAgent}, true
		}
		if err := d.sessions.SetLastAgent(ctx, session.ID, models.AgentNewRegistration); err != nil {
			return &TurnReply{Reply: "dev: " + err.Error(), Agent: session.LastAgent}, true
		}
		return &TurnReply{
			Reply:         fmt.Sprintf("dev: jumped to step %d", n),
			Agent:         models.AgentNewRegistration,
			RoutineNumber: n,
		}, true
	}

	return nil, false
}

func formatHistory(session *sessions.Session) string {
	if len(session.History) == 0 {
		return "dev: history is empty"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "dev: %d messages, agent=%s, routine=%d\n", len(session.History), session.LastAgent, session.RoutineNumber)
	for i, m := range session.History {
		fmt.Fprintf(&b, "%d [%s] %s\n", i, m.Role, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
