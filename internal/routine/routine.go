// Package routine holds the 35-step registration workflow: per-step
// instruction text and the transition rules between steps. The engine is
// pure; all I/O happens through tools driven by the model.
package routine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/regdesk/regdesk/pkg/models"
)

// Step bounds.
const (
	FirstStep = 1
	LastStep  = 35
)

// Special steps the dispatcher needs to know about.
const (
	// StepChildName triggers the returning-player resume detection.
	StepChildName = 2
	// StepAgeRouting is the server-internal hop: the engine routes on the
	// computed age group without waiting for user input.
	StepAgeRouting = 22
	// StepPaymentSetup creates the payment token and persists the record.
	StepPaymentSetup = 29
	// StepKitSize resumes returning players who need kit.
	StepKitSize = 32
	// StepPhotoUpload is where the photo pipeline hands back into the chat.
	StepPhotoUpload = 34
	// StepComplete is terminal.
	StepComplete = 35
)

// Context carries the session facts transitions depend on.
type Context struct {
	AgeGroup         string
	RecordFound      bool
	PlayedLastSeason models.Flag
	KitNeeded        bool
	SameAddress      bool
	LookupFailed     bool
}

// InstructionText returns the prompt fragment injected for step n. Unknown
// steps return an empty string.
func InstructionText(n int) string {
	step, ok := steps[n]
	if !ok {
		return ""
	}
	return step.instruction
}

// IsServerInternal reports whether the engine advances past n without user
// input.
func IsServerInternal(n int) bool {
	return n == StepAgeRouting
}

// OnInvalid returns the step to stay on when the user's input failed
// validation. The workflow never moves backwards on failure.
func OnInvalid(n int) int {
	return n
}

// OnValid returns the next step after a successful turn at step n.
func OnValid(n int, ctx Context) int {
	switch n {
	case StepChildName:
		if !ctx.RecordFound {
			return 3
		}
		if ctx.PlayedLastSeason == models.FlagNo {
			return StepKitSize
		}
		if ctx.KitNeeded {
			return StepKitSize
		}
		return StepPhotoUpload

	case 13: // parent house number + lookup
		if ctx.LookupFailed {
			return 14
		}
		return 15

	case 16: // same address?
		if ctx.SameAddress {
			return StepAgeRouting
		}
		return 18

	case 19: // child house number + lookup
		if ctx.LookupFailed {
			return 20
		}
		return 21

	case StepAgeRouting:
		if AgeGroupAtLeast(ctx.AgeGroup, 16) {
			return 23
		}
		return 28

	case 30, 31: // kit routing after payment setup
		if ctx.KitNeeded {
			return StepKitSize
		}
		return StepPhotoUpload

	case StepComplete:
		return StepComplete
	}

	if n >= FirstStep && n < LastStep {
		return n + 1
	}
	return n
}

// AgeGroupAtLeast reports whether an age-group label like "U16" is at or
// above the threshold. Open-age counts as adult.
func AgeGroupAtLeast(ageGroup string, threshold int) bool {
	label := strings.TrimSpace(strings.ToUpper(ageGroup))
	if label == "" {
		return false
	}
	if strings.EqualFold(label, "OPEN") || strings.EqualFold(label, "OPEN AGE") {
		return true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(label, "U"))
	if err != nil {
		return false
	}
	return n >= threshold
}

// AgeGroup derives the group label from a date of birth using the 31-August
// season cutoff: a player aged 8 on 31 August plays U9.
func AgeGroup(dob time.Time, seasonStartYear int) string {
	cutoff := time.Date(seasonStartYear, time.August, 31, 0, 0, 0, 0, time.UTC)
	age := cutoff.Year() - dob.Year()
	anniversary := time.Date(cutoff.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC)
	if anniversary.After(cutoff) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return fmt.Sprintf("U%d", age+1)
}
