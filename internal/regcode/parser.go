// Package regcode recognizes the registration code grammar and classifies
// codes as new or re-registration:
//
//	CODE   := SERIES "-" TEAM "-" AGE "-" SEASON
//	SERIES := [0-9]{3}
//	TEAM   := [A-Za-z]+
//	AGE    := ("U" [0-9]{1,2}) | "open"
//	SEASON := [0-9]{4}
//
// Matching is case-insensitive with surrounding whitespace stripped.
package regcode

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/regdesk/regdesk/pkg/models"
)

// Classification values.
const (
	ClassificationNew = "new_registration"
	ClassificationRe  = "re_registration"
)

// OpenAge is the canonical age group for open-age teams.
const OpenAge = "open"

var (
	// ErrNoMatch means the input is not a registration code at all. The
	// dispatcher treats this as plain chat, not an error surface.
	ErrNoMatch = errors.New("regcode: not a registration code")

	// ErrUnknownSeries rejects series prefixes other than 1xx and 2xx.
	ErrUnknownSeries = errors.New("regcode: unrecognized series")

	// ErrWrongSeason rejects codes for a season other than the current one.
	ErrWrongSeason = errors.New("regcode: code is not for the current season")

	// ErrUnknownTeam rejects (team, age) pairs absent from the team table.
	ErrUnknownTeam = errors.New("regcode: team and age group not recognized")
)

var codePattern = regexp.MustCompile(`^([0-9]{3})-([A-Za-z]+)-([Uu][0-9]{1,2}|[Oo][Pp][Ee][Nn])-([0-9]{4})$`)

// TeamTable resolves whether a (team, age group) pair exists. Implemented by
// the records store.
type TeamTable interface {
	TeamExists(ctx context.Context, team, ageGroup string) (bool, error)
}

// Parser validates codes against the configured season and the team table.
type Parser struct {
	season string
	teams  TeamTable
}

// NewParser creates a parser for the given current season (e.g. "2526").
func NewParser(season string, teams TeamTable) *Parser {
	return &Parser{season: season, teams: teams}
}

// Parse recognizes, classifies, and validates a registration code.
func (p *Parser) Parse(ctx context.Context, raw string) (*models.CodeContext, error) {
	trimmed := strings.TrimSpace(raw)
	match := codePattern.FindStringSubmatch(trimmed)
	if match == nil {
		return nil, ErrNoMatch
	}

	series, team, age, season := match[1], match[2], match[3], match[4]

	var classification string
	switch series[0] {
	case '1':
		classification = ClassificationRe
	case '2':
		classification = ClassificationNew
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSeries, series)
	}

	if season != p.season {
		return nil, fmt.Errorf("%w: got %s, current is %s", ErrWrongSeason, season, p.season)
	}

	team = canonicalTeam(team)
	age = canonicalAge(age)

	// Team "mens" is accepted with any age and resolves to the open-age row.
	if strings.EqualFold(team, "Mens") {
		age = OpenAge
	}

	if p.teams != nil {
		found, err := p.teams.TeamExists(ctx, team, age)
		if err != nil {
			return nil, fmt.Errorf("regcode: team lookup: %w", err)
		}
		if !found {
			return nil, fmt.Errorf("%w: %s %s", ErrUnknownTeam, team, age)
		}
	}

	return &models.CodeContext{
		Series:         series,
		Team:           team,
		AgeGroup:       age,
		Season:         season,
		Classification: classification,
	}, nil
}

func canonicalTeam(team string) string {
	lower := strings.ToLower(team)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func canonicalAge(age string) string {
	if strings.EqualFold(age, OpenAge) {
		return OpenAge
	}
	return "U" + strings.TrimLeft(strings.ToUpper(age), "U")
}
