package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courtdata/results-ingest/model"
)

// divisionPrefix is the league convention for short-form division names:
// the report may say "B3" where the database says "Division B3".
const divisionPrefix = "Division "

// dateLayouts are the two day-month-year spellings the report uses.
var dateLayouts = []string{"2-Jan-06", "2-Jan-2006"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Diagnostic describes why a single CSV row was rejected. Diagnostics are
// surfaced in logs and notifications, never persisted.
type Diagnostic struct {
	Row     int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("row %d: %s", d.Row, d.Message)
}

// Validator turns a raw report attachment into candidate match records,
// resolving free-text division and team names against a reference snapshot
// fetched for this run.
type Validator struct {
	divisions []model.Division
	teams     []model.Team
	logger    *slog.Logger
	now       func() time.Time
}

func NewValidator(divisions []model.Division, teams []model.Team, logger *slog.Logger) *Validator {
	return &Validator{
		divisions: divisions,
		teams:     teams,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate parses the attachment bytes as comma-delimited rows and returns
// every row that survives validation, in input order, together with one
// diagnostic per rejected row. It is best-effort: a malformed row never
// aborts the batch.
//
// Expected columns: division, team1, separator, team2, date, team1 wins,
// team2 wins, team1 points, team2 points. Rows with blank win fields are
// fixtures that have not been played yet and are skipped without a
// diagnostic.
func (v *Validator) Validate(raw []byte) ([]model.Match, []Diagnostic) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		matches     []model.Match
		diagnostics []Diagnostic
	)

	for row := 1; ; row++ {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			diagnostics = append(diagnostics, Diagnostic{Row: row, Message: fmt.Sprintf("unreadable row: %v", err)})
			continue
		}

		if len(record) < 9 {
			diagnostics = append(diagnostics, Diagnostic{Row: row, Message: fmt.Sprintf("not enough columns: %q", strings.Join(record, ","))})
			continue
		}

		divName := strings.TrimSpace(record[0])
		team1Name := strings.TrimSpace(record[1])
		team2Name := strings.TrimSpace(record[3])
		dateRaw := strings.TrimSpace(record[4])

		// Blank win fields mean the fixture has not been played yet.
		if strings.TrimSpace(record[5]) == "" || strings.TrimSpace(record[6]) == "" {
			continue
		}

		team1Wins, err1 := parseCount(record[5])
		team2Wins, err2 := parseCount(record[6])
		team1Points, err3 := parseCount(record[7])
		team2Points, err4 := parseCount(record[8])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			diagnostics = append(diagnostics, Diagnostic{Row: row, Message: "invalid number format"})
			continue
		}

		divisionID, ok := v.resolveDivision(divName)
		if !ok {
			diagnostics = append(diagnostics, Diagnostic{Row: row, Message: fmt.Sprintf("division %q not found", divName)})
			continue
		}

		team1ID, ok := v.resolveTeam(team1Name, divisionID)
		if !ok {
			diagnostics = append(diagnostics, Diagnostic{Row: row, Message: fmt.Sprintf("team %q not found in division %q", team1Name, divName)})
			continue
		}
		team2ID, ok := v.resolveTeam(team2Name, divisionID)
		if !ok {
			diagnostics = append(diagnostics, Diagnostic{Row: row, Message: fmt.Sprintf("team %q not found in division %q", team2Name, divName)})
			continue
		}

		matches = append(matches, model.Match{
			DivisionID:     divisionID,
			Team1ID:        team1ID,
			Team2ID:        team2ID,
			Date:           v.parseDate(dateRaw, row),
			Team1Wins:      team1Wins,
			Team2Wins:      team2Wins,
			Team1PointsFor: team1Points,
			Team2PointsFor: team2Points,
		})
	}

	return matches, diagnostics
}

// resolveDivision matches the division name case-insensitively, retrying
// with the "Division " prefix before giving up.
func (v *Validator) resolveDivision(name string) (uuid.UUID, bool) {
	for _, d := range v.divisions {
		if strings.EqualFold(d.Name, name) {
			return d.ID, true
		}
	}
	alt := divisionPrefix + name
	for _, d := range v.divisions {
		if strings.EqualFold(d.Name, alt) {
			return d.ID, true
		}
	}
	return uuid.Nil, false
}

// resolveTeam matches the team name case-insensitively, scoped to the
// already-resolved division.
func (v *Validator) resolveTeam(name string, divisionID uuid.UUID) (uuid.UUID, bool) {
	for _, t := range v.teams {
		if t.DivisionID == divisionID && strings.EqualFold(t.Name, name) {
			return t.ID, true
		}
	}
	return uuid.Nil, false
}

// parseDate tries both report date layouts. A date that parses under
// neither layout falls back to today: losing a played result over a
// mangled date field would be worse than recording it on the wrong day.
func (v *Validator) parseDate(raw string, row int) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	if v.logger != nil {
		v.logger.Warn("could not parse match date, using today", "row", row, "date", raw)
	}
	now := v.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}
