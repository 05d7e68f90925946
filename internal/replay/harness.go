// Package replay re-runs recorded conversations through the guard and
// chemistry stack offline, so rule or tolerance changes can be checked
// against real traffic before they ship.
package replay

import (
	"github.com/danielpatrickdp/response-guard/internal/chemistry"
	"github.com/danielpatrickdp/response-guard/internal/evalbus"
	"github.com/danielpatrickdp/response-guard/internal/guard"
	"github.com/danielpatrickdp/response-guard/internal/metrics"
)

// #region types

// TurnResult captures the outcome of replaying one recorded turn.
type TurnResult struct {
	TurnID string
	Action guard.Action
	Issues []guard.Issue

	// Chemistry after this turn's bus window was folded in.
	Delta  chemistry.Delta
	Levels chemistry.Levels
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTurns  int
	Passes      int
	Retries     int
	SoftFails   int
	TrustIndex  float64
	FinalLevels chemistry.Levels
	Expected    int // expectations present in the fixture
	Mismatches  []Mismatch
}

// Mismatch is one turn whose verdict diverged from the fixture's
// expectation.
type Mismatch struct {
	TurnID string
	Want   string
	Got    guard.Action
}

// #endregion types

// #region run

// Run replays every turn of the fixture through a fresh guard, bus,
// and chemistry bridge. Operates entirely in-memory; retries are not
// simulated — each recorded turn is checked exactly as captured, so a
// RETRY verdict simply advances the shared retry budget the way it did
// at record time.
func Run(fixture *Fixture) ([]TurnResult, Summary) {
	g := guard.New(fixture.Config.ToGuardConfig())
	bus := evalbus.New()
	bridge := chemistry.NewBridge(bus, chemistry.Config{
		Enabled:                true,
		MaxDopamineDelta:       5,
		MaxSerotoninDelta:      3,
		MaxNorepinephrineDelta: 2,
	})
	levels := chemistry.Baseline()

	results := make([]TurnResult, 0, len(fixture.Turns))
	for _, turn := range fixture.Turns {
		res := g.Check(turn.ResponseText, turn.Facts, fixture.PersonaName)
		emitVerdict(bus, res)

		delta := bridge.CalculateDelta()
		levels = chemistry.ApplyDelta(levels, delta)

		results = append(results, TurnResult{
			TurnID: turn.TurnID,
			Action: res.Action,
			Issues: res.Issues,
			Delta:  delta,
			Levels: levels,
		})
	}

	return results, summarize(fixture, results, bus, levels)
}

// emitVerdict mirrors the live pipeline's event shape so replayed
// trust and chemistry numbers line up with production ones.
func emitVerdict(bus *evalbus.Bus, res guard.Result) {
	if res.Action == guard.ActionPass {
		bus.Emit(evalbus.NewEvent(
			evalbus.SourceGuard, evalbus.StageGuard,
			0.1, evalbus.ValencePositive, []evalbus.Tag{evalbus.TagPass}, 0.9,
		))
		return
	}

	tags := []evalbus.Tag{evalbus.TagRetry}
	if res.Action == guard.ActionSoftFail || res.Action == guard.ActionHardFail {
		tags = []evalbus.Tag{evalbus.TagSoftFail}
	}
	var severity float64
	for _, issue := range res.Issues {
		tags = append(tags, evalbus.Tag(string(issue.Type)))
		if float64(issue.Severity) > severity {
			severity = float64(issue.Severity)
		}
	}
	if severity == 0 {
		severity = 0.5
	}
	bus.Emit(evalbus.NewEvent(
		evalbus.SourceGuard, evalbus.StageGuard,
		severity, evalbus.ValenceNegative, tags, 0.9,
	))
}

func summarize(fixture *Fixture, results []TurnResult, bus *evalbus.Bus, final chemistry.Levels) Summary {
	s := Summary{
		TotalTurns:  len(results),
		TrustIndex:  metrics.TrustIndex(bus).Index,
		FinalLevels: final,
	}
	for _, r := range results {
		switch r.Action {
		case guard.ActionPass:
			s.Passes++
		case guard.ActionRetry:
			s.Retries++
		case guard.ActionSoftFail, guard.ActionHardFail:
			s.SoftFails++
		}
	}

	byTurn := make(map[string]guard.Action, len(results))
	for _, r := range results {
		byTurn[r.TurnID] = r.Action
	}
	for _, want := range fixture.ExpectedResults {
		s.Expected++
		if got, ok := byTurn[want.TurnID]; !ok || string(got) != want.Action {
			s.Mismatches = append(s.Mismatches, Mismatch{TurnID: want.TurnID, Want: want.Action, Got: got})
		}
	}
	return s
}

// #endregion run
