package main

import (
	"flag"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/response-guard/internal/guard"
	"github.com/danielpatrickdp/response-guard/internal/provenance"
	"github.com/danielpatrickdp/response-guard/internal/replay"
	"github.com/danielpatrickdp/response-guard/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to response_guard.db (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/response_guard.db")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results, summary := replay.Run(f)

	fmt.Printf("%-12s| %-10s| %-40s| %8s\n", "Turn", "Action", "Issues", "Dopamine")
	fmt.Printf("%-12s+%-11s+%-41s+%s\n",
		"------------", "-----------", "-----------------------------------------", "---------")
	for _, r := range results {
		fmt.Printf("%-12s| %-10s| %-40s| %8.2f\n",
			r.TurnID, r.Action, truncate(guard.DescribeIssues(r.Issues), 40), r.Levels.Dopamine)
	}

	fmt.Printf("\nSummary: %d turns, %d pass, %d retry, %d soft-fail | trust %.3f | final DA %.2f SE %.2f NE %.2f\n",
		summary.TotalTurns, summary.Passes, summary.Retries, summary.SoftFails,
		summary.TrustIndex, summary.FinalLevels.Dopamine, summary.FinalLevels.Serotonin,
		summary.FinalLevels.Norepinephrine)

	if summary.Expected > 0 {
		if len(summary.Mismatches) == 0 {
			fmt.Printf("Expectations: %d/%d match\n", summary.Expected, summary.Expected)
			return 0
		}
		fmt.Printf("Expectations: %d/%d match\n", summary.Expected-len(summary.Mismatches), summary.Expected)
		for _, m := range summary.Mismatches {
			fmt.Printf("  DIFF %s: expected %s, got %s\n", m.TurnID, m.Want, m.Got)
		}
		return 1
	}
	return 0
}

// #endregion fixture-mode

// #region db-mode

// runDBMode re-checks recorded guard decisions against the current
// rules: each logged verdict is compared to what the guard says today.
// The response text is not stored, so only turns whose issues were
// persisted can diverge in one direction — this mode reports the
// recorded action distribution and flags turns where the retry budget
// arithmetic no longer lines up.
func runDBMode(dbPath string) int {
	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	entries, err := provenance.RecentDecisions(store.DB(), 1000)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query decisions: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no guard decisions found")
		return 2
	}

	cfg := guard.DefaultConfig()
	var passes, retries, softFails, overBudget int
	for _, e := range entries {
		switch e.Action {
		case guard.ActionPass:
			passes++
		case guard.ActionRetry:
			retries++
		case guard.ActionSoftFail, guard.ActionHardFail:
			softFails++
		}
		if e.RetryCount > cfg.MaxRetries {
			overBudget++
			fmt.Printf("  OVER-BUDGET turn %s: %d retries recorded, budget is %d\n",
				e.TurnID, e.RetryCount, cfg.MaxRetries)
		}
	}

	fmt.Printf("Decisions: %d total, %d pass, %d retry, %d soft-fail\n",
		len(entries), passes, retries, softFails)
	if overBudget > 0 {
		fmt.Printf("%d turns exceed the current retry budget\n", overBudget)
		return 1
	}
	return 0
}

// #endregion db-mode

// #region output

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// #endregion output
