package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/response-guard/internal/guard"
	"github.com/danielpatrickdp/response-guard/internal/provenance"
	"github.com/danielpatrickdp/response-guard/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to response_guard.db")
	last := flag.Int("last", 20, "show N most recent entries")
	version := flag.String("version", "", "show single chemistry version detail")
	turn := flag.String("turn", "", "show all guard decisions for one turn")
	decisions := flag.Bool("decisions", false, "list guard decisions instead of chemistry versions")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/response_guard.db [--last N] [--version id] [--turn id] [--decisions] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *version != "":
		err = runVersionDetail(store, *version, *jsonOut)
	case *turn != "":
		err = runTurnMode(store, *turn, *jsonOut)
	case *decisions:
		err = runDecisionsMode(store, *last, *jsonOut)
	default:
		err = runChemistryMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region chemistry-mode

type chemistryRow struct {
	VersionID      string  `json:"version_id"`
	ParentID       string  `json:"parent_id,omitempty"`
	Dopamine       float64 `json:"dopamine"`
	Serotonin      float64 `json:"serotonin"`
	Norepinephrine float64 `json:"norepinephrine"`
	DeltaDopamine  float64 `json:"delta_dopamine"`
	DeltaSource    string  `json:"delta_source,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func runChemistryMode(store *state.Store, last int, jsonOut bool) error {
	versions, err := store.History(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no chemistry versions found")
		return nil
	}

	// Store returns DESC, reverse for chronological display
	rows := make([]chemistryRow, len(versions))
	for i, v := range versions {
		rows[len(versions)-1-i] = chemistryRow{
			VersionID:      v.VersionID,
			ParentID:       v.ParentID,
			Dopamine:       v.Levels.Dopamine,
			Serotonin:      v.Levels.Serotonin,
			Norepinephrine: v.Levels.Norepinephrine,
			DeltaDopamine:  v.Delta.Dopamine,
			DeltaSource:    string(v.Delta.Source),
			CreatedAt:      v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %8s  %9s  %6s  %8s  %-10s  %s\n",
		"Version", "Dopamine", "Serotonin", "Norepi", "Delta DA", "Source", "Time")
	fmt.Printf("%-12s+-%8s+-%9s+-%6s+-%8s+-%-10s+-%s\n",
		"------------", "--------", "---------", "------", "--------", "----------", "--------------------")
	for _, r := range rows {
		src := r.DeltaSource
		if src == "" {
			src = "—"
		}
		fmt.Printf("%-12s  %8.2f  %9.2f  %6.2f  %+8.2f  %-10s  %s\n",
			shortID(r.VersionID), r.Dopamine, r.Serotonin, r.Norepinephrine,
			r.DeltaDopamine, src, r.CreatedAt)
	}
	return nil
}

// #endregion chemistry-mode

// #region version-detail

func runVersionDetail(store *state.Store, versionID string, jsonOut bool) error {
	v, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(chemistryRow{
			VersionID:      v.VersionID,
			ParentID:       v.ParentID,
			Dopamine:       v.Levels.Dopamine,
			Serotonin:      v.Levels.Serotonin,
			Norepinephrine: v.Levels.Norepinephrine,
			DeltaDopamine:  v.Delta.Dopamine,
			DeltaSource:    string(v.Delta.Source),
			CreatedAt:      v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	fmt.Printf("Version:        %s\n", v.VersionID)
	fmt.Printf("Parent:         %s\n", v.ParentID)
	fmt.Printf("Created:        %s\n", v.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Dopamine:       %.2f\n", v.Levels.Dopamine)
	fmt.Printf("Serotonin:      %.2f\n", v.Levels.Serotonin)
	fmt.Printf("Norepinephrine: %.2f\n", v.Levels.Norepinephrine)
	if v.Delta.Source != "" {
		fmt.Printf("\nApplied delta (%s, confidence %.2f):\n", v.Delta.Source, v.Delta.Confidence)
		fmt.Printf("  dopamine       %+.2f\n", v.Delta.Dopamine)
		fmt.Printf("  serotonin      %+.2f\n", v.Delta.Serotonin)
		fmt.Printf("  norepinephrine %+.2f\n", v.Delta.Norepinephrine)
	}
	return nil
}

// #endregion version-detail

// #region decision-modes

func runDecisionsMode(store *state.Store, last int, jsonOut bool) error {
	entries, err := provenance.RecentDecisions(store.DB(), last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no guard decisions found")
		return nil
	}
	return printDecisions(entries, jsonOut)
}

func runTurnMode(store *state.Store, turnID string, jsonOut bool) error {
	entries, err := provenance.DecisionsForTurn(store.DB(), turnID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "no decisions for turn %s\n", turnID)
		return nil
	}
	return printDecisions(entries, jsonOut)
}

func printDecisions(entries []provenance.DecisionEntry, jsonOut bool) error {
	if jsonOut {
		return printJSON(entries)
	}

	fmt.Printf("%-12s  %-10s  %7s  %6s  %-40s  %s\n",
		"Turn", "Action", "Retries", "Chars", "Issues", "Time")
	fmt.Printf("%-12s+-%-10s+-%7s+-%6s+-%-40s+-%s\n",
		"------------", "----------", "-------", "------", "----------------------------------------", "--------------------")
	for _, e := range entries {
		fmt.Printf("%-12s  %-10s  %7d  %6d  %-40s  %s\n",
			shortID(e.TurnID), e.Action, e.RetryCount, e.ResponseChars,
			truncate(guard.DescribeIssues(e.Issues), 40),
			e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion decision-modes

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// #endregion output
