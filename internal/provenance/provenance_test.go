package provenance

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/response-guard/internal/guard"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Init(db); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return db
}

func TestLogAndRecent(t *testing.T) {
	db := testDB(t)

	entries := []DecisionEntry{
		{TurnID: "turn-1", Action: guard.ActionPass, ResponseChars: 120},
		{TurnID: "turn-2", Action: guard.ActionRetry, RetryCount: 1, Temperature: 0.8,
			Issues: []guard.Issue{{Type: guard.IssueIdentityLeak, Actual: "as an ai", Severity: 0.9}}},
		{TurnID: "turn-2", Action: guard.ActionPass, RetryCount: 1, ResponseChars: 95},
	}
	for _, e := range entries {
		if err := LogDecision(db, e); err != nil {
			t.Fatalf("LogDecision: %v", err)
		}
	}

	got, err := RecentDecisions(db, 10)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(got))
	}
	// Newest first
	if got[0].TurnID != "turn-2" || got[0].Action != guard.ActionPass {
		t.Errorf("newest = %s/%s, want turn-2/PASS", got[0].TurnID, got[0].Action)
	}
	if got[2].TurnID != "turn-1" {
		t.Errorf("oldest = %s, want turn-1", got[2].TurnID)
	}
}

func TestIssuesRoundTrip(t *testing.T) {
	db := testDB(t)

	issue := guard.Issue{
		Type:     guard.IssueFactMutation,
		Field:    "energy",
		Expected: "23",
		Actual:   "80",
		Severity: 0.8,
	}
	if err := LogDecision(db, DecisionEntry{
		TurnID: "turn-1", Action: guard.ActionRetry, Issues: []guard.Issue{issue},
	}); err != nil {
		t.Fatalf("LogDecision: %v", err)
	}

	got, err := RecentDecisions(db, 1)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(got) != 1 || len(got[0].Issues) != 1 {
		t.Fatalf("expected 1 decision with 1 issue, got %+v", got)
	}
	if got[0].Issues[0] != issue {
		t.Errorf("issue = %+v, want %+v", got[0].Issues[0], issue)
	}
}

func TestDecisionsForTurn(t *testing.T) {
	db := testDB(t)

	LogDecision(db, DecisionEntry{TurnID: "a", Action: guard.ActionRetry, RetryCount: 1})
	LogDecision(db, DecisionEntry{TurnID: "b", Action: guard.ActionPass})
	LogDecision(db, DecisionEntry{TurnID: "a", Action: guard.ActionSoftFail, RetryCount: 3})

	got, err := DecisionsForTurn(db, "a")
	if err != nil {
		t.Fatalf("DecisionsForTurn: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions for turn a, got %d", len(got))
	}
	// Oldest first: the retry precedes the soft fail
	if got[0].Action != guard.ActionRetry || got[1].Action != guard.ActionSoftFail {
		t.Errorf("order = %s, %s; want RETRY, SOFT_FAIL", got[0].Action, got[1].Action)
	}
}

func TestCreatedAtDefaultsToNow(t *testing.T) {
	db := testDB(t)

	before := time.Now().UTC().Add(-time.Second)
	LogDecision(db, DecisionEntry{TurnID: "t", Action: guard.ActionPass})

	got, _ := RecentDecisions(db, 1)
	if len(got) != 1 {
		t.Fatal("expected 1 decision")
	}
	if got[0].CreatedAt.Before(before) {
		t.Errorf("created_at %v predates the insert", got[0].CreatedAt)
	}
}

func TestLogDecisionMissingTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := LogDecision(db, DecisionEntry{TurnID: "t", Action: guard.ActionPass}); err == nil {
		t.Fatal("expected error without schema")
	}
}
