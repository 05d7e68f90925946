package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/danielpatrickdp/response-guard/internal/evalbus"
)

func TestTrustIndex_EmptyBusIsOne(t *testing.T) {
	result := TrustIndex(evalbus.New())
	if result.Index != 1.0 {
		t.Fatalf("index = %v, want exactly 1.0", result.Index)
	}
	if result.TotalEvents != 0 {
		t.Fatalf("total events = %d, want 0", result.TotalEvents)
	}
}

func TestTrustIndex_DropsOnViolations(t *testing.T) {
	tests := []struct {
		name string
		tag  evalbus.Tag
	}{
		{"fact-mutation", evalbus.TagFactMutation},
		{"identity-leak", evalbus.TagIdentityLeak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := evalbus.New()
			bus.Emit(evalbus.NewEvent(evalbus.SourceGuard, evalbus.StageGuard, 0.8,
				evalbus.ValenceNegative, []evalbus.Tag{evalbus.TagRetry, tt.tag}, 1))

			result := TrustIndex(bus)
			if result.Index >= 1.0 {
				t.Fatalf("%s must lower trust, got %v", tt.tag, result.Index)
			}
		})
	}
}

func TestTrustIndex_StaysInRange(t *testing.T) {
	bus := evalbus.New()
	for i := 0; i < 20; i++ {
		bus.Emit(evalbus.NewEvent(evalbus.SourceGuard, evalbus.StageGuard, 1.0,
			evalbus.ValenceNegative,
			[]evalbus.Tag{evalbus.TagSoftFail, evalbus.TagFactMutation, evalbus.TagIdentityLeak}, 1))
	}

	result := TrustIndex(bus)
	if result.Index < 0 || result.Index > 1 {
		t.Fatalf("index out of range: %v", result.Index)
	}
	if result.Index != 0 {
		t.Fatalf("saturated violations should floor trust at 0, got %v", result.Index)
	}
}

func TestPenaltyLedger_CapEnforcement(t *testing.T) {
	l := NewPenaltyLedger()

	l.Record(evalbus.StageTool, 4)

	if l.CanApply(evalbus.StageTool, 2) {
		t.Fatal("4+2 exceeds the TOOL cap of 5")
	}
	if !l.CanApply(evalbus.StageTool, 1) {
		t.Fatal("4+1 fits the TOOL cap of 5")
	}
}

func TestPenaltyLedger_StagesIndependent(t *testing.T) {
	l := NewPenaltyLedger()

	l.Record(evalbus.StageTool, 5)

	if !l.CanApply(evalbus.StagePrism, 10) {
		t.Fatal("PRISM budget must be unaffected by TOOL spending")
	}
	if got := l.Remaining(evalbus.StagePrism); got != 15 {
		t.Fatalf("PRISM remaining = %v, want 15", got)
	}
	if got := l.Remaining(evalbus.StageTool); got != 0 {
		t.Fatalf("TOOL remaining = %v, want 0", got)
	}
}

func TestPenaltyLedger_LazyRollover(t *testing.T) {
	day := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	clock := func() time.Time { return day }
	l := NewPenaltyLedgerWithClock(func() time.Time { return clock() })

	l.Record(evalbus.StageGuard, 10)
	if l.CanApply(evalbus.StageGuard, 1) {
		t.Fatal("GUARD budget should be exhausted")
	}

	// Midnight passes; the next access must reset every stage first.
	next := day.Add(time.Hour)
	clock = func() time.Time { return next }

	if !l.CanApply(evalbus.StageGuard, 10) {
		t.Fatal("rollover must reset the GUARD budget")
	}
	if got := l.Spent(evalbus.StageGuard); got != 0 {
		t.Fatalf("spent after rollover = %v, want 0", got)
	}
	if l.Date() != "2026-03-02" {
		t.Fatalf("ledger date = %s, want 2026-03-02", l.Date())
	}
}

func TestIssueLog_RingBufferEviction(t *testing.T) {
	il := NewIssueLog()
	for i := 0; i < 110; i++ {
		il.Log(Issue{
			Type:        IssueRepeatedFailure,
			Description: fmt.Sprintf("issue %d", i),
			Severity:    0.5,
		})
	}

	if il.Len() != 100 {
		t.Fatalf("len = %d, want 100", il.Len())
	}
	all := il.Recent(0)
	if all[0].Description != "issue 10" {
		t.Fatalf("oldest retained = %q, want issue 10", all[0].Description)
	}
	if all[len(all)-1].Description != "issue 109" {
		t.Fatalf("newest retained = %q, want issue 109", all[len(all)-1].Description)
	}
}

func TestDashboard_Snapshot(t *testing.T) {
	bus := evalbus.New()
	ledger := NewPenaltyLedger()
	issues := NewIssueLog()
	ledger.Record(evalbus.StageTool, 2)
	issues.Log(Issue{Type: IssueIntegrationError, Description: "probe", Severity: 0.4})

	snap := Dashboard(bus, ledger, issues)

	if snap.Trust.Index != 1.0 {
		t.Fatalf("trust on empty bus = %v, want 1.0", snap.Trust.Index)
	}
	if snap.Budgets[evalbus.StageTool].Spent != 2 || snap.Budgets[evalbus.StageTool].Remaining != 3 {
		t.Fatalf("TOOL budget wrong: %+v", snap.Budgets[evalbus.StageTool])
	}
	if len(snap.Issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(snap.Issues))
	}
}
