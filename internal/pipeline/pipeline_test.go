package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danielpatrickdp/response-guard/internal/evalbus"
	"github.com/danielpatrickdp/response-guard/internal/facts"
	"github.com/danielpatrickdp/response-guard/internal/guard"
	"github.com/danielpatrickdp/response-guard/internal/metrics"
)

func newTestPipeline(config Config) (*Pipeline, *evalbus.Bus, *metrics.IssueLog) {
	bus := evalbus.New()
	issues := metrics.NewIssueLog()
	g := guard.New(guard.DefaultConfig())
	return New(g, bus, issues, config), bus, issues
}

func enabledConfig() Config {
	return Config{Enabled: true, FailureThreshold: 5}
}

func TestCheckResponse_KillSwitchBypassesEverything(t *testing.T) {
	p, bus, issues := newTestPipeline(Config{Enabled: false, FailureThreshold: 5})

	text := "As an AI language model, I cannot do that."
	result := p.CheckResponse(text, CheckOptions{})

	if result.Response != text {
		t.Errorf("disabled pipeline altered text: %q", result.Response)
	}
	if result.WasModified {
		t.Error("disabled pipeline reported modification")
	}
	if got := bus.Metrics().TotalEvents; got != 0 {
		t.Errorf("disabled pipeline emitted %d events, want 0", got)
	}
	if issues.Len() != 0 {
		t.Errorf("disabled pipeline logged %d issues, want 0", issues.Len())
	}
}

func TestCheckResponse_CleanTextPasses(t *testing.T) {
	p, bus, _ := newTestPipeline(enabledConfig())

	result := p.CheckResponse("The weather looks fine today.", CheckOptions{})

	if result.GuardResult.Action != guard.ActionPass {
		t.Fatalf("action = %s, want PASS", result.GuardResult.Action)
	}
	if result.WasModified {
		t.Error("pass result marked modified")
	}
	stats := bus.GuardStats()
	if stats.PassRate != 1 {
		t.Errorf("bus pass rate = %v, want 1", stats.PassRate)
	}
}

func TestCheckResponse_IdentityLeakEmitsNegativeEvent(t *testing.T) {
	p, bus, _ := newTestPipeline(enabledConfig())

	result := p.CheckResponse("As an AI, I cannot feel things.", CheckOptions{PersonaName: "Vera"})

	if result.GuardResult.Action != guard.ActionRetry {
		t.Fatalf("action = %s, want RETRY", result.GuardResult.Action)
	}
	m := bus.Metrics()
	if m.ByTag[evalbus.TagIdentityLeak] != 1 {
		t.Errorf("identity_leak tag count = %d, want 1", m.ByTag[evalbus.TagIdentityLeak])
	}
	if bus.GuardStats().RetryRate != 1 {
		t.Errorf("retry rate = %v, want 1", bus.GuardStats().RetryRate)
	}
}

func TestCheckResponseWithRetry_RegeneratesAtDecayedTemperature(t *testing.T) {
	p, _, _ := newTestPipeline(enabledConfig())

	var gotTemp float32
	var gotPrompt string
	infer := func(ctx context.Context, temperature float32, retryPrompt string) (string, error) {
		gotTemp = temperature
		gotPrompt = retryPrompt
		return "Right, back on track now.", nil
	}

	result := p.CheckResponseWithRetry(context.Background(),
		"As an AI, I should clarify something.",
		CheckOptions{PersonaName: "Vera", Infer: infer})

	if result.GuardResult.Action != guard.ActionPass {
		t.Fatalf("final action = %s, want PASS", result.GuardResult.Action)
	}
	if result.RetriesUsed != 1 {
		t.Errorf("retries used = %d, want 1", result.RetriesUsed)
	}
	if gotTemp != 0.8 {
		t.Errorf("retry temperature = %v, want 0.8", gotTemp)
	}
	if !strings.Contains(gotPrompt, "Stay in character") {
		t.Errorf("retry prompt missing identity guidance: %q", gotPrompt)
	}
	if result.Response != "Right, back on track now." {
		t.Errorf("response = %q", result.Response)
	}
}

func TestCheckResponseWithRetry_BudgetExhaustionSoftFails(t *testing.T) {
	p, bus, _ := newTestPipeline(enabledConfig())

	calls := 0
	infer := func(ctx context.Context, temperature float32, retryPrompt string) (string, error) {
		calls++
		return "As an AI, I keep slipping.", nil
	}

	result := p.CheckResponseWithRetry(context.Background(),
		"As an AI, I must be honest.",
		CheckOptions{PersonaName: "Vera", Infer: infer})

	if result.GuardResult.Action != guard.ActionSoftFail {
		t.Fatalf("final action = %s, want SOFT_FAIL", result.GuardResult.Action)
	}
	if calls != 2 {
		t.Errorf("inference calls = %d, want 2", calls)
	}
	if !result.WasModified {
		t.Error("soft fail not marked as modified")
	}
	if result.Response != guard.DefaultConfig().FallbackReply {
		t.Errorf("response = %q, want canned fallback", result.Response)
	}
	stats := bus.GuardStats()
	if stats.TotalEvents != 3 {
		t.Errorf("guard events = %d, want 3 (retry, retry, soft fail)", stats.TotalEvents)
	}
	if stats.SoftFailRate == 0 {
		t.Error("soft fail rate is zero after a soft fail")
	}
}

func TestCheckResponseWithRetry_FreshBudgetEachTurn(t *testing.T) {
	p, _, _ := newTestPipeline(enabledConfig())

	// Turn 1 exhausts the budget.
	alwaysBad := func(ctx context.Context, temperature float32, retryPrompt string) (string, error) {
		return "As an AI, I keep slipping.", nil
	}
	first := p.CheckResponseWithRetry(context.Background(),
		"As an AI, strike one.",
		CheckOptions{PersonaName: "Vera", Infer: alwaysBad})
	if first.GuardResult.Action != guard.ActionSoftFail {
		t.Fatalf("turn 1 action = %s, want SOFT_FAIL", first.GuardResult.Action)
	}

	// Turn 2 must get its own budget: one retry fixes the issue.
	calls := 0
	fixesIt := func(ctx context.Context, temperature float32, retryPrompt string) (string, error) {
		calls++
		return "Back in character now.", nil
	}
	second := p.CheckResponseWithRetry(context.Background(),
		"As an AI, strike one of a new turn.",
		CheckOptions{PersonaName: "Vera", Infer: fixesIt})

	if second.GuardResult.Action != guard.ActionPass {
		t.Fatalf("turn 2 action = %s, want PASS (budget leaked from turn 1)", second.GuardResult.Action)
	}
	if calls != 1 || second.RetriesUsed != 1 {
		t.Errorf("turn 2 inference calls = %d, retries = %d; want 1 and 1", calls, second.RetriesUsed)
	}
}

func TestCheckResponse_SoftFailEndsTurnSequence(t *testing.T) {
	p, _, _ := newTestPipeline(enabledConfig())
	bad := "As an AI, I cannot comply."

	var last CheckResult
	for i := 0; i < 3; i++ {
		last = p.CheckResponse(bad, CheckOptions{})
	}
	if last.GuardResult.Action != guard.ActionSoftFail {
		t.Fatalf("third check = %s, want SOFT_FAIL", last.GuardResult.Action)
	}

	// The next flawed check opens a new sequence with retries available.
	next := p.CheckResponse(bad, CheckOptions{})
	if next.GuardResult.Action != guard.ActionRetry {
		t.Fatalf("post-soft-fail check = %s, want RETRY with a fresh budget", next.GuardResult.Action)
	}
}

func TestCheckResponseWithRetry_InferenceErrorBecomesSoftFail(t *testing.T) {
	p, _, _ := newTestPipeline(enabledConfig())

	infer := func(ctx context.Context, temperature float32, retryPrompt string) (string, error) {
		return "", errors.New("connection refused")
	}

	result := p.CheckResponseWithRetry(context.Background(),
		"As an AI, I have a problem.",
		CheckOptions{PersonaName: "Vera", Infer: infer})

	if result.GuardResult.Action != guard.ActionSoftFail {
		t.Fatalf("final action = %s, want SOFT_FAIL", result.GuardResult.Action)
	}
	if result.Response != guard.DefaultConfig().FallbackReply {
		t.Errorf("response = %q, want canned fallback", result.Response)
	}
}

func TestCheckResponseWithRetry_NoInferFuncSoftFails(t *testing.T) {
	p, _, _ := newTestPipeline(enabledConfig())

	result := p.CheckResponseWithRetry(context.Background(),
		"As an AI, I cannot retry without help.",
		CheckOptions{PersonaName: "Vera"})

	if result.GuardResult.Action != guard.ActionSoftFail {
		t.Fatalf("final action = %s, want SOFT_FAIL", result.GuardResult.Action)
	}
}

func TestCheckResponseWithRetry_FactMutationCorrectedInPrompt(t *testing.T) {
	p, _, _ := newTestPipeline(enabledConfig())

	snapshot := facts.Snapshot{
		"energy": facts.Number(23),
	}
	var gotPrompt string
	infer := func(ctx context.Context, temperature float32, retryPrompt string) (string, error) {
		gotPrompt = retryPrompt
		return `{"speech": "Feeling low on fuel.", "fact_echo": {"energy": 23}}`, nil
	}

	result := p.CheckResponseWithRetry(context.Background(),
		`{"speech": "Plenty of energy!", "fact_echo": {"energy": 80}}`,
		CheckOptions{Facts: snapshot, Infer: infer})

	if result.GuardResult.Action != guard.ActionPass {
		t.Fatalf("final action = %s, want PASS", result.GuardResult.Action)
	}
	if !strings.Contains(gotPrompt, "energy") || !strings.Contains(gotPrompt, "23") {
		t.Errorf("retry prompt missing corrected fact: %q", gotPrompt)
	}
}

func TestConsecutiveFailures_EscalatesAndResets(t *testing.T) {
	config := Config{Enabled: true, FailureThreshold: 3}
	p, _, issues := newTestPipeline(config)

	for i := 0; i < 2; i++ {
		p.CheckResponse("As an AI, I persist in failing.", CheckOptions{})
	}
	if issues.Len() != 0 {
		t.Fatalf("escalated after 2 failures, threshold is 3")
	}

	p.CheckResponse("As an AI, one more failure.", CheckOptions{})
	if issues.Len() != 1 {
		t.Fatalf("issues = %d, want 1 after threshold", issues.Len())
	}
	if got := issues.Recent(1)[0].Type; got != metrics.IssueRepeatedFailure {
		t.Errorf("issue type = %s, want REPEATED_FAILURE", got)
	}
	if p.ConsecutiveFailures() != 0 {
		t.Errorf("streak = %d, want 0 after escalation", p.ConsecutiveFailures())
	}
}

func TestConsecutiveFailures_PassResetsStreak(t *testing.T) {
	config := Config{Enabled: true, FailureThreshold: 3}
	p, _, issues := newTestPipeline(config)

	p.CheckResponse("As an AI, failing once.", CheckOptions{})
	p.CheckResponse("Just a normal sentence.", CheckOptions{})
	p.CheckResponse("As an AI, failing again.", CheckOptions{})
	p.CheckResponse("As an AI, and again.", CheckOptions{})

	if issues.Len() != 0 {
		t.Errorf("streak escalated despite intervening pass")
	}
}
