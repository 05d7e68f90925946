// Package pipeline wraps generate→guard-check cycles with bounded
// retries, a feature-flag kill switch, and consecutive-failure
// escalation. The only suspension point is the caller-supplied
// inference function; everything around it is synchronous.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/danielpatrickdp/response-guard/internal/evalbus"
	"github.com/danielpatrickdp/response-guard/internal/facts"
	"github.com/danielpatrickdp/response-guard/internal/guard"
	"github.com/danielpatrickdp/response-guard/internal/metrics"
)

// #region inference-func

// InferenceFunc regenerates a response at the given sampling temperature.
// retryPrompt carries the concrete issues from the failed attempt; it is
// empty on a first generation.
type InferenceFunc func(ctx context.Context, temperature float32, retryPrompt string) (string, error)

// #endregion inference-func

// #region config

// Config holds pipeline switches and thresholds.
type Config struct {
	Enabled          bool // kill switch; off = return input unchanged, zero side effects
	FailureThreshold int  // consecutive non-PASS outcomes before escalation
}

// DefaultConfig reads the kill switch from RESPONSE_GUARD_ENABLED;
// set to "false" to bypass the guard entirely.
func DefaultConfig() Config {
	enabled := true
	if v := os.Getenv("RESPONSE_GUARD_ENABLED"); v == "false" {
		enabled = false
	}
	return Config{
		Enabled:          enabled,
		FailureThreshold: 5,
	}
}

// #endregion config

// #region options

// CheckOptions carries per-turn inputs into a check cycle.
type CheckOptions struct {
	Facts       facts.Snapshot
	PersonaName string
	Infer       InferenceFunc // required for CheckResponseWithRetry only
}

// CheckResult is what the caller gets back: the text to surface plus
// the guard verdict that produced it.
type CheckResult struct {
	Response    string
	GuardResult guard.Result
	WasModified bool
	RetriesUsed int
}

// #endregion options

// #region pipeline-struct

// Pipeline drives guard checks for one conversation. The guard instance
// (and its retry counter) is owned here, so independent conversations
// must each construct their own pipeline.
type Pipeline struct {
	guard  *guard.Guard
	bus    *evalbus.Bus
	issues *metrics.IssueLog
	config Config

	consecutiveFailures int
}

// New creates a pipeline around an owned guard instance.
func New(g *guard.Guard, bus *evalbus.Bus, issues *metrics.IssueLog, config Config) *Pipeline {
	return &Pipeline{guard: g, bus: bus, issues: issues, config: config}
}

// Enabled reports the kill-switch state.
func (p *Pipeline) Enabled() bool {
	return p.config.Enabled
}

// ConsecutiveFailures exposes the current streak for telemetry.
func (p *Pipeline) ConsecutiveFailures() int {
	return p.consecutiveFailures
}

// #endregion pipeline-struct

// #region single-shot

// CheckResponse runs one guard check over already-generated text. No
// inference calls are made; SOFT_FAIL swaps in the canned fallback.
func (p *Pipeline) CheckResponse(text string, opts CheckOptions) CheckResult {
	if !p.config.Enabled {
		return CheckResult{Response: text}
	}

	result := p.guard.Check(text, opts.Facts, opts.PersonaName)
	p.recordOutcome(result)

	response := text
	modified := false
	if result.Action == guard.ActionSoftFail || result.Action == guard.ActionHardFail {
		response = result.CorrectedResponse
		modified = true
	}

	return CheckResult{
		Response:    response,
		GuardResult: result,
		WasModified: modified,
		RetriesUsed: result.RetryCount,
	}
}

// #endregion single-shot

// #region retry-driving

// CheckResponseWithRetry checks initialText and, on RETRY, asks the
// caller's inference function for a regeneration at a decayed
// temperature until the budget runs out. An inference error becomes an
// immediate SOFT_FAIL; it is never propagated as an error.
func (p *Pipeline) CheckResponseWithRetry(ctx context.Context, initialText string, opts CheckOptions) CheckResult {
	if !p.config.Enabled {
		return CheckResult{Response: initialText}
	}

	// Each call is one turn sequence and starts with a fresh retry
	// budget; a prior turn's exhaustion must not bleed into this one.
	p.guard.Reset()

	text := initialText
	retries := 0

	for {
		result := p.guard.Check(text, opts.Facts, opts.PersonaName)

		switch result.Action {
		case guard.ActionPass:
			p.recordOutcome(result)
			return CheckResult{Response: text, GuardResult: result, RetriesUsed: retries}

		case guard.ActionRetry:
			if opts.Infer == nil {
				return p.softFail(result, retries)
			}
			temp := p.guard.NextTemperature()
			prompt := retryPrompt(result.Issues, opts.Facts)
			log.Printf("[PIPELINE] retry %d at temp=%.2f: %s",
				result.RetryCount, temp, guard.DescribeIssues(result.Issues))

			regenerated, err := opts.Infer(ctx, temp, prompt)
			if err != nil {
				log.Printf("[PIPELINE] inference failed during retry: %v", err)
				return p.softFail(result, retries+1)
			}
			p.recordOutcome(result)
			text = regenerated
			retries++

		default: // SOFT_FAIL / HARD_FAIL
			p.recordOutcome(result)
			return CheckResult{
				Response:    result.CorrectedResponse,
				GuardResult: result,
				WasModified: true,
				RetriesUsed: retries,
			}
		}
	}
}

// softFail converts a verdict into the canned-fallback result used when
// retries cannot continue, and records the converted verdict so the bus
// counts it as a soft fail rather than a retry. The generated text is
// discarded entirely.
func (p *Pipeline) softFail(last guard.Result, retries int) CheckResult {
	fallback := last.CorrectedResponse
	if fallback == "" {
		fallback = guard.DefaultConfig().FallbackReply
	}
	last.Action = guard.ActionSoftFail
	last.CorrectedResponse = fallback
	p.recordOutcome(last)
	return CheckResult{
		Response:    fallback,
		GuardResult: last,
		WasModified: true,
		RetriesUsed: retries,
	}
}

// #endregion retry-driving

// #region outcome-accounting

// recordOutcome emits the guard event onto the bus and advances the
// consecutive-failure detector.
func (p *Pipeline) recordOutcome(result guard.Result) {
	p.emitGuardEvent(result)

	if result.Action == guard.ActionPass {
		p.consecutiveFailures = 0
		return
	}

	// A soft fail terminates the turn sequence, so the retry budget
	// starts over for whatever comes next.
	if result.Action == guard.ActionSoftFail || result.Action == guard.ActionHardFail {
		p.guard.Reset()
	}

	p.consecutiveFailures++
	if p.consecutiveFailures >= p.config.FailureThreshold {
		log.Printf("[PIPELINE] %d consecutive guard failures, logging architecture issue",
			p.consecutiveFailures)
		p.issues.Log(metrics.Issue{
			Type:        metrics.IssueRepeatedFailure,
			Description: fmt.Sprintf("%d consecutive guard failures; generator may have drifted", p.consecutiveFailures),
			Severity:    0.8,
			Context:     guard.DescribeIssues(result.Issues),
		})
		p.consecutiveFailures = 0
	}
}

// emitGuardEvent translates a guard result into one bus event. PASS
// carries an explicit pass tag so pass counting never depends on
// tag-less events.
func (p *Pipeline) emitGuardEvent(result guard.Result) {
	if result.Action == guard.ActionPass {
		p.bus.Emit(evalbus.NewEvent(
			evalbus.SourceGuard, evalbus.StageGuard,
			0.1, evalbus.ValencePositive, []evalbus.Tag{evalbus.TagPass}, 0.9,
		))
		return
	}

	tags := []evalbus.Tag{evalbus.TagRetry}
	if result.Action == guard.ActionSoftFail || result.Action == guard.ActionHardFail {
		tags = []evalbus.Tag{evalbus.TagSoftFail}
	}
	var severity float64
	for _, issue := range result.Issues {
		tags = append(tags, issueTag(issue.Type))
		if float64(issue.Severity) > severity {
			severity = float64(issue.Severity)
		}
	}
	if severity == 0 {
		severity = 0.5
	}

	p.bus.Emit(evalbus.NewEvent(
		evalbus.SourceGuard, evalbus.StageGuard,
		severity, evalbus.ValenceNegative, tags, 0.9,
	))
}

func issueTag(t guard.IssueType) evalbus.Tag {
	switch t {
	case guard.IssueFactMutation:
		return evalbus.TagFactMutation
	case guard.IssueFactApproximation:
		return evalbus.TagFactApproximation
	case guard.IssueIdentityLeak:
		return evalbus.TagIdentityLeak
	case guard.IssuePersonaDrift, guard.IssueIdentityContradiction:
		return evalbus.TagPersonaDrift
	}
	return evalbus.Tag(string(t))
}

// #endregion outcome-accounting

// #region retry-prompt

// retryPrompt lists the concrete problems so the regeneration can fix
// them rather than guess.
func retryPrompt(issues []guard.Issue, snapshot facts.Snapshot) string {
	var b strings.Builder
	b.WriteString("Your previous reply was rejected. Problems found:\n")
	for _, issue := range issues {
		switch issue.Type {
		case guard.IssueFactMutation:
			fmt.Fprintf(&b, "- You reported %s as %s; the true value is %s. Use the true value.\n",
				issue.Field, issue.Actual, issue.Expected)
		case guard.IssueIdentityLeak:
			fmt.Fprintf(&b, "- You referred to yourself as an AI system (%q). Stay in character.\n", issue.Actual)
		case guard.IssuePersonaDrift:
			fmt.Fprintf(&b, "- Assistant-speak detected (%q). Speak in your own voice.\n", issue.Actual)
		case guard.IssueIdentityContradiction:
			fmt.Fprintf(&b, "- You claimed the name %q; your name is %q.\n", issue.Actual, issue.Expected)
		case guard.IssueFactApproximation:
			fmt.Fprintf(&b, "- Fact %q was missing from your fact echo.\n", issue.Field)
		}
	}
	if len(snapshot) > 0 {
		b.WriteString("Current authoritative facts:\n")
		for _, key := range snapshot.Keys() {
			fmt.Fprintf(&b, "- %s: %s\n", key, snapshot[key].Format())
		}
	}
	b.WriteString("Regenerate the reply with these corrected.")
	return b.String()
}

// #endregion retry-prompt
