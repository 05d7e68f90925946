// Package guard validates generated speech against system-computed facts
// and persona constraints. It never mutates the facts it checks against
// and it never throws: violations surface as Issue values on a Result.
package guard

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/response-guard/internal/facts"
)

// #region identity-patterns

// identityPatterns leak the underlying model identity. Any match on the
// speech field forces a retry.
var identityPatterns = []string{
	"as an ai",
	"as a language model",
	"i'm a language model",
	"i am a language model",
	"i'm an ai",
	"i am an ai",
	"my training data",
	"my training cutoff",
	"i was trained",
	"chatgpt",
	"gpt-4",
	"gpt-3",
	"claude",
	"gemini",
	"llama",
	"openai",
	"anthropic",
}

// #endregion identity-patterns

// #region drift-patterns

// driftPatterns are generic assistant-speak that breaks persona voice.
var driftPatterns = []string{
	"how can i help",
	"how may i assist",
	"how can i assist",
	"what can i do for you",
	"is there anything else",
	"feel free to ask",
	"i'd be happy to help",
}

// #endregion drift-patterns

// #region required-facts

// requiredFacts must appear in the echo when strict mode is on.
var requiredFacts = map[string]bool{
	facts.TimeKey: true,
}

// #endregion required-facts

// #region guard-struct

// Guard holds the per-conversation retry counter. Instances must not be
// shared across conversations: each turn sequence (and each test) owns one.
type Guard struct {
	config     Config
	retryCount int
}

// New creates a guard with the given configuration.
func New(config Config) *Guard {
	return &Guard{config: config}
}

// RetryCount returns the current cumulative retry counter.
func (g *Guard) RetryCount() int {
	return g.retryCount
}

// Reset zeroes the retry counter for a new turn sequence.
func (g *Guard) Reset() {
	g.retryCount = 0
}

// NextTemperature derives the decaying sampling-temperature hint for the
// next inference attempt.
func (g *Guard) NextTemperature() float32 {
	t := g.config.BaseTemp - 0.1*float32(g.retryCount)
	if t < g.config.MinTemp {
		return g.config.MinTemp
	}
	return t
}

// #endregion guard-struct

// #region check

// Check classifies generated text against the authoritative snapshot and
// an optional persona name. personaName may be empty.
func (g *Guard) Check(text string, snapshot facts.Snapshot, personaName string) Result {
	env := ParseEnvelope(text)

	var issues []Issue

	factCheck := g.CheckFactEcho(env.FactEcho, snapshot)
	issues = append(issues, factCheck.Issues...)
	issues = append(issues, checkIdentityLeak(env.Speech)...)
	issues = append(issues, checkPersonaDrift(env.Speech, personaName)...)

	forced := factCheck.Action == ActionRetry
	for _, issue := range issues {
		if issue.Type == IssueFactMutation || issue.Type == IssueIdentityLeak {
			forced = true
		}
		if issue.Type == IssuePersonaDrift || issue.Type == IssueIdentityContradiction {
			forced = true
		}
	}

	if !forced {
		g.retryCount = 0
		return Result{Action: ActionPass, Issues: issues, RetryCount: 0}
	}

	// Retry budget exhausted: discard the text entirely and fall back to
	// the canned response. No partial patching.
	if g.retryCount >= g.config.MaxRetries-1 {
		g.retryCount++
		return Result{
			Action:            ActionSoftFail,
			Issues:            issues,
			CorrectedResponse: g.config.FallbackReply,
			RetryCount:        g.retryCount,
		}
	}

	g.retryCount++
	return Result{Action: ActionRetry, Issues: issues, RetryCount: g.retryCount}
}

// #endregion check

// #region fact-echo

// CheckFactEcho compares the echoed facts against the authoritative
// snapshot. Extra echoed keys are ignored; only snapshot keys matter.
func (g *Guard) CheckFactEcho(echo, snapshot facts.Snapshot) FactCheck {
	check := FactCheck{Action: ActionPass}

	if len(snapshot) == 0 {
		return check
	}

	// No echo at all: acceptable unless strict facts are required.
	if len(echo) == 0 {
		if g.config.StrictFacts {
			check.Action = ActionRetry
			for k := range requiredFacts {
				if _, ok := snapshot[k]; ok {
					check.MissingFacts = append(check.MissingFacts, k)
				}
			}
		}
		return check
	}

	for key, want := range snapshot {
		got, ok := echo[key]
		if !ok {
			check.MissingFacts = append(check.MissingFacts, key)
			if requiredFacts[key] && g.config.StrictFacts {
				check.Action = ActionRetry
			} else if !requiredFacts[key] {
				check.ApproximateFacts = append(check.ApproximateFacts, key)
				check.Issues = append(check.Issues, Issue{
					Type:     IssueFactApproximation,
					Field:    key,
					Expected: want.Format(),
					Severity: 0.3,
				})
			}
			continue
		}

		if !g.valuesMatch(want, got) {
			check.MutatedFacts = append(check.MutatedFacts, key)
			check.Action = ActionRetry
			check.Issues = append(check.Issues, Issue{
				Type:     IssueFactMutation,
				Field:    key,
				Expected: want.Format(),
				Actual:   got.Format(),
				Severity: 0.8,
			})
		}
	}

	return check
}

// valuesMatch compares an authoritative value with an echoed one.
// Numeric comparison tolerates ±RelTolerance relative error and accepts
// numeric strings on either side.
func (g *Guard) valuesMatch(want, got facts.Value) bool {
	wantNum, wantIsNum := want.AsNumber()
	gotNum, gotIsNum := got.AsNumber()
	if wantIsNum && gotIsNum {
		diff := math.Abs(wantNum - gotNum)
		scale := math.Abs(wantNum)
		if scale == 0 {
			return diff <= g.config.RelTolerance
		}
		return diff/scale <= g.config.RelTolerance
	}
	return strings.EqualFold(strings.TrimSpace(want.Format()), strings.TrimSpace(got.Format()))
}

// #endregion fact-echo

// #region identity-check

func checkIdentityLeak(speech string) []Issue {
	lower := strings.ToLower(speech)
	var issues []Issue
	for _, p := range identityPatterns {
		if strings.Contains(lower, p) {
			issues = append(issues, Issue{
				Type:     IssueIdentityLeak,
				Actual:   p,
				Severity: 0.9,
			})
		}
	}
	return issues
}

// #endregion identity-check

// #region persona-check

func checkPersonaDrift(speech, personaName string) []Issue {
	lower := strings.ToLower(speech)
	var issues []Issue

	for _, p := range driftPatterns {
		if strings.Contains(lower, p) {
			issues = append(issues, Issue{
				Type:     IssuePersonaDrift,
				Actual:   p,
				Severity: 0.5,
			})
			break
		}
	}

	if personaName != "" {
		if claimed, ok := claimedName(speech); ok && !strings.EqualFold(claimed, personaName) {
			issues = append(issues, Issue{
				Type:     IssueIdentityContradiction,
				Expected: personaName,
				Actual:   claimed,
				Severity: 0.7,
			})
		}
	}

	return issues
}

// claimedName extracts a self-introduced name ("my name is X", "i'm
// called X", or bare "I'm X"). The bare form counts only when X is
// capitalized in the original text, so "I'm sure" never trips it.
func claimedName(speech string) (string, bool) {
	lower := strings.ToLower(speech)

	markers := []string{"my name is ", "i'm called ", "i am called "}
	for _, m := range markers {
		idx := strings.Index(lower, m)
		if idx < 0 {
			continue
		}
		name := firstWord(lower[idx+len(m):])
		if name != "" {
			return name, true
		}
	}

	for _, m := range []string{"i'm ", "i am "} {
		idx := indexAtWordStart(lower, m)
		if idx < 0 {
			continue
		}
		word := firstWord(speech[idx+len(m):])
		if word != "" && unicode.IsUpper([]rune(word)[0]) {
			return strings.ToLower(word), true
		}
	}

	return "", false
}

// indexAtWordStart finds sub at a word boundary, so "him " never
// matches "i'm ".
func indexAtWordStart(s, sub string) int {
	for from := 0; ; {
		idx := strings.Index(s[from:], sub)
		if idx < 0 {
			return -1
		}
		idx += from
		if idx == 0 || !unicode.IsLetter(rune(s[idx-1])) {
			return idx
		}
		from = idx + 1
	}
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '.' || r == ',' || r == '!' || r == '?' || r == '\n'
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

// #endregion persona-check

// #region describe

// DescribeIssues renders issues for retry prompts and log lines.
func DescribeIssues(issues []Issue) string {
	if len(issues) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(issues))
	for _, i := range issues {
		switch i.Type {
		case IssueFactMutation:
			parts = append(parts, fmt.Sprintf("%s: state %q altered to %q", i.Type, i.Expected, i.Actual))
		case IssueIdentityContradiction:
			parts = append(parts, fmt.Sprintf("%s: claimed name %q, persona is %q", i.Type, i.Actual, i.Expected))
		default:
			parts = append(parts, fmt.Sprintf("%s: %q", i.Type, i.Actual))
		}
	}
	return strings.Join(parts, "; ")
}

// #endregion describe
