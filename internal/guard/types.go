package guard

// #region action

// Action is the guard's verdict for one checked response.
type Action string

const (
	ActionPass     Action = "PASS"
	ActionRetry    Action = "RETRY"
	ActionSoftFail Action = "SOFT_FAIL"
	ActionHardFail Action = "HARD_FAIL"
)

// #endregion action

// #region issue-type

// IssueType categorizes a single content violation.
type IssueType string

const (
	IssueFactMutation          IssueType = "fact_mutation"
	IssueFactApproximation     IssueType = "fact_approximation"
	IssueIdentityLeak          IssueType = "identity_leak"
	IssuePersonaDrift          IssueType = "persona_drift"
	IssueIdentityContradiction IssueType = "identity_contradiction"
)

// #endregion issue-type

// #region issue

// Issue is one detected content violation. Issues are values, never
// errors; the guard does not throw on bad content.
type Issue struct {
	Type     IssueType `json:"type"`
	Field    string    `json:"field,omitempty"`
	Expected string    `json:"expected,omitempty"`
	Actual   string    `json:"actual,omitempty"`
	Severity float32   `json:"severity"`
}

// #endregion issue

// #region result

// Result is the outcome of one guard check. RetryCount reflects the
// owning instance's cumulative counter for the current turn sequence.
type Result struct {
	Action            Action  `json:"action"`
	Issues            []Issue `json:"issues"`
	CorrectedResponse string  `json:"correctedResponse,omitempty"`
	RetryCount        int     `json:"retryCount"`
}

// #endregion result

// #region fact-check

// FactCheck details the fact-echo comparison for one response.
type FactCheck struct {
	Action           Action
	MutatedFacts     []string
	ApproximateFacts []string
	MissingFacts     []string
	Issues           []Issue
}

// #endregion fact-check

// #region config

// Config holds guard thresholds and the retry budget.
type Config struct {
	MaxRetries    int
	StrictFacts   bool    // missing required facts / missing echo force RETRY
	BaseTemp      float32 // starting sampling temperature hint
	MinTemp       float32 // floor for the decaying temperature
	RelTolerance  float64 // relative tolerance for numeric fact comparison
	FallbackReply string  // canned SOFT_FAIL response
}

// DefaultConfig returns guard defaults. Strictness can be forced on via
// GUARD_STRICT_FACTS=true at the pipeline layer.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		StrictFacts:   false,
		BaseTemp:      0.9,
		MinTemp:       0.3,
		RelTolerance:  0.01,
		FallbackReply: "Give me a second, I lost my train of thought. What were we talking about?",
	}
}

// #endregion config
