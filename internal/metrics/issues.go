package metrics

import "time"

// #region issue-type

// IssueType classifies a systemic anomaly worth human review.
type IssueType string

const (
	IssueSourceConflict   IssueType = "SOURCE_CONFLICT"
	IssueIntegrationError IssueType = "INTEGRATION_ERROR"
	IssueRepeatedFailure  IssueType = "REPEATED_FAILURE"
)

// #endregion issue-type

// #region issue

// Issue is one advisory architecture-issue record. Never blocks
// execution; it exists to be read by a human later.
type Issue struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        IssueType `json:"type"`
	Description string    `json:"description"`
	Severity    float64   `json:"severity"`
	Context     string    `json:"context,omitempty"`
}

// #endregion issue

// #region issue-log

const issueCap = 100

// IssueLog is a FIFO ring buffer of architecture issues, capped at 100.
type IssueLog struct {
	issues []Issue
}

// NewIssueLog creates an empty log.
func NewIssueLog() *IssueLog {
	return &IssueLog{}
}

// Log appends an issue, evicting the oldest past capacity. A zero
// timestamp is stamped with the current time.
func (il *IssueLog) Log(issue Issue) {
	if issue.Timestamp.IsZero() {
		issue.Timestamp = time.Now()
	}
	il.issues = append(il.issues, issue)
	if len(il.issues) > issueCap {
		il.issues = il.issues[len(il.issues)-issueCap:]
	}
}

// Recent returns up to n newest issues, newest last. n <= 0 returns all.
func (il *IssueLog) Recent(n int) []Issue {
	if n <= 0 || n > len(il.issues) {
		n = len(il.issues)
	}
	out := make([]Issue, n)
	copy(out, il.issues[len(il.issues)-n:])
	return out
}

// Len returns the number of retained issues.
func (il *IssueLog) Len() int {
	return len(il.issues)
}

// Clear drops all retained issues.
func (il *IssueLog) Clear() {
	il.issues = nil
}

// #endregion issue-log
