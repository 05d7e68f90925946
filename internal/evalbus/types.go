package evalbus

import (
	"time"

	"github.com/google/uuid"
)

// #region source

// Source identifies which subsystem produced an evaluation event.
type Source string

const (
	SourceGoal       Source = "GOAL"
	SourceConfession Source = "CONFESSION"
	SourceParser     Source = "PARSER"
	SourceGuard      Source = "GUARD"
	SourceUser       Source = "USER"
)

// #endregion source

// #region stage

// Stage identifies the pipeline layer a signal originated from.
type Stage string

const (
	StageTool   Stage = "TOOL"
	StageRouter Stage = "ROUTER"
	StagePrism  Stage = "PRISM"
	StageGuard  Stage = "GUARD"
	StageUser   Stage = "USER"
)

// StageWeights encode how much each layer's signals count toward the
// aggregated chemistry signal. Relative ordering is load-bearing: user
// signals are ground truth, tool hiccups are recoverable noise.
var StageWeights = map[Stage]float64{
	StageTool:   0.02,
	StageRouter: 0.03,
	StageGuard:  0.05,
	StagePrism:  0.10,
	StageUser:   0.15,
}

// #endregion stage

// #region valence

// Valence is the sign of an evaluation signal.
type Valence string

const (
	ValencePositive Valence = "positive"
	ValenceNegative Valence = "negative"
)

// #endregion valence

// #region tags

// Tag labels an event with the violation or outcome it records.
type Tag string

const (
	TagPass              Tag = "pass"
	TagRetry             Tag = "retry"
	TagSoftFail          Tag = "soft_fail"
	TagFactMutation      Tag = "fact_mutation"
	TagFactApproximation Tag = "fact_approximation"
	TagIdentityLeak      Tag = "identity_leak"
	TagPersonaDrift      Tag = "persona_drift"
)

// #endregion tags

// #region event

// Event is one immutable evaluation signal. Create only via NewEvent,
// which clamps severity and confidence into [0,1].
type Event struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Source      Source    `json:"source"`
	Stage       Stage     `json:"stage"`
	Severity    float64   `json:"severity"`
	Valence     Valence   `json:"valence"`
	Tags        []Tag     `json:"tags"`
	Confidence  float64   `json:"confidence"`
	Attribution string    `json:"attribution,omitempty"`
	Context     string    `json:"context,omitempty"`
}

// NewEvent constructs an event with a fresh ID and timestamp. Severity
// and confidence are clamped into [0,1] regardless of input.
func NewEvent(source Source, stage Stage, severity float64, valence Valence, tags []Tag, confidence float64) Event {
	return Event{
		ID:         uuid.New().String(),
		Timestamp:  time.Now(),
		Source:     source,
		Stage:      stage,
		Severity:   clamp01(severity),
		Valence:    valence,
		Tags:       tags,
		Confidence: clamp01(confidence),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion event

// #region aggregated-signal

// AggregatedSignal is the windowed composite read by the chemistry
// bridge. Confidence == 0 means "no signal", not "signal of zero".
type AggregatedSignal struct {
	DopamineDelta float64 `json:"dopamineDelta"`
	Confidence    float64 `json:"confidence"`
}

// #endregion aggregated-signal

// #region metrics

// Metrics is the running-total view over all emitted events.
type Metrics struct {
	TotalEvents   int             `json:"totalEvents"`
	PositiveCount int             `json:"positiveCount"`
	NegativeCount int             `json:"negativeCount"`
	AvgSeverity   float64         `json:"avgSeverity"`
	AvgConfidence float64         `json:"avgConfidence"`
	BySource      map[Source]int  `json:"bySource"`
	ByStage       map[Stage]int   `json:"byStage"`
	ByTag         map[Tag]int     `json:"byTag"`
}

// #endregion metrics

// #region guard-stats

// GuardStats summarizes guard outcomes. Pass/retry/soft-fail rates are
// normalized by their own sum; mutation and drift rates are normalized
// by the TOTAL event count so they stay comparable against events from
// other sources. The two denominators are intentionally different.
type GuardStats struct {
	PassRate         float64 `json:"passRate"`
	RetryRate        float64 `json:"retryRate"`
	SoftFailRate     float64 `json:"softFailRate"`
	FactMutationRate float64 `json:"factMutationRate"`
	PersonaDriftRate float64 `json:"personaDriftRate"`
	TotalEvents      int     `json:"totalEvents"`
}

// #endregion guard-stats
