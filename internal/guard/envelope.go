package guard

import (
	"encoding/json"
	"strings"

	"github.com/danielpatrickdp/response-guard/internal/facts"
)

// #region envelope

// Envelope is the structured response shape the generator is asked to
// produce. InternalThought is deliberately absent from all guard checks:
// reasoning may reference raw facts or mistakes, only speech must be clean.
type Envelope struct {
	Speech          string         `json:"speech"`
	InternalThought string         `json:"internal_thought,omitempty"`
	FactEcho        facts.Snapshot `json:"fact_echo,omitempty"`
}

// #endregion envelope

// #region parse

// ParseEnvelope extracts the structured envelope from raw generator
// output. Non-JSON output (or JSON without a speech field) degrades to
// a speech-only envelope with no fact echo.
func ParseEnvelope(text string) Envelope {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if strings.HasPrefix(trimmed, "{") {
		var env Envelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Speech != "" {
			return env
		}
	}

	return Envelope{Speech: text}
}

// #endregion parse
