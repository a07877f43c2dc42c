package entity

import "time"

type TraceOutcome string

const (
	TraceHit   TraceOutcome = "hit"
	TraceMiss  TraceOutcome = "miss"
	TraceError TraceOutcome = "error"
)

type TraceStep struct {
	Strategy string        `json:"strategy"`
	Outcome  TraceOutcome  `json:"outcome"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ResolutionTrace records every lookup the resolver tried for one
// identifier, in order.
type ResolutionTrace struct {
	Identifier string        `json:"identifier"`
	Hint       PaymentKind   `json:"hint,omitempty"`
	Steps      []TraceStep   `json:"steps"`
	Resolved   bool          `json:"resolved"`
	Source     PaymentSource `json:"source,omitempty"`
	Virtual    bool          `json:"virtual"`
}

func (t *ResolutionTrace) Add(step TraceStep) {
	t.Steps = append(t.Steps, step)
}

// Strategies returns the strategy names in the order they ran.
func (t *ResolutionTrace) Strategies() []string {
	out := make([]string, 0, len(t.Steps))
	for _, s := range t.Steps {
		out = append(out, s.Strategy)
	}
	return out
}
