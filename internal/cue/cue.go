// Package cue plans discrete animation cues (visemes, gestures,
// expressions) from timing marks and the utterance text. Cues produced
// here are proposals: overlaps across kinds are expected and resolved by
// the scheduler.
package cue

import "errors"

// ErrPlanning indicates degenerate planner input (no timing marks).
var ErrPlanning = errors.New("planning failed")

// Kind classifies a cue.
type Kind string

const (
	KindViseme     Kind = "viseme"
	KindGesture    Kind = "gesture"
	KindExpression Kind = "expression"
	KindIdle       Kind = "idle"
)

// Cue is a proposed animation action over a time interval. Payload is an
// animation asset id resolved later by the asset registry. Order records
// planner emission order and breaks scheduling ties between cues of equal
// start and priority.
type Cue struct {
	Kind     Kind    `json:"kind"`
	Payload  string  `json:"payload"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Priority int     `json:"priority"`
	Order    int     `json:"order"`
}

// Duration returns the cue's span in seconds.
func (c Cue) Duration() float64 {
	return c.End - c.Start
}

// DefaultPriorities orders cue kinds for conflict resolution, highest
// winning: expression > gesture > viseme > idle.
func DefaultPriorities() map[Kind]int {
	return map[Kind]int{
		KindExpression: 3,
		KindGesture:    2,
		KindViseme:     1,
		KindIdle:       0,
	}
}

// PrioritiesFromOrder builds a priority map from a highest-first list of
// kind names, as configured. Unknown names are ignored.
func PrioritiesFromOrder(order []string) map[Kind]int {
	if len(order) == 0 {
		return DefaultPriorities()
	}
	out := make(map[Kind]int, len(order))
	for i, name := range order {
		out[Kind(name)] = len(order) - 1 - i
	}
	if _, ok := out[KindIdle]; !ok {
		out[KindIdle] = -1
	}
	return out
}
