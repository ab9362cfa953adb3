package scheduler

import "fmt"

// State is the per-frame phase of the scheduler.
type State uint8

const (
	Idle State = iota
	CollectingDirty
	Prioritizing
	Batching
	Submitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case CollectingDirty:
		return "CollectingDirty"
	case Prioritizing:
		return "Prioritizing"
	case Batching:
		return "Batching"
	case Submitted:
		return "Submitted"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// next is the only legal successor of each state.
func (s State) next() State {
	if s == Submitted {
		return Idle
	}
	return s + 1
}
