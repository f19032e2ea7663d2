package stream

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateReasoningActive
	StateContentActive
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateReasoningActive:
		return "reasoning"
	case StateContentActive:
		return "content"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}
