package query

// Phase is the lifecycle position of the active query.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseCompleted
	PhaseErrored
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseErrored:
		return "errored"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseErrored || p == PhaseDisconnected
}
