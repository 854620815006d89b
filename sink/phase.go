package sink

// Phase is the lifecycle phase of an Adapter. No transition leaves
// PhaseClosed.
type Phase int

const (
	PhaseUnopened Phase = iota
	PhaseOpened
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnopened:
		return "unopened"
	case PhaseOpened:
		return "opened"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}
