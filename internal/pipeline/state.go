package pipeline

// State is the progress of a single run. Generated and Failed are terminal.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StateIndexed
	StateRetrieved
	StateGenerated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StateIndexed:
		return "indexed"
	case StateRetrieved:
		return "retrieved"
	case StateGenerated:
		return "generated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateGenerated || s == StateFailed
}

// next reports whether moving from s to t is allowed.
func (s State) next(t State) bool {
	if s.Terminal() {
		return false
	}
	if t == StateFailed {
		return true
	}
	return t == s+1
}
