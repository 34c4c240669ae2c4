package orchestrator

// State is a turn's position in its lifecycle.
type State int

const (
	StateDecomposing State = iota
	StateSpawning
	StateExecuting
	StateSynthesizing // skipped on single-task turns
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDecomposing:
		return "decomposing"
	case StateSpawning:
		return "spawning"
	case StateExecuting:
		return "executing"
	case StateSynthesizing:
		return "synthesizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
