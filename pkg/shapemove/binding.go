package shapemove

// BindingState tracks where a move is in its attach lifecycle.
type BindingState int

const (
	// Unattached is the initial state: the move has never been bound.
	Unattached BindingState = iota

	// Attached means the move is currently bound to an integrator.
	Attached

	// Detached means the move was bound once and released. A detached move
	// may be attached again.
	Detached
)

func (s BindingState) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// canAttach reports whether an attach transition is legal from this state.
func (s BindingState) canAttach() bool {
	return s == Unattached || s == Detached
}

// canDetach reports whether a detach transition is legal from this state.
func (s BindingState) canDetach() bool {
	return s == Attached
}
