package router

// State is a session's lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateAttaching
	StateJoined
	StateLeaving
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAttaching:
		return "attaching"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}
