package supervisor

// State is the recognition session lifecycle.
type State int

const (
	Idle State = iota
	Starting
	Listening
	Stopping
	Restarting
	Disabled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Starting:
		return "STARTING"
	case Listening:
		return "LISTENING"
	case Stopping:
		return "STOPPING"
	case Restarting:
		return "RESTARTING"
	case Disabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}
