// Package lifecycle implements the table driven state machine that tracks
// whether a puppet is stopped, started, ready or stopping.
package lifecycle

// State names one lifecycle state.
type State string

const (
	Stopped  State = "stopped"
	Started  State = "started"
	Ready    State = "ready"
	Stopping State = "stopping"
)

// Any matches every current state in a transition's From field.
const Any State = "*"

// Flags is the four boolean view of a state.
type Flags struct {
	Started  bool `json:"started"`
	Ready    bool `json:"ready"`
	Stopping bool `json:"stopping"`
	Stopped  bool `json:"stopped"`
}

// FlagsFor returns the flags of s. States outside the four built-in ones have
// every flag unset.
func FlagsFor(s State) Flags {
	switch s {
	case Stopped:
		return Flags{Stopped: true}
	case Started:
		return Flags{Started: true}
	case Ready:
		return Flags{Started: true, Ready: true}
	case Stopping:
		return Flags{Started: true, Stopping: true}
	default:
		return Flags{}
	}
}

// Announcement returns the event type announced on the global channel when a
// puppet enters s.
func Announcement(s State) string {
	switch s {
	case Started:
		return "start"
	case Ready:
		return "ready"
	case Stopping:
		return "closing"
	case Stopped:
		return "close"
	default:
		return string(s)
	}
}
