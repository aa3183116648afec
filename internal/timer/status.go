package timer

import "fmt"

// Status is the lifecycle tag of a Session.
//
//	         Start           Pause
//	NotStarted ──► InProgress ──► Paused
//	                  ▲  │  ▲        │ Resume
//	                  │  │  └ Pause ─┤
//	                  │  │         Resumed
//	Reset (any) ──────┘  └──► Completed ◄── Complete (any)
type Status int

const (
	// NotStarted is the initial status and the status after Reset.
	NotStarted Status = iota
	// InProgress means the session is counting after Start.
	InProgress
	// Paused means elapsed time is frozen at the pause instant.
	Paused
	// Resumed means the session is counting again after a pause.
	Resumed
	// Completed is terminal until Reset.
	Completed
)

// String returns the serialized name of the status.
func (s Status) String() string {
	switch s {
	case NotStarted:
		return "notStarted"
	case InProgress:
		return "inProgress"
	case Paused:
		return "isPaused"
	case Resumed:
		return "isResumed"
	case Completed:
		return "isCompleted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Live reports whether time is accumulating in this status.
func (s Status) Live() bool {
	return s == InProgress || s == Resumed
}

// ParseStatus parses the serialized name of a status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "notStarted":
		return NotStarted, nil
	case "inProgress":
		return InProgress, nil
	case "isPaused":
		return Paused, nil
	case "isResumed":
		return Resumed, nil
	case "isCompleted":
		return Completed, nil
	default:
		return NotStarted, fmt.Errorf("unknown timer status %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < NotStarted || s > Completed {
		return nil, fmt.Errorf("invalid timer status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
