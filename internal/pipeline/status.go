package pipeline

// Status is the single authoritative pipeline state projected to
// observers. Only the Coordinator mutates it.
type Status int

const (
	StatusIdle Status = iota
	StatusListening
	StatusRecording
	StatusProcessing
	StatusDone
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusListening:
		return "listening"
	case StatusRecording:
		return "recording"
	case StatusProcessing:
		return "processing"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	SourceLive = "live"
	SourceFile = "file"
)
