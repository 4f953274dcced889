package protocol

import "time"

// StatusUpdate is broadcast on every pipeline status change. For file jobs
// Completed/Total carry chunk progress; both are zero for live jobs.
type StatusUpdate struct {
	JobID     string    `json:"job_id"`
	Source    string    `json:"source"` // live, file
	Status    string    `json:"status"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is broadcast once per completed transcription.
type Transcript struct {
	JobID           string    `json:"job_id"`
	SessionID       string    `json:"session_id,omitempty"`
	Source          string    `json:"source"`
	Text            string    `json:"text"`
	DurationSeconds float64   `json:"duration_seconds"`
	ElapsedMS       int64     `json:"elapsed_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// Command is sent by UI observers (tray menu) to drive the listener.
type Command struct {
	Name string `json:"name"`
}

const (
	SubjectStatus     = "pipeline.status"
	SubjectTranscript = "pipeline.transcript"
	SubjectCommand    = "pipeline.command"

	CommandToggle         = "toggle"
	CommandStartListening = "start_listening"
	CommandStopListening  = "stop_listening"
)
