package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxlabs/voxd/internal/audio"
)

// ListenerState is the hotkey listener's own state, distinct from the
// observer-facing Status projection.
type ListenerState int

const (
	StateDisarmed ListenerState = iota
	StateArmed
	StateRecording
)

func (s ListenerState) String() string {
	switch s {
	case StateDisarmed:
		return "disarmed"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Session is one continuous recording delimited by hotkey press and
// press-again. Its buffer is drained exactly once, on submission.
type Session struct {
	ID        string
	StartedAt time.Time
	Buffer    *audio.Buffer
}

// PressAction describes what a hotkey press did.
type PressAction int

const (
	PressIgnored PressAction = iota
	PressStartedRecording
	PressStoppedRecording
)

// PressEvent is the outcome of one hotkey press. Session is set only for
// PressStoppedRecording: the closed session, ready for submission.
type PressEvent struct {
	Action  PressAction
	Session *Session
}

// Machine turns hotkey presses and listener commands into listener state
// transitions. It guarantees at most one open session at a time and never
// blocks on transcription: a closed session is handed back to the caller
// for asynchronous submission.
type Machine struct {
	mu         sync.Mutex
	state      ListenerState
	session    *Session
	sampleRate int
	clock      func() time.Time
}

func NewMachine(sampleRate int) *Machine {
	return &Machine{
		state:      StateDisarmed,
		sampleRate: sampleRate,
		clock:      time.Now,
	}
}

func (m *Machine) State() ListenerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartListening arms the listener. Returns false if it was not disarmed.
func (m *Machine) StartListening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDisarmed {
		return false
	}
	m.state = StateArmed
	return true
}

// StopListening disarms the listener. An open recording session is
// discarded, never submitted; the discarded session is returned so the
// caller can log it.
func (m *Machine) StopListening() (discarded *Session, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDisarmed {
		return nil, false
	}
	discarded = m.session
	m.session = nil
	m.state = StateDisarmed
	return discarded, true
}

// Press handles one hotkey press. Armed starts a session, Recording closes
// it for submission, Disarmed is a no-op.
func (m *Machine) Press() PressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateArmed:
		m.session = &Session{
			ID:        uuid.NewString(),
			StartedAt: m.clock(),
			Buffer:    audio.NewBuffer(m.sampleRate),
		}
		m.state = StateRecording
		return PressEvent{Action: PressStartedRecording, Session: m.session}

	case StateRecording:
		session := m.session
		m.session = nil
		m.state = StateArmed
		return PressEvent{Action: PressStoppedRecording, Session: session}

	default:
		return PressEvent{Action: PressIgnored}
	}
}

// AbortRecording drops the open session after a capture failure and
// returns to Armed. No-op outside Recording.
func (m *Machine) AbortRecording() (discarded *Session, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return nil, false
	}
	discarded = m.session
	m.session = nil
	m.state = StateArmed
	return discarded, true
}

// Feed appends a capture frame to the open session. Frames arriving
// outside Recording are dropped; the capture stream keeps running while
// armed, samples only accumulate between presses.
func (m *Machine) Feed(frame []float32) {
	m.mu.Lock()
	session := m.session
	recording := m.state == StateRecording
	m.mu.Unlock()

	if recording && session != nil {
		session.Buffer.Append(frame)
	}
}
