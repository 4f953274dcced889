package stt

import (
	"context"
	"errors"
	"time"
)

// Options selects how a recognition call runs. Fixed at job start; a model
// swap takes effect only between jobs.
type Options struct {
	ModelSize string // tiny, base, small, medium, large
	ModelPath string
	Language  string
	Device    string // cpu, gpu
	VAD       bool
	BeamSize  int
}

// Segment is one timed span of recognized speech.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Result captures recognizer output for one call.
type Result struct {
	Text     string
	Segments []Segment
}

// ErrModelUnavailable reports that the recognition model could not be
// loaded or reached. Fatal for the current job; the pipeline stays up.
var ErrModelUnavailable = errors.New("stt: model unavailable")

// Recognizer abstracts the speech recognition engine. Implementations are
// stateless per call and may block for a long time; callers own
// serialization against a shared model instance.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (Result, error)
}
