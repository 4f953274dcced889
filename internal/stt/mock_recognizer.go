package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer that fabricates transcripts from
// clip metadata. Used in tests and for wiring checks without a model.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, samples []float32, sampleRate int, opts Options) (Result, error) {
	if len(samples) == 0 {
		return Result{}, nil
	}
	// All-zero input mimics silence: recognizers return an empty transcript.
	silent := true
	for _, s := range samples {
		if s != 0 {
			silent = false
			break
		}
	}
	if silent {
		return Result{}, nil
	}
	seconds := float64(len(samples)) / float64(sampleRate)
	return Result{
		Text: fmt.Sprintf("[%s transcript %.2fs]", opts.ModelSize, seconds),
	}, nil
}
