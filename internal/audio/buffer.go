package audio

import (
	"sync"
	"time"
)

// Buffer accumulates mono float32 samples for one recording session. Append
// never blocks the capture producer and never drops samples; the buffer
// grows until Drain hands the full sequence to transcription.
type Buffer struct {
	mu      sync.RWMutex
	samples []float32
}

// NewBuffer returns a buffer pre-sized for roughly ten seconds of audio at
// the given rate.
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{
		samples: make([]float32, 0, sampleRate*10),
	}
}

// Append adds a frame of samples to the buffer.
func (b *Buffer) Append(samples []float32) {
	b.mu.Lock()
	b.samples = append(b.samples, samples...)
	b.mu.Unlock()
}

// Drain returns everything accumulated so far and resets the buffer. Called
// exactly once per session when recording stops.
func (b *Buffer) Drain() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.samples
	b.samples = nil
	return out
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Duration returns the buffered audio length at the given sample rate.
func (b *Buffer) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	b.mu.RLock()
	n := len(b.samples)
	b.mu.RUnlock()
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
