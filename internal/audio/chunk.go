package audio

import "time"

// Chunk is one contiguous slice of a decoded file, identified by its
// half-open sample interval [Start, End) and its position in the plan.
// Chunks never overlap and cover the source exactly.
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len returns the chunk length in samples.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Offset returns the chunk's start time within the whole file.
func (c Chunk) Offset(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Start) * time.Second / time.Duration(sampleRate)
}

// PlanChunks splits n samples at the given rate into fixed-duration chunks.
// The plan has ceil(n / (d*rate)) entries; the final chunk is shorter when
// the source does not divide evenly. Boundaries are hard cuts with no
// overlap or cross-chunk
// context: the recognizer tolerates a chunk start without surrounding
// audio, and the plan stays trivially deterministic.
func PlanChunks(n, sampleRate int, d time.Duration) []Chunk {
	if n <= 0 {
		return nil
	}
	chunkSamples := int(d.Seconds() * float64(sampleRate))
	if chunkSamples <= 0 {
		chunkSamples = n
	}

	chunks := make([]Chunk, 0, (n+chunkSamples-1)/chunkSamples)
	for start := 0; start < n; start += chunkSamples {
		end := start + chunkSamples
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end})
	}
	return chunks
}
