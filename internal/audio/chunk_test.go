package audio

import (
	"testing"
	"time"
)

func TestPlanChunksCoverage(t *testing.T) {
	cases := []struct {
		name  string
		n     int
		rate  int
		d     time.Duration
		count int
	}{
		{"empty", 0, 16000, 30 * time.Minute, 0},
		{"single sample", 1, 16000, 30 * time.Minute, 1},
		{"exact fit", 16000 * 60 * 30, 16000, 30 * time.Minute, 1},
		{"one over", 16000*60*30 + 1, 16000, 30 * time.Minute, 2},
		{"65 minutes", 16000 * 60 * 65, 16000, 30 * time.Minute, 3},
		{"short chunks", 16000 * 10, 16000, 3 * time.Second, 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := PlanChunks(tc.n, tc.rate, tc.d)
			if len(chunks) != tc.count {
				t.Fatalf("expected %d chunks, got %d", tc.count, len(chunks))
			}

			total := 0
			for i, c := range chunks {
				if c.Index != i {
					t.Fatalf("chunk %d has index %d", i, c.Index)
				}
				if c.End <= c.Start {
					t.Fatalf("chunk %d is empty or inverted: [%d,%d)", i, c.Start, c.End)
				}
				if i == 0 && c.Start != 0 {
					t.Fatalf("first chunk starts at %d", c.Start)
				}
				if i > 0 && c.Start != chunks[i-1].End {
					t.Fatalf("gap or overlap between chunk %d and %d", i-1, i)
				}
				total += c.Len()
			}
			if total != tc.n {
				t.Fatalf("chunks cover %d samples, want %d", total, tc.n)
			}
		})
	}
}

func TestPlanChunksBoundaries(t *testing.T) {
	// 65 minutes at 16kHz with 30 minute chunks: [0,30), [30,60), [60,65).
	rate := 16000
	n := rate * 60 * 65
	chunks := PlanChunks(n, rate, 30*time.Minute)

	want := [][2]int{
		{0, rate * 60 * 30},
		{rate * 60 * 30, rate * 60 * 60},
		{rate * 60 * 60, n},
	}
	for i, w := range want {
		if chunks[i].Start != w[0] || chunks[i].End != w[1] {
			t.Fatalf("chunk %d = [%d,%d), want [%d,%d)",
				i, chunks[i].Start, chunks[i].End, w[0], w[1])
		}
	}
	if got := chunks[2].Offset(rate); got != 60*time.Minute {
		t.Fatalf("chunk 2 offset = %v, want 60m", got)
	}
}

func TestPlanChunksRechunkInvariance(t *testing.T) {
	// Total coverage is identical regardless of chunk duration.
	n := 16000 * 500
	for _, d := range []time.Duration{time.Second, 7 * time.Second, time.Minute} {
		total := 0
		for _, c := range PlanChunks(n, 16000, d) {
			total += c.Len()
		}
		if total != n {
			t.Fatalf("chunk duration %v covers %d samples, want %d", d, total, n)
		}
	}
}
