package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxlabs/voxd/internal/audio"
	"github.com/voxlabs/voxd/internal/stt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedRecognizer returns canned results per call and tracks how many
// recognition calls overlap in time.
type scriptedRecognizer struct {
	mu      sync.Mutex
	calls   int
	results []func() (stt.Result, error)

	active     atomic.Int32
	maxActive  atomic.Int32
	perCallLag time.Duration
}

func (r *scriptedRecognizer) Transcribe(_ context.Context, samples []float32, sampleRate int, _ stt.Options) (stt.Result, error) {
	cur := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		max := r.maxActive.Load()
		if cur <= max || r.maxActive.CompareAndSwap(max, cur) {
			break
		}
	}
	if r.perCallLag > 0 {
		time.Sleep(r.perCallLag)
	}

	r.mu.Lock()
	idx := r.calls
	r.calls++
	r.mu.Unlock()

	if idx < len(r.results) {
		return r.results[idx]()
	}
	return stt.Result{Text: fmt.Sprintf("call-%d", idx)}, nil
}

func ok(text string) func() (stt.Result, error) {
	return func() (stt.Result, error) { return stt.Result{Text: text}, nil }
}

func fail(err error) func() (stt.Result, error) {
	return func() (stt.Result, error) { return stt.Result{}, err }
}

func TestSubmitFIFOOrder(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){ok("one"), ok("two"), ok("three")}}
	w := NewWorker(rec, 8, testLogger())
	t.Cleanup(w.Close)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	for i, id := range []string{"a", "b", "c"} {
		last := i == 2
		err := w.Submit(Clip{SessionID: id, Samples: []float32{0.5}, SampleRate: 16000}, stt.Options{}, func(res Result) {
			mu.Lock()
			got = append(got, res.SessionID+":"+res.Text)
			mu.Unlock()
			if last {
				close(done)
			}
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for results")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a:one", "b:two", "c:three"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSingleInferenceAtATime(t *testing.T) {
	rec := &scriptedRecognizer{perCallLag: 20 * time.Millisecond}
	w := NewWorker(rec, 8, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		if err := w.Submit(Clip{SessionID: "s", Samples: []float32{1}, SampleRate: 16000}, stt.Options{}, func(Result) {
			wg.Done()
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	// Chunk jobs share the gate with queued live clips.
	plan := audio.PlanChunks(16000, 16000, 500*time.Millisecond)
	chunkDone := make(chan error, 1)
	go func() {
		chunkDone <- w.RunChunks(context.Background(), make([]float32, 16000), 16000, plan, stt.Options{}, func(Result) {})
	}()

	wg.Wait()
	if err := <-chunkDone; err != nil {
		t.Fatalf("run chunks: %v", err)
	}
	w.Close()

	if max := rec.maxActive.Load(); max != 1 {
		t.Fatalf("recognizer ran %d calls concurrently", max)
	}
}

func TestCloseWithBlockedSubmits(t *testing.T) {
	rec := &scriptedRecognizer{perCallLag: 30 * time.Millisecond}
	w := NewWorker(rec, 1, testLogger())

	const n = 4
	var delivered atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- w.Submit(Clip{Samples: []float32{1}, SampleRate: 16000}, stt.Options{}, func(Result) {
				delivered.Add(1)
			})
		}()
	}

	// Give the submitters time to fill the queue and block in the send,
	// then close underneath them. Every accepted submission must still be
	// transcribed and none may crash.
	time.Sleep(10 * time.Millisecond)
	w.Close()
	wg.Wait()

	accepted := 0
	for i := 0; i < n; i++ {
		if err := <-errs; err == nil {
			accepted++
		}
	}
	if accepted == 0 {
		t.Fatal("expected at least one accepted submission")
	}
	if got := int(delivered.Load()); got != accepted {
		t.Fatalf("accepted %d submissions but delivered %d results", accepted, got)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	w := NewWorker(&scriptedRecognizer{}, 1, testLogger())
	w.Close()
	if err := w.Submit(Clip{}, stt.Options{}, func(Result) {}); err == nil {
		t.Fatal("expected error submitting to closed worker")
	}
}

func TestRunChunksInOrderWithOffsets(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){
		func() (stt.Result, error) {
			return stt.Result{Text: "first", Segments: []stt.Segment{{Text: "first", Start: 0, End: time.Second}}}, nil
		},
		func() (stt.Result, error) {
			return stt.Result{Text: "second", Segments: []stt.Segment{{Text: "second", Start: 0, End: time.Second}}}, nil
		},
	}}
	w := NewWorker(rec, 1, testLogger())
	t.Cleanup(w.Close)

	rate := 16000
	samples := make([]float32, rate*4)
	plan := audio.PlanChunks(len(samples), rate, 2*time.Second)
	if len(plan) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(plan))
	}

	var results []Result
	err := w.RunChunks(context.Background(), samples, rate, plan, stt.Options{}, func(res Result) {
		results = append(results, res)
	})
	if err != nil {
		t.Fatalf("run chunks: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkIndex != 0 || results[1].ChunkIndex != 1 {
		t.Fatalf("results out of order: %d, %d", results[0].ChunkIndex, results[1].ChunkIndex)
	}
	if got := results[1].Segments[0].Start; got != 2*time.Second {
		t.Fatalf("second chunk segment not shifted: start %v", got)
	}
}

func TestRunChunksPlaceholderOnDecodeError(t *testing.T) {
	decodeErr := errors.New("decode failed")
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){
		ok("alpha"), fail(decodeErr), ok("gamma"),
	}}
	w := NewWorker(rec, 1, testLogger())
	t.Cleanup(w.Close)

	rate := 16000
	samples := make([]float32, rate*3)
	plan := audio.PlanChunks(len(samples), rate, time.Second)

	var texts []string
	err := w.RunChunks(context.Background(), samples, rate, plan, stt.Options{}, func(res Result) {
		texts = append(texts, res.Text)
	})
	if err != nil {
		t.Fatalf("decode error should not abort the job: %v", err)
	}
	want := []string{"alpha", Placeholder, "gamma"}
	if len(texts) != len(want) {
		t.Fatalf("expected %d chunk results, got %d", len(want), len(texts))
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("chunk %d: got %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestRunChunksModelUnavailableAborts(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){
		ok("alpha"),
		fail(fmt.Errorf("load model: %w", stt.ErrModelUnavailable)),
	}}
	w := NewWorker(rec, 1, testLogger())
	t.Cleanup(w.Close)

	rate := 16000
	samples := make([]float32, rate*3)
	plan := audio.PlanChunks(len(samples), rate, time.Second)

	var completed int
	err := w.RunChunks(context.Background(), samples, rate, plan, stt.Options{}, func(Result) {
		completed++
	})
	if !errors.Is(err, stt.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected job to stop after chunk 1, got %d completed", completed)
	}
}

func TestRunChunksCancelBetweenChunks(t *testing.T) {
	rec := &scriptedRecognizer{}
	w := NewWorker(rec, 1, testLogger())
	t.Cleanup(w.Close)

	rate := 16000
	samples := make([]float32, rate*3)
	plan := audio.PlanChunks(len(samples), rate, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	var completed int
	err := w.RunChunks(ctx, samples, rate, plan, stt.Options{}, func(Result) {
		completed++
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// The in-flight chunk completed; cancellation applied at the boundary.
	if completed != 1 {
		t.Fatalf("expected exactly 1 completed chunk, got %d", completed)
	}
}

func TestRecognizerPanicBecomesError(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){
		func() (stt.Result, error) { panic("model blew up") },
	}}
	w := NewWorker(rec, 1, testLogger())

	done := make(chan Result, 1)
	if err := w.Submit(Clip{SessionID: "s", Samples: []float32{1}, SampleRate: 16000}, stt.Options{}, func(res Result) {
		done <- res
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	w.Close()

	res := <-done
	if res.Err == nil {
		t.Fatal("expected panic surfaced as error")
	}

	// The worker survives a panic; the next submission still runs.
	w2 := NewWorker(&scriptedRecognizer{results: []func() (stt.Result, error){
		func() (stt.Result, error) { panic("boom") },
		ok("recovered"),
	}}, 2, testLogger())
	results := make(chan Result, 2)
	for i := 0; i < 2; i++ {
		if err := w2.Submit(Clip{Samples: []float32{1}, SampleRate: 16000}, stt.Options{}, func(res Result) {
			results <- res
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	w2.Close()
	first, second := <-results, <-results
	if first.Err == nil {
		t.Fatal("expected first result to carry the panic error")
	}
	if second.Err != nil || second.Text != "recovered" {
		t.Fatalf("worker did not recover: %+v", second)
	}
}

func TestSilenceYieldsEmptyResult(t *testing.T) {
	w := NewWorker(stt.NewMockRecognizer(), 1, testLogger())

	done := make(chan Result, 1)
	if err := w.Submit(Clip{SessionID: "s", Samples: make([]float32, 16000), SampleRate: 16000}, stt.Options{}, func(res Result) {
		done <- res
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	w.Close()

	res := <-done
	if res.Err != nil {
		t.Fatalf("silence is not an error: %v", res.Err)
	}
	if res.Text != "" {
		t.Fatalf("expected empty transcript for silence, got %q", res.Text)
	}
	if res.AudioDuration != time.Second {
		t.Fatalf("unexpected audio duration: %v", res.AudioDuration)
	}
}
