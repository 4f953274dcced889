package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxlabs/voxd/internal/audio"
	"github.com/voxlabs/voxd/internal/stt"
)

// Placeholder replaces the text of a chunk the recognizer could not
// decode. Later chunks still run; one bad segment never discards a file.
const Placeholder = "[inaudible]"

// Clip is one finished recording handed to the worker.
type Clip struct {
	SessionID  string
	Samples    []float32
	SampleRate int
	RecordedAt time.Time
}

// Result is the outcome of one recognition call, live or per-chunk.
type Result struct {
	SessionID     string
	ChunkIndex    int
	Text          string
	Segments      []stt.Segment
	AudioDuration time.Duration
	Elapsed       time.Duration
	Err           error
}

type submission struct {
	clip Clip
	opts stt.Options
	done func(Result)
}

// Worker owns access to the recognition model. Submissions are queued FIFO
// and consumed by a single run loop, so at most one inference executes at
// a time; chunk jobs share the same gate. Queueing, not rejection, is the
// backpressure policy: a user may press the hotkey again before the
// previous clip finishes.
type Worker struct {
	rec   stt.Recognizer
	log   *slog.Logger
	queue chan submission
	wg    sync.WaitGroup

	// closeMu orders Submit sends against the queue close: Close takes the
	// write side, so it cannot close the channel while a Submit is blocked
	// in the send.
	closeMu sync.RWMutex
	closed  bool

	inferMu sync.Mutex

	transcriptions metric.Int64Counter
	latency        metric.Float64Histogram
}

func NewWorker(rec stt.Recognizer, queueSize int, log *slog.Logger) *Worker {
	meter := otel.Meter("github.com/voxlabs/voxd/internal/pipeline")
	transcriptions, _ := meter.Int64Counter("voxd_transcriptions_total",
		metric.WithDescription("Completed recognition calls"))
	latency, _ := meter.Float64Histogram("voxd_inference_duration_seconds",
		metric.WithDescription("Wall time of one recognition call"))

	w := &Worker{
		rec:            rec,
		log:            log,
		queue:          make(chan submission, queueSize),
		transcriptions: transcriptions,
		latency:        latency,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Close stops accepting submissions and waits for the queue to drain.
// Submits blocked on a full queue complete first; the run loop keeps
// consuming until the channel closes, so Close cannot deadlock on them.
func (w *Worker) Close() {
	w.closeMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closeMu.Unlock()
	w.wg.Wait()
}

// Submit enqueues a live clip. The call blocks only if the queue is full;
// the done callback runs on the worker goroutine once the clip has been
// transcribed.
func (w *Worker) Submit(clip Clip, opts stt.Options, done func(Result)) error {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return errors.New("worker closed")
	}
	w.queue <- submission{clip: clip, opts: opts, done: done}
	return nil
}

func (w *Worker) run() {
	defer w.wg.Done()
	for sub := range w.queue {
		res := Result{
			SessionID:     sub.clip.SessionID,
			AudioDuration: sampleDuration(len(sub.clip.Samples), sub.clip.SampleRate),
		}
		out, elapsed, err := w.transcribe(sub.clip.Samples, sub.clip.SampleRate, sub.opts)
		res.Elapsed = elapsed
		if err != nil {
			res.Err = err
		} else {
			res.Text = out.Text
			res.Segments = out.Segments
		}
		sub.done(res)
	}
}

// RunChunks transcribes a chunk plan strictly in order, invoking fn with
// each chunk's result as it completes. ctx is honored only between chunks;
// an in-flight chunk always completes or fails atomically. A chunk decode
// failure is reported through fn with Placeholder text and the job
// continues; ErrModelUnavailable aborts the whole job.
func (w *Worker) RunChunks(ctx context.Context, samples []float32, sampleRate int, plan []audio.Chunk, opts stt.Options, fn func(Result)) error {
	for _, chunk := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, elapsed, err := w.transcribe(samples[chunk.Start:chunk.End], sampleRate, opts)
		res := Result{
			ChunkIndex:    chunk.Index,
			AudioDuration: sampleDuration(chunk.Len(), sampleRate),
			Elapsed:       elapsed,
		}
		if err != nil {
			if errors.Is(err, stt.ErrModelUnavailable) {
				return err
			}
			w.log.Warn("chunk failed, substituting placeholder",
				slog.Int("chunk", chunk.Index), slog.String("error", err.Error()))
			res.Text = Placeholder
			res.Err = err
			fn(res)
			continue
		}

		offset := chunk.Offset(sampleRate)
		res.Text = out.Text
		res.Segments = shiftSegments(out.Segments, offset)
		fn(res)
	}
	return nil
}

// transcribe is the single inference gate. The recognizer is not assumed
// safe for concurrent calls, so live and chunk paths both serialize here.
func (w *Worker) transcribe(samples []float32, sampleRate int, opts stt.Options) (out stt.Result, elapsed time.Duration, err error) {
	w.inferMu.Lock()
	defer w.inferMu.Unlock()

	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		if r := recover(); r != nil {
			err = fmt.Errorf("recognizer panic: %v", r)
		}
		w.transcriptions.Add(context.Background(), 1)
		w.latency.Record(context.Background(), elapsed.Seconds())
	}()

	out, err = w.rec.Transcribe(context.Background(), samples, sampleRate, opts)
	return out, elapsed, err
}

func shiftSegments(segments []stt.Segment, offset time.Duration) []stt.Segment {
	if offset == 0 || len(segments) == 0 {
		return segments
	}
	shifted := make([]stt.Segment, len(segments))
	for i, s := range segments {
		shifted[i] = stt.Segment{
			Text:  s.Text,
			Start: s.Start + offset,
			End:   s.End + offset,
		}
	}
	return shifted
}

func sampleDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
