package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxlabs/voxd/internal/audio"
	"github.com/voxlabs/voxd/internal/journal"
	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/stt"
)

// Notifier receives status and transcript events for external observers
// (tray icon, UI). Implementations must not block.
type Notifier interface {
	PublishStatus(protocol.StatusUpdate)
	PublishTranscript(protocol.Transcript)
}

// Clipboard receives the final text of each completed live dictation.
type Clipboard interface {
	Copy(text string) error
}

// Journal records one entry per completed transcription.
type Journal interface {
	Append(ctx context.Context, entry journal.Entry) error
}

// Trimmer strips silence from live clips before recognition.
type Trimmer interface {
	Trim(samples []float32) []float32
}

type Config struct {
	SampleRate    int
	MinClip       time.Duration
	DoneDisplay   time.Duration
	Separator     string
	ChunkDuration time.Duration
	Options       stt.Options
}

// Deps are the coordinator's external collaborators. Any of them may be
// nil; the pipeline runs headless without observers.
type Deps struct {
	Notifier  Notifier
	Clipboard Clipboard
	Journal   Journal
	Trimmer   Trimmer
	Logger    *slog.Logger
}

// Coordinator wires the state machine, buffer and worker into the live
// dictation and file transcription flows. It owns the Status projection
// and all transitions on it; collaborators only observe.
type Coordinator struct {
	cfg     Config
	machine *Machine
	worker  *Worker

	notifier  Notifier
	clipboard Clipboard
	journal   Journal
	trimmer   Trimmer
	log       *slog.Logger

	mu     sync.Mutex
	status Status
	opts   stt.Options

	wg    sync.WaitGroup
	clock func() time.Time
}

func NewCoordinator(cfg Config, machine *Machine, worker *Worker, deps Deps) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cfg:       cfg,
		machine:   machine,
		worker:    worker,
		notifier:  deps.Notifier,
		clipboard: deps.Clipboard,
		journal:   deps.Journal,
		trimmer:   deps.Trimmer,
		log:       log,
		status:    StatusIdle,
		opts:      cfg.Options,
		clock:     time.Now,
	}
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetOptions swaps recognizer options. Takes effect at the next job start,
// never mid-job.
func (c *Coordinator) SetOptions(opts stt.Options) {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
}

func (c *Coordinator) options() stt.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// StartListening arms the hotkey listener.
func (c *Coordinator) StartListening() {
	if !c.machine.StartListening() {
		return
	}
	c.log.Info("listening started")
	c.publishStatus("", SourceLive, StatusListening, 0, 0, "")
}

// StopListening disarms the listener. An open recording is discarded with
// no partial transcription; an in-flight transcription is allowed to
// complete and its result is still journaled.
func (c *Coordinator) StopListening() {
	discarded, ok := c.machine.StopListening()
	if !ok {
		return
	}
	if discarded != nil {
		c.log.Info("recording discarded on stop",
			slog.String("session", discarded.ID),
			slog.Duration("buffered", discarded.Buffer.Duration(c.cfg.SampleRate)))
	}
	c.log.Info("listening stopped")
	c.publishStatus("", SourceLive, StatusIdle, 0, 0, "")
}

// Press handles one hotkey press.
func (c *Coordinator) Press() {
	ev := c.machine.Press()
	switch ev.Action {
	case PressStartedRecording:
		c.log.Info("recording started", slog.String("session", ev.Session.ID))
		c.publishStatus(ev.Session.ID, SourceLive, StatusRecording, 0, 0, "")
	case PressStoppedRecording:
		c.submitSession(ev.Session)
	}
}

// Feed forwards a capture frame to the open session, if any.
func (c *Coordinator) Feed(frame []float32) {
	c.machine.Feed(frame)
}

// HandleCaptureError aborts a recording in progress after a device
// failure. The listener returns to armed with no submitted buffer.
func (c *Coordinator) HandleCaptureError(err error) {
	c.log.Error("capture failed", slog.String("error", err.Error()))
	if discarded, ok := c.machine.AbortRecording(); ok {
		c.log.Info("recording aborted", slog.String("session", discarded.ID))
	}
	st := StatusIdle
	if c.machine.State() != StateDisarmed {
		st = StatusListening
	}
	c.publishStatus("", SourceLive, st, 0, 0, err.Error())
}

// Close waits for background result handling to finish. Queued
// transcriptions should be drained (worker.Close) before calling this.
func (c *Coordinator) Close() {
	c.wg.Wait()
}

func (c *Coordinator) submitSession(session *Session) {
	samples := session.Buffer.Drain()
	c.log.Info("recording stopped",
		slog.String("session", session.ID),
		slog.Duration("audio", sampleDuration(len(samples), c.cfg.SampleRate)))
	c.publishStatus(session.ID, SourceLive, StatusProcessing, 0, 0, "")

	if c.trimmer != nil && len(samples) > 0 {
		samples = c.trimmer.Trim(samples)
	}

	minSamples := int(c.cfg.MinClip.Seconds() * float64(c.cfg.SampleRate))
	if len(samples) < minSamples {
		// Nothing worth sending to the model; same outcome as silence.
		c.finishLive(Result{
			SessionID:     session.ID,
			AudioDuration: sampleDuration(len(samples), c.cfg.SampleRate),
		})
		return
	}

	clip := Clip{
		SessionID:  session.ID,
		Samples:    samples,
		SampleRate: c.cfg.SampleRate,
		RecordedAt: session.StartedAt,
	}
	opts := c.options()

	// Enqueue off the hotkey path: the state machine is already back in
	// Armed and a full queue must not stall the listener.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.worker.Submit(clip, opts, c.finishLive); err != nil {
			c.finishLive(Result{SessionID: clip.SessionID, Err: err})
		}
	}()
}

func (c *Coordinator) finishLive(res Result) {
	if res.Err != nil {
		c.log.Error("live transcription failed",
			slog.String("session", res.SessionID),
			slog.String("error", res.Err.Error()))
		c.publishStatus(res.SessionID, SourceLive, StatusError, 0, 0, res.Err.Error())
		c.resetAfterDisplay()
		return
	}

	text := strings.TrimSpace(res.Text)
	if text != "" {
		if c.clipboard != nil {
			if err := c.clipboard.Copy(text); err != nil {
				c.log.Warn("clipboard copy failed", slog.String("error", err.Error()))
			}
		}
		c.appendJournal(text, res.AudioDuration, SourceLive)
	}

	c.log.Info("transcription complete",
		slog.String("session", res.SessionID),
		slog.Duration("audio", res.AudioDuration),
		slog.Duration("elapsed", res.Elapsed),
		slog.Int("chars", len(text)))

	if c.notifier != nil {
		c.notifier.PublishTranscript(protocol.Transcript{
			JobID:           res.SessionID,
			SessionID:       res.SessionID,
			Source:          SourceLive,
			Text:            text,
			DurationSeconds: res.AudioDuration.Seconds(),
			ElapsedMS:       res.Elapsed.Milliseconds(),
			Timestamp:       c.clock(),
		})
	}
	c.publishStatus(res.SessionID, SourceLive, StatusDone, 0, 0, "")
	c.resetAfterDisplay()
}

// resetAfterDisplay returns the visual indicator to armed/idle after the
// short Done/Error display window. The machine state is read at fire time,
// not at scheduling time: a new recording may have started inside the
// window, and the projection must never regress away from it.
func (c *Coordinator) resetAfterDisplay() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		time.Sleep(c.cfg.DoneDisplay)
		switch c.machine.State() {
		case StateRecording:
			// Recording status is already published and still current.
		case StateDisarmed:
			c.publishStatus("", SourceLive, StatusIdle, 0, 0, "")
		default:
			c.publishStatus("", SourceLive, StatusListening, 0, 0, "")
		}
	}()
}

// TranscribeFile decodes a WAV file and runs it through the chunked flow.
func (c *Coordinator) TranscribeFile(ctx context.Context, path string) (string, error) {
	samples, err := audio.LoadWAV(path)
	if err != nil {
		jobID := uuid.NewString()
		c.publishStatus(jobID, SourceFile, StatusError, 0, 0, err.Error())
		return "", err
	}
	return c.transcribeSamples(ctx, samples, "file:"+path)
}

// TranscribeSamples chunks decoded samples, transcribes them in order and
// returns the merged transcript. Progress is published after every chunk;
// cancellation takes effect only at chunk boundaries.
func (c *Coordinator) TranscribeSamples(ctx context.Context, samples []float32) (string, error) {
	return c.transcribeSamples(ctx, samples, SourceFile)
}

// journalSource distinguishes the origin in the journal (the file path for
// file jobs); bus events always carry the plain source name.
func (c *Coordinator) transcribeSamples(ctx context.Context, samples []float32, journalSource string) (string, error) {
	jobID := uuid.NewString()
	plan := audio.PlanChunks(len(samples), c.cfg.SampleRate, c.cfg.ChunkDuration)
	total := len(plan)

	var span trace.Span
	ctx, span = otel.Tracer("github.com/voxlabs/voxd/internal/pipeline").Start(ctx, "pipeline.transcribe_file",
		trace.WithAttributes(
			attribute.String("job_id", jobID),
			attribute.Int("chunks", total),
		))
	defer span.End()

	if total == 0 {
		// An empty source is an empty transcript, not an error.
		if c.notifier != nil {
			c.notifier.PublishTranscript(protocol.Transcript{
				JobID:     jobID,
				Source:    SourceFile,
				Timestamp: c.clock(),
			})
		}
		c.publishStatus(jobID, SourceFile, StatusDone, 0, 0, "")
		return "", nil
	}

	c.log.Info("file transcription started",
		slog.String("job", jobID),
		slog.Int("chunks", total),
		slog.Duration("audio", sampleDuration(len(samples), c.cfg.SampleRate)))
	c.publishStatus(jobID, SourceFile, StatusProcessing, 0, total, "")

	var parts []string
	var elapsed time.Duration
	completed := 0
	err := c.worker.RunChunks(ctx, samples, c.cfg.SampleRate, plan, c.options(), func(res Result) {
		completed++
		elapsed += res.Elapsed
		if t := strings.TrimSpace(res.Text); t != "" {
			parts = append(parts, t)
		}
		c.publishStatus(jobID, SourceFile, StatusProcessing, completed, total, "")
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// A normal terminal state for the job, not a failure.
			c.log.Info("file transcription cancelled",
				slog.String("job", jobID),
				slog.Int("completed", completed), slog.Int("total", total))
			c.publishStatus(jobID, SourceFile, StatusIdle, completed, total, "")
			return "", err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription aborted")
		c.log.Error("file transcription failed",
			slog.String("job", jobID), slog.String("error", err.Error()))
		c.publishStatus(jobID, SourceFile, StatusError, completed, total, err.Error())
		return "", err
	}

	text := strings.Join(parts, c.cfg.Separator)
	audioDur := sampleDuration(len(samples), c.cfg.SampleRate)
	if text != "" {
		c.appendJournal(text, audioDur, journalSource)
	}
	if c.notifier != nil {
		c.notifier.PublishTranscript(protocol.Transcript{
			JobID:           jobID,
			Source:          SourceFile,
			Text:            text,
			DurationSeconds: audioDur.Seconds(),
			ElapsedMS:       elapsed.Milliseconds(),
			Timestamp:       c.clock(),
		})
	}
	c.log.Info("file transcription complete",
		slog.String("job", jobID),
		slog.Int("chunks", total),
		slog.Duration("elapsed", elapsed),
		slog.Int("chars", len(text)))
	c.publishStatus(jobID, SourceFile, StatusDone, total, total, "")
	return text, nil
}

func (c *Coordinator) appendJournal(text string, audioDur time.Duration, source string) {
	if c.journal == nil {
		return
	}
	entry := journal.Entry{
		Timestamp:       c.clock(),
		DurationSeconds: audioDur.Seconds(),
		Text:            text,
		Source:          source,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.journal.Append(ctx, entry); err != nil {
		c.log.Warn("journal append failed", slog.String("error", err.Error()))
	}
}

func (c *Coordinator) publishStatus(jobID, source string, st Status, completed, total int, errMsg string) {
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()

	if c.notifier == nil {
		return
	}
	c.notifier.PublishStatus(protocol.StatusUpdate{
		JobID:     jobID,
		Source:    source,
		Status:    st.String(),
		Completed: completed,
		Total:     total,
		Error:     errMsg,
		Timestamp: c.clock(),
	})
}
