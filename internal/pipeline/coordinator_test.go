package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxlabs/voxd/internal/journal"
	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/stt"
)

type spyNotifier struct {
	mu          sync.Mutex
	statuses    []protocol.StatusUpdate
	transcripts []protocol.Transcript
}

func (n *spyNotifier) PublishStatus(u protocol.StatusUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, u)
}

func (n *spyNotifier) PublishTranscript(tr protocol.Transcript) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transcripts = append(n.transcripts, tr)
}

func (n *spyNotifier) statusNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, len(n.statuses))
	for i, u := range n.statuses {
		names[i] = u.Status
	}
	return names
}

func (n *spyNotifier) lastTranscript() (protocol.Transcript, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.transcripts) == 0 {
		return protocol.Transcript{}, false
	}
	return n.transcripts[len(n.transcripts)-1], true
}

// waitForStatus polls until the notifier has seen the named status.
func (n *spyNotifier) waitForStatus(t *testing.T, name string) {
	t.Helper()
	n.waitForSequence(t, name)
}

// waitForSequence polls until the status history contains the given names
// as an ordered subsequence.
func (n *spyNotifier) waitForSequence(t *testing.T, names ...string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		i := 0
		for _, got := range n.statusNames() {
			if i < len(names) && got == names[i] {
				i++
			}
		}
		if i == len(names) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for statuses %v, saw %v", names, n.statusNames())
}

type spyClipboard struct {
	mu     sync.Mutex
	copied []string
}

func (c *spyClipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copied = append(c.copied, text)
	return nil
}

func (c *spyClipboard) last() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.copied) == 0 {
		return "", false
	}
	return c.copied[len(c.copied)-1], true
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memJournal) Append(_ context.Context, entry journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

type fixture struct {
	coord     *Coordinator
	worker    *Worker
	notifier  *spyNotifier
	clipboard *spyClipboard
	journal   *memJournal
}

func newFixture(t *testing.T, rec stt.Recognizer) *fixture {
	t.Helper()
	notifier := &spyNotifier{}
	clipboard := &spyClipboard{}
	jrn := &memJournal{}
	machine := NewMachine(16000)
	worker := NewWorker(rec, 4, testLogger())
	coord := NewCoordinator(Config{
		SampleRate:    16000,
		MinClip:       100 * time.Millisecond,
		DoneDisplay:   5 * time.Millisecond,
		Separator:     " ",
		ChunkDuration: time.Second,
	}, machine, worker, Deps{
		Notifier:  notifier,
		Clipboard: clipboard,
		Journal:   jrn,
		Logger:    testLogger(),
	})
	t.Cleanup(func() {
		worker.Close()
		coord.Close()
	})
	return &fixture{coord: coord, worker: worker, notifier: notifier, clipboard: clipboard, journal: jrn}
}

func speech(seconds float64) []float32 {
	samples := make([]float32, int(seconds*16000))
	for i := range samples {
		samples[i] = 0.5
	}
	return samples
}

func TestLiveDictationFlow(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){ok("hello world")}}
	f := newFixture(t, rec)

	f.coord.StartListening()
	f.coord.Press()
	f.coord.Feed(speech(1))
	f.coord.Press()

	f.notifier.waitForSequence(t, "listening", "recording", "processing", "done", "listening")

	want := []string{"listening", "recording", "processing", "done", "listening"}
	got := f.notifier.statusNames()
	if len(got) < len(want) {
		t.Fatalf("status sequence too short: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status %d: got %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}

	if text, okc := f.clipboard.last(); !okc || text != "hello world" {
		t.Fatalf("clipboard not updated: %q", text)
	}
	if tr, okt := f.notifier.lastTranscript(); !okt || tr.Text != "hello world" || tr.Source != SourceLive {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
	if f.journal.count() != 1 {
		t.Fatalf("expected 1 journal entry, got %d", f.journal.count())
	}
}

func TestShortClipSkipsRecognizer(t *testing.T) {
	rec := &scriptedRecognizer{}
	f := newFixture(t, rec)

	f.coord.StartListening()
	f.coord.Press()
	f.coord.Feed(speech(0.05)) // under the minimum clip length
	f.coord.Press()

	f.notifier.waitForStatus(t, "done")

	rec.mu.Lock()
	calls := rec.calls
	rec.mu.Unlock()
	if calls != 0 {
		t.Fatalf("recognizer called for sub-minimum clip (%d calls)", calls)
	}
	if text, okc := f.clipboard.last(); okc {
		t.Fatalf("clipboard updated with empty transcript: %q", text)
	}
	if f.journal.count() != 0 {
		t.Fatalf("empty transcript journaled")
	}
}

func TestStopListeningDiscardsRecording(t *testing.T) {
	rec := &scriptedRecognizer{}
	f := newFixture(t, rec)

	f.coord.StartListening()
	f.coord.Press()
	f.coord.Feed(speech(1))
	f.coord.StopListening()

	f.notifier.waitForStatus(t, "idle")

	rec.mu.Lock()
	calls := rec.calls
	rec.mu.Unlock()
	if calls != 0 {
		t.Fatalf("discarded recording was transcribed (%d calls)", calls)
	}
}

func TestCaptureErrorReturnsToListening(t *testing.T) {
	f := newFixture(t, &scriptedRecognizer{})

	f.coord.StartListening()
	f.coord.Press()
	f.coord.HandleCaptureError(errors.New("device unplugged"))

	f.notifier.waitForSequence(t, "listening", "recording", "listening")

	// Next press starts a fresh recording.
	f.coord.Press()
	f.notifier.waitForSequence(t, "recording", "listening", "recording")
}

func TestLiveErrorStatusThenRecovery(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){
		fail(fmt.Errorf("load model: %w", stt.ErrModelUnavailable)),
	}}
	f := newFixture(t, rec)

	f.coord.StartListening()
	f.coord.Press()
	f.coord.Feed(speech(1))
	f.coord.Press()

	f.notifier.waitForSequence(t, "recording", "error", "listening")

	if text, okc := f.clipboard.last(); okc {
		t.Fatalf("clipboard updated after failed transcription: %q", text)
	}
}

func TestDoneDisplayYieldsToNewRecording(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){ok("hello")}}
	notifier := &spyNotifier{}
	machine := NewMachine(16000)
	worker := NewWorker(rec, 4, testLogger())
	coord := NewCoordinator(Config{
		SampleRate:    16000,
		MinClip:       100 * time.Millisecond,
		DoneDisplay:   100 * time.Millisecond,
		Separator:     " ",
		ChunkDuration: time.Second,
	}, machine, worker, Deps{Notifier: notifier, Logger: testLogger()})
	t.Cleanup(func() {
		worker.Close()
		coord.Close()
	})

	coord.StartListening()
	coord.Press()
	coord.Feed(speech(1))
	coord.Press()
	notifier.waitForStatus(t, "done")

	// Start the next recording inside the display window, then outlive it.
	coord.Press()
	notifier.waitForSequence(t, "done", "recording")
	time.Sleep(250 * time.Millisecond)

	if machine.State() != StateRecording {
		t.Fatalf("expected machine still recording, got %v", machine.State())
	}
	names := notifier.statusNames()
	if last := names[len(names)-1]; last != "recording" {
		t.Fatalf("display timer overwrote an active recording: %v", names)
	}
}

func TestTranscribeSamplesProgressAndMerge(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){
		ok("part one"), ok("part two"), ok("part three"),
	}}
	f := newFixture(t, rec)

	text, err := f.coord.TranscribeSamples(context.Background(), speech(3))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "part one part two part three" {
		t.Fatalf("unexpected merged text: %q", text)
	}

	var progress []string
	for _, u := range func() []protocol.StatusUpdate {
		f.notifier.mu.Lock()
		defer f.notifier.mu.Unlock()
		return append([]protocol.StatusUpdate(nil), f.notifier.statuses...)
	}() {
		if u.Source != SourceFile {
			continue
		}
		progress = append(progress, fmt.Sprintf("%s %d/%d", u.Status, u.Completed, u.Total))
	}
	want := []string{
		"processing 0/3", "processing 1/3", "processing 2/3", "processing 3/3", "done 3/3",
	}
	if strings.Join(progress, ",") != strings.Join(want, ",") {
		t.Fatalf("progress sequence: got %v, want %v", progress, want)
	}
	if f.journal.count() != 1 {
		t.Fatalf("expected 1 journal entry, got %d", f.journal.count())
	}
}

func TestTranscribeSamplesPlaceholderChunk(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){
		ok("alpha"), fail(errors.New("decode failed")), ok("gamma"),
	}}
	f := newFixture(t, rec)

	text, err := f.coord.TranscribeSamples(context.Background(), speech(3))
	if err != nil {
		t.Fatalf("one bad chunk should not fail the job: %v", err)
	}
	if text != "alpha "+Placeholder+" gamma" {
		t.Fatalf("unexpected merged text: %q", text)
	}
	f.notifier.waitForStatus(t, "done")
}

func TestTranscribeSamplesModelUnavailable(t *testing.T) {
	rec := &scriptedRecognizer{results: []func() (stt.Result, error){
		fail(fmt.Errorf("load model: %w", stt.ErrModelUnavailable)),
	}}
	f := newFixture(t, rec)

	_, err := f.coord.TranscribeSamples(context.Background(), speech(2))
	if !errors.Is(err, stt.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	f.notifier.waitForStatus(t, "error")
}

func TestTranscribeSamplesEmptyInput(t *testing.T) {
	f := newFixture(t, &scriptedRecognizer{})

	text, err := f.coord.TranscribeSamples(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty input is not an error: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty transcript, got %q", text)
	}
	f.notifier.waitForStatus(t, "done")
}

func TestTranscribeSamplesCancelled(t *testing.T) {
	rec := &scriptedRecognizer{}
	f := newFixture(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coord.TranscribeSamples(ctx, speech(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	f.notifier.waitForStatus(t, "idle")
}

func TestSetOptionsAppliesToNextJob(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	rec := recognizerFunc(func(_ context.Context, _ []float32, _ int, opts stt.Options) (stt.Result, error) {
		mu.Lock()
		seen = append(seen, opts.ModelSize)
		mu.Unlock()
		return stt.Result{Text: "x"}, nil
	})
	f := newFixture(t, rec)

	f.coord.SetOptions(stt.Options{ModelSize: "base"})
	if _, err := f.coord.TranscribeSamples(context.Background(), speech(1)); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	f.coord.SetOptions(stt.Options{ModelSize: "large"})
	if _, err := f.coord.TranscribeSamples(context.Background(), speech(1)); err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "base" || seen[1] != "large" {
		t.Fatalf("model sizes per job: %v", seen)
	}
}

type recognizerFunc func(context.Context, []float32, int, stt.Options) (stt.Result, error)

func (f recognizerFunc) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts stt.Options) (stt.Result, error) {
	return f(ctx, samples, sampleRate, opts)
}
