package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxlabs/voxd/internal/audio"
	"github.com/voxlabs/voxd/internal/bus"
	"github.com/voxlabs/voxd/internal/capture"
	"github.com/voxlabs/voxd/internal/clip"
	"github.com/voxlabs/voxd/internal/config"
	"github.com/voxlabs/voxd/internal/hotkeys"
	"github.com/voxlabs/voxd/internal/journal"
	"github.com/voxlabs/voxd/internal/natsserver"
	"github.com/voxlabs/voxd/internal/pipeline"
	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/stt"
)

// Runtime assembles the dictation daemon: embedded bus, journal,
// recognizer, pipeline and the hardware-facing capture and hotkey loops.
type Runtime struct {
	cfg config.Config
	log *slog.Logger

	natsSrv    *natsserver.EmbeddedServer
	busClient  *bus.Client
	store      *journal.Store
	cap        *capture.Stream
	hk         *hotkeys.Listener
	worker     *pipeline.Worker
	coord      *pipeline.Coordinator
	machine    *pipeline.Machine
	httpServer *http.Server

	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup
}

func New(cfg config.Config, log *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, log: log}
}

// Journal exposes the transcription journal for UI wiring.
func (r *Runtime) Journal() *journal.Store {
	return r.store
}

// Bus exposes the event bus for UI observers.
func (r *Runtime) Bus() *bus.Client {
	return r.busClient
}

// Start brings the daemon up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	telemetryClose, metricsHandler, err := setupTelemetry(r.cfg, r.log)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.telemetryClose = telemetryClose

	natsSrv, err := natsserver.Start(r.cfg.Bus, r.log)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	r.natsSrv = natsSrv

	busClient, err := bus.Connect(r.cfg.Bus, r.log)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := journal.Open(ctx, r.cfg.Journal, r.log)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	r.store = store

	rec, err := r.buildRecognizer()
	if err != nil {
		return err
	}

	r.machine = pipeline.NewMachine(r.cfg.Audio.SampleRate)
	r.worker = pipeline.NewWorker(rec, r.cfg.Dictation.QueueSize, r.log)
	r.coord = pipeline.NewCoordinator(pipeline.Config{
		SampleRate:    r.cfg.Audio.SampleRate,
		MinClip:       time.Duration(r.cfg.Dictation.MinClipMS) * time.Millisecond,
		DoneDisplay:   time.Duration(r.cfg.Dictation.DoneDisplayMS) * time.Millisecond,
		Separator:     r.cfg.Dictation.Separator,
		ChunkDuration: r.cfg.Files.ChunkDuration(),
		Options:       recognizerOptions(r.cfg.Recognizer),
	}, r.machine, r.worker, pipeline.Deps{
		Notifier:  busClient,
		Clipboard: clip.New(),
		Journal:   store,
		Trimmer:   r.buildTrimmer(),
		Logger:    r.log,
	})

	if err := r.startCapture(ctx); err != nil {
		return err
	}
	if err := r.startHotkey(ctx); err != nil {
		r.log.Warn("hotkey unavailable, listener can only be driven from the tray",
			slog.String("error", err.Error()))
	}
	r.subscribeCommands()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if r.cfg.Hotkey.Enabled {
		r.coord.StartListening()
	}

	r.ready.Store(true)
	r.log.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.shutdown()
	return nil
}

func (r *Runtime) buildRecognizer() (stt.Recognizer, error) {
	switch r.cfg.Recognizer.Mode {
	case "mock":
		r.log.Warn("using mock recognizer, transcripts are fabricated")
		return stt.NewMockRecognizer(), nil
	case "exec":
		rec, err := stt.NewExecRecognizer(r.cfg.Recognizer.Command)
		if err != nil {
			return nil, fmt.Errorf("build recognizer: %w", err)
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unknown recognizer mode: %q", r.cfg.Recognizer.Mode)
	}
}

func (r *Runtime) buildTrimmer() pipeline.Trimmer {
	if !r.cfg.Recognizer.VAD {
		return nil
	}
	det, err := audio.NewDetector(r.cfg.Recognizer.VADMode)
	if err != nil {
		r.log.Warn("vad unavailable, clips go to the recognizer untrimmed",
			slog.String("error", err.Error()))
		return nil
	}
	return audio.NewTrimmer(det, r.cfg.Audio.SampleRate)
}

func (r *Runtime) startCapture(ctx context.Context) error {
	stream, err := capture.New(r.cfg.Audio, r.log)
	if err != nil {
		return fmt.Errorf("init capture: %w", err)
	}
	if err := stream.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	r.cap = stream

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-stream.Frames():
				if !ok {
					return
				}
				r.coord.Feed(frame)
			case err := <-stream.Errors():
				r.coord.HandleCaptureError(err)
				return
			}
		}
	}()
	return nil
}

func (r *Runtime) startHotkey(ctx context.Context) error {
	if !r.cfg.Hotkey.Enabled {
		return nil
	}
	hk, err := hotkeys.New(r.cfg.Hotkey, r.log)
	if err != nil {
		return err
	}
	r.hk = hk

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-hk.Presses():
				if !ok {
					return
				}
				r.coord.Press()
			}
		}
	}()
	return nil
}

func (r *Runtime) subscribeCommands() {
	_, err := r.busClient.SubscribeCommands(func(cmd protocol.Command) {
		switch cmd.Name {
		case protocol.CommandStartListening:
			r.coord.StartListening()
		case protocol.CommandStopListening:
			r.coord.StopListening()
		case protocol.CommandToggle:
			if r.machine.State() == pipeline.StateDisarmed {
				r.coord.StartListening()
			} else {
				r.coord.StopListening()
			}
		default:
			r.log.Warn("unknown command", slog.String("name", cmd.Name))
		}
	})
	if err != nil {
		r.log.Warn("command subscription failed", slog.String("error", err.Error()))
	}
}

func (r *Runtime) shutdown() {
	r.log.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r.hk != nil {
		if err := r.hk.Close(); err != nil {
			r.log.Warn("hotkey unregister failed", slog.String("error", err.Error()))
		}
	}
	if r.cap != nil {
		if err := r.cap.Close(); err != nil {
			r.log.Warn("capture close failed", slog.String("error", err.Error()))
		}
	}
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.log.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}

	// Queued clips finish before the pipeline goes away.
	if r.worker != nil {
		r.worker.Close()
	}
	if r.coord != nil {
		r.coord.Close()
	}

	r.busClient.Close()
	r.natsSrv.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Warn("journal close failed", slog.String("error", err.Error()))
		}
	}

	r.wg.Wait()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.log.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func recognizerOptions(cfg config.RecognizerConfig) stt.Options {
	return stt.Options{
		ModelSize: cfg.ModelSize,
		ModelPath: cfg.ModelPath,
		Language:  cfg.Language,
		Device:    cfg.Device,
		VAD:       cfg.VAD,
		BeamSize:  cfg.BeamSize,
	}
}
