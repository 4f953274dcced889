package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxlabs/voxd/internal/config"
	"github.com/voxlabs/voxd/internal/journal"
	"github.com/voxlabs/voxd/internal/pipeline"
	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/stt"
)

var version = "0.1.0-dev"

// progressNotifier prints chunk progress to stderr so stdout stays clean
// for the transcript.
type progressNotifier struct {
	quiet bool
}

func (n *progressNotifier) PublishStatus(u protocol.StatusUpdate) {
	if n.quiet || u.Total == 0 {
		return
	}
	switch u.Status {
	case "processing":
		if u.Completed > 0 {
			fmt.Fprintf(os.Stderr, "chunk %d/%d done\n", u.Completed, u.Total)
		}
	case "error":
		fmt.Fprintf(os.Stderr, "failed after %d/%d chunks: %s\n", u.Completed, u.Total, u.Error)
	}
}

func (n *progressNotifier) PublishTranscript(protocol.Transcript) {}

func main() {
	var (
		configPath   string
		outputPath   string
		modelSize    string
		language     string
		chunkMinutes int
		quiet        bool
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&outputPath, "o", "", "Write the transcript to this file instead of stdout")
	flag.StringVar(&modelSize, "model", "", "Override recognizer model size")
	flag.StringVar(&language, "language", "", "Override recognizer language")
	flag.IntVar(&chunkMinutes, "chunk-minutes", 0, "Override chunk length in minutes")
	flag.BoolVar(&quiet, "q", false, "Suppress progress output")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: voxfile [flags] <audio.wav>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if modelSize != "" {
		cfg.Recognizer.ModelSize = modelSize
	}
	if language != "" {
		cfg.Recognizer.Language = language
	}
	if chunkMinutes > 0 {
		cfg.Files.ChunkMinutes = chunkMinutes
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := buildRecognizer(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recognizer:", err)
		os.Exit(1)
	}

	store, err := journal.Open(ctx, cfg.Journal, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "journal:", err)
		os.Exit(1)
	}
	defer store.Close()

	worker := pipeline.NewWorker(rec, 1, logger)
	defer worker.Close()

	coord := pipeline.NewCoordinator(pipeline.Config{
		SampleRate:    cfg.Audio.SampleRate,
		Separator:     cfg.Dictation.Separator,
		ChunkDuration: cfg.Files.ChunkDuration(),
		Options:       stt.Options{
			ModelSize: cfg.Recognizer.ModelSize,
			ModelPath: cfg.Recognizer.ModelPath,
			Language:  cfg.Recognizer.Language,
			Device:    cfg.Recognizer.Device,
			VAD:       cfg.Recognizer.VAD,
			BeamSize:  cfg.Recognizer.BeamSize,
		},
	}, pipeline.NewMachine(cfg.Audio.SampleRate), worker, pipeline.Deps{
		Notifier: &progressNotifier{quiet: quiet},
		Journal:  store,
		Logger:   logger,
	})
	defer coord.Close()

	start := time.Now()
	text, err := coord.TranscribeFile(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "cancelled")
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "transcription failed:", err)
		os.Exit(1)
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "transcribed %s in %s\n", path, time.Since(start).Round(time.Second))
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(text+"\n"), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "write output:", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(text)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		// No daemon, no bus: journal only when explicitly configured.
		cfg.Journal.RetentionMode = "ephemeral"
		return cfg, nil
	}
	return config.Load(path)
}

func buildRecognizer(cfg config.Config, logger *slog.Logger) (stt.Recognizer, error) {
	switch cfg.Recognizer.Mode {
	case "mock":
		logger.Warn("using mock recognizer, transcripts are fabricated")
		return stt.NewMockRecognizer(), nil
	case "exec":
		return stt.NewExecRecognizer(cfg.Recognizer.Command)
	default:
		return nil, fmt.Errorf("unknown recognizer mode: %q", cfg.Recognizer.Mode)
	}
}
