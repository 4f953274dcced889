package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxlabs/voxd/internal/capture"
	"github.com/voxlabs/voxd/internal/config"
	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/runtime"
	"github.com/voxlabs/voxd/internal/tray"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
		listDevices bool
		noTray      bool
	)

	flag.StringVar(&configPath, "config", "voxd.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&listDevices, "list-devices", false, "List audio input devices and exit")
	flag.BoolVar(&noTray, "no-tray", false, "Run headless without the system tray")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	if listDevices {
		devices, err := capture.ListInputDevices()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list devices:", err)
			os.Exit(1)
		}
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %s (%d ch, %.0f Hz)\n", marker, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Telemetry.LogLevel),
	}))

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if noTray {
		if err := rt.Start(ctx); err != nil {
			logger.Error("runtime exited with error", slog.String("error", err.Error()))
			time.Sleep(1 * time.Second)
			os.Exit(1)
		}
		logger.Info("shutdown complete")
		return
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Start(ctx)
	}()

	app := tray.New(tray.Callbacks{
		OnStartListening: func() {
			if b := rt.Bus(); b != nil {
				b.PublishCommand(protocol.CommandStartListening)
			}
		},
		OnStopListening: func() {
			if b := rt.Bus(); b != nil {
				b.PublishCommand(protocol.CommandStopListening)
			}
		},
		OnClearJournal: func() {
			if j := rt.Journal(); j != nil {
				if err := j.Clear(context.Background()); err != nil {
					logger.Warn("journal clear failed", slog.String("error", err.Error()))
				}
			}
		},
		OnQuit: stop,
	}, logger)

	// The bus comes up inside rt.Start; attach the tray once it is there.
	go func() {
		for {
			if b := rt.Bus(); b != nil {
				if _, err := b.SubscribeStatus(app.Update); err != nil {
					logger.Warn("tray status subscription failed", slog.String("error", err.Error()))
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}()
	go func() {
		<-ctx.Done()
		app.Quit()
	}()

	// Most platforms require the tray loop on the main thread.
	app.Run()
	stop()

	if err := <-errCh; err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
