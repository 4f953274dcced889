package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/voxlabs/voxd/internal/config"
)

// Stream reads microphone input through PortAudio and fans frames out on a
// channel. It is a pure producer: it never blocks on a slow consumer, a
// full channel drops the frame.
type Stream struct {
	mu      sync.Mutex
	cfg     config.AudioConfig
	log     *slog.Logger
	stream  *portaudio.Stream
	running bool

	frames chan []float32
	errs   chan error
}

// Device describes one audio input device.
type Device struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// New initializes PortAudio and prepares a capture stream. Call Close to
// release the audio subsystem.
func New(cfg config.AudioConfig, log *slog.Logger) (*Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &Stream{
		cfg:    cfg,
		log:    log,
		frames: make(chan []float32, 100),
		errs:   make(chan error, 1),
	}, nil
}

// Frames is the stream of captured sample frames.
func (s *Stream) Frames() <-chan []float32 {
	return s.frames
}

// Errors reports a device failure. At most one error is delivered per
// failure; the read loop stops after reporting.
func (s *Stream) Errors() <-chan error {
	return s.errs
}

// Start opens the configured device and begins reading. The read loop runs
// until ctx is cancelled, Stop is called or the device fails.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("capture already running")
	}

	buffer := make([]float32, s.cfg.FramesPerBuffer)
	stream, err := s.open(buffer)
	if err != nil {
		return fmt.Errorf("open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start audio stream: %w", err)
	}

	s.stream = stream
	s.running = true
	s.log.Info("capture started",
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Int("frames_per_buffer", s.cfg.FramesPerBuffer),
		slog.String("device", s.deviceLabel()))

	go s.readLoop(ctx, buffer)
	return nil
}

func (s *Stream) deviceLabel() string {
	if s.cfg.Device == "" {
		return "default"
	}
	return s.cfg.Device
}

func (s *Stream) open(buffer []float32) (*portaudio.Stream, error) {
	if s.cfg.Device != "" && s.cfg.Device != "default" {
		device, err := findInputDevice(s.cfg.Device)
		if err == nil {
			params := portaudio.StreamParameters{
				Input: portaudio.StreamDeviceParameters{
					Device:   device,
					Channels: s.cfg.Channels,
					Latency:  device.DefaultLowInputLatency,
				},
				SampleRate:      float64(s.cfg.SampleRate),
				FramesPerBuffer: s.cfg.FramesPerBuffer,
			}
			return portaudio.OpenStream(params, buffer)
		}
		s.log.Warn("configured device not found, using default",
			slog.String("device", s.cfg.Device), slog.String("error", err.Error()))
	}
	return portaudio.OpenDefaultStream(s.cfg.Channels, 0,
		float64(s.cfg.SampleRate), s.cfg.FramesPerBuffer, buffer)
}

func (s *Stream) readLoop(ctx context.Context, buffer []float32) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		stream, running := s.stream, s.running
		s.mu.Unlock()
		if !running || stream == nil {
			return
		}

		if err := stream.Read(); err != nil {
			s.mu.Lock()
			stillRunning := s.running
			s.mu.Unlock()
			if !stillRunning {
				return
			}
			select {
			case s.errs <- fmt.Errorf("read audio stream: %w", err):
			default:
			}
			return
		}

		frame := make([]float32, len(buffer))
		copy(frame, buffer)
		select {
		case s.frames <- frame:
		default:
			// Consumer is behind; dropping keeps the device draining.
		}
	}
}

// Stop halts the read loop and closes the device stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.stream != nil {
		_ = s.stream.Stop()
		if err := s.stream.Close(); err != nil {
			return fmt.Errorf("close audio stream: %w", err)
		}
		s.stream = nil
	}
	s.log.Info("capture stopped")
	return nil
}

// Close stops capture and shuts down PortAudio.
func (s *Stream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("terminate portaudio: %w", err)
	}
	return nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("input device not found: %s", name)
}

// ListInputDevices enumerates available input devices. Initializes and
// terminates PortAudio itself, so it must not run while a Stream is open.
func ListInputDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var inputs []Device
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			inputs = append(inputs, Device{
				Name:              dev.Name,
				MaxInputChannels:  dev.MaxInputChannels,
				DefaultSampleRate: dev.DefaultSampleRate,
				IsDefault:         dev.Name == defaultName,
			})
		}
	}
	return inputs, nil
}
