package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AudioConfig struct {
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	Device          string `yaml:"device"`
}

type HotkeyConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Modifiers []string `yaml:"modifiers"`
	Key       string   `yaml:"key"`
}

type RecognizerConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	ModelSize string `yaml:"model_size"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	Device    string `yaml:"device"` // cpu, gpu
	VAD       bool   `yaml:"vad_enabled"`
	VADMode   int    `yaml:"vad_mode"`
	BeamSize  int    `yaml:"beam_size"`
}

type DictationConfig struct {
	MinClipMS     int    `yaml:"min_clip_ms"`
	DoneDisplayMS int    `yaml:"done_display_ms"`
	QueueSize     int    `yaml:"queue_size"`
	Separator     string `yaml:"separator"`
}

type FilesConfig struct {
	ChunkMinutes int `yaml:"chunk_minutes"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEntries    int    `yaml:"max_entries"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Audio       AudioConfig      `yaml:"audio"`
	Hotkey      HotkeyConfig     `yaml:"hotkey"`
	Recognizer  RecognizerConfig `yaml:"recognizer"`
	Dictation   DictationConfig  `yaml:"dictation"`
	Files       FilesConfig      `yaml:"files"`
	Journal     JournalConfig    `yaml:"journal"`
}

// ModelSizes lists the recognizer model sizes accepted in config.
var ModelSizes = []string{"tiny", "base", "small", "medium", "large"}

func Default() Config {
	return Config{
		RuntimeName: "voxd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8930,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 512,
			Device:          "",
		},
		Hotkey: HotkeyConfig{
			Enabled:   true,
			Modifiers: []string{"ctrl", "shift"},
			Key:       "D",
		},
		Recognizer: RecognizerConfig{
			Mode:      "exec",
			Command:   "whisper-cli",
			ModelSize: "base",
			Language:  "en",
			Device:    "cpu",
			VAD:       true,
			VADMode:   2,
			BeamSize:  5,
		},
		Dictation: DictationConfig{
			MinClipMS:     100,
			DoneDisplayMS: 2000,
			QueueSize:     8,
			Separator:     " ",
		},
		Files: FilesConfig{
			ChunkMinutes: 30,
		},
		Journal: JournalConfig{
			Path:          "./data/journal.db",
			RetentionMode: "persistent",
			RetentionDays: 0,
			MaxEntries:    0,
			VacuumOnStart: false,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ChunkDuration returns the file-mode chunk length as a duration.
func (c FilesConfig) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkMinutes) * time.Minute
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXD_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXD_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXD_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "VOXD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXD_BUS_SERVERS")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXD_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Audio.SampleRate, "VOXD_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "VOXD_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.FramesPerBuffer, "VOXD_AUDIO_FRAMES_PER_BUFFER")
	overrideString(&cfg.Audio.Device, "VOXD_AUDIO_DEVICE")
	overrideBool(&cfg.Hotkey.Enabled, "VOXD_HOTKEY_ENABLED")
	overrideStringSlice(&cfg.Hotkey.Modifiers, "VOXD_HOTKEY_MODIFIERS")
	overrideString(&cfg.Hotkey.Key, "VOXD_HOTKEY_KEY")
	overrideString(&cfg.Recognizer.Mode, "VOXD_RECOGNIZER_MODE")
	overrideString(&cfg.Recognizer.Command, "VOXD_RECOGNIZER_COMMAND")
	overrideString(&cfg.Recognizer.ModelSize, "VOXD_RECOGNIZER_MODEL_SIZE")
	overrideString(&cfg.Recognizer.ModelPath, "VOXD_RECOGNIZER_MODEL_PATH")
	overrideString(&cfg.Recognizer.Language, "VOXD_RECOGNIZER_LANGUAGE")
	overrideString(&cfg.Recognizer.Device, "VOXD_RECOGNIZER_DEVICE")
	overrideBool(&cfg.Recognizer.VAD, "VOXD_RECOGNIZER_VAD_ENABLED")
	overrideInt(&cfg.Recognizer.VADMode, "VOXD_RECOGNIZER_VAD_MODE")
	overrideInt(&cfg.Recognizer.BeamSize, "VOXD_RECOGNIZER_BEAM_SIZE")
	overrideInt(&cfg.Dictation.MinClipMS, "VOXD_DICTATION_MIN_CLIP_MS")
	overrideInt(&cfg.Dictation.DoneDisplayMS, "VOXD_DICTATION_DONE_DISPLAY_MS")
	overrideInt(&cfg.Dictation.QueueSize, "VOXD_DICTATION_QUEUE_SIZE")
	overrideInt(&cfg.Files.ChunkMinutes, "VOXD_FILES_CHUNK_MINUTES")
	overrideString(&cfg.Journal.Path, "VOXD_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "VOXD_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "VOXD_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxEntries, "VOXD_JOURNAL_MAX_ENTRIES")
	overrideBool(&cfg.Journal.VacuumOnStart, "VOXD_JOURNAL_VACUUM_ON_START")
}

func validate(cfg Config) error {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", cfg.HTTP.Port)
	}
	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio sample rate: %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		return fmt.Errorf("only mono capture is supported, got %d channels", cfg.Audio.Channels)
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid frames per buffer: %d", cfg.Audio.FramesPerBuffer)
	}
	switch cfg.Recognizer.Mode {
	case "mock", "exec":
	default:
		return fmt.Errorf("unknown recognizer mode: %q", cfg.Recognizer.Mode)
	}
	if !validModelSize(cfg.Recognizer.ModelSize) {
		return fmt.Errorf("unknown model size: %q (want one of %s)",
			cfg.Recognizer.ModelSize, strings.Join(ModelSizes, ", "))
	}
	switch cfg.Recognizer.Device {
	case "cpu", "gpu":
	default:
		return fmt.Errorf("unknown recognizer device: %q", cfg.Recognizer.Device)
	}
	if cfg.Recognizer.VADMode < 0 || cfg.Recognizer.VADMode > 3 {
		return fmt.Errorf("vad mode must be 0-3, got %d", cfg.Recognizer.VADMode)
	}
	if cfg.Dictation.QueueSize <= 0 {
		return fmt.Errorf("dictation queue size must be positive, got %d", cfg.Dictation.QueueSize)
	}
	if cfg.Files.ChunkMinutes <= 0 {
		return fmt.Errorf("chunk minutes must be positive, got %d", cfg.Files.ChunkMinutes)
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return fmt.Errorf("unknown journal retention mode: %q", cfg.Journal.RetentionMode)
	}
	return nil
}

func validModelSize(size string) bool {
	for _, s := range ModelSizes {
		if s == size {
			return true
		}
	}
	return false
}

func overrideString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*target = v
	}
}

func overrideInt(target *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*target = out
		}
	}
}
