package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/voxlabs/voxd/internal/audio"
)

// execRecognizer shells out to a whisper.cpp style CLI. The clip is written
// to a temp WAV, the command prints a JSON result on stdout.
type execRecognizer struct {
	cmd []string
	mu  sync.Mutex
}

type execSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type execResult struct {
	Text     string        `json:"text"`
	Segments []execSegment `json:"segments"`
}

// NewExecRecognizer builds a recognizer around the given command line. The
// binary must resolve at construction time so a missing install surfaces as
// ErrModelUnavailable before the first job, not in the middle of one.
func NewExecRecognizer(command string) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognizer command is empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrModelUnavailable, args[0])
	}
	return &execRecognizer{cmd: args}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if opts.ModelPath != "" {
		if _, err := os.Stat(opts.ModelPath); err != nil {
			return Result{}, fmt.Errorf("%w: model file %s", ErrModelUnavailable, opts.ModelPath)
		}
	}

	wavPath := filepath.Join(os.TempDir(), fmt.Sprintf("voxd_clip_%d.wav", time.Now().UnixNano()))
	if err := audio.WriteWAV(wavPath, samples, sampleRate); err != nil {
		return Result{}, fmt.Errorf("write clip: %w", err)
	}
	defer os.Remove(wavPath)

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", wavPath, "--output-json")
	if opts.ModelPath != "" {
		args = append(args, "--model", opts.ModelPath)
	} else if opts.ModelSize != "" {
		args = append(args, "--model-size", opts.ModelSize)
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.Device == "gpu" {
		args = append(args, "--gpu")
	}
	if opts.BeamSize > 0 {
		args = append(args, "--beam-size", strconv.Itoa(opts.BeamSize))
	}
	if opts.VAD {
		args = append(args, "--vad")
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("recognizer command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode recognizer response: %w", err)
	}

	result := Result{Text: resp.Text}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			Text:  seg.Text,
			Start: time.Duration(seg.Start * float64(time.Second)),
			End:   time.Duration(seg.End * float64(time.Second)),
		})
	}
	return result, nil
}
