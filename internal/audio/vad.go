package audio

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// Detector classifies a single PCM16 frame as speech or silence.
type Detector interface {
	Active(sampleRate int, frame []byte) (bool, error)
}

type webrtcDetector struct {
	vad *webrtcvad.VAD
}

// NewDetector returns a WebRTC VAD detector with the given aggressiveness
// mode (0-3).
func NewDetector(mode int) (Detector, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create vad: %w", err)
	}
	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}
	if err := vad.SetMode(mode); err != nil {
		return nil, fmt.Errorf("set vad mode: %w", err)
	}
	return &webrtcDetector{vad: vad}, nil
}

func (d *webrtcDetector) Active(sampleRate int, frame []byte) (bool, error) {
	return d.vad.Process(sampleRate, frame)
}

// Trimmer strips leading and trailing silence from a clip before it reaches
// the recognizer. The clip is scanned in 20ms frames; the kept span runs
// from two frames before the first active frame to two frames after the
// last one. A clip with no active frames is returned unchanged so the
// recognizer still sees it and produces its own empty transcript.
type Trimmer struct {
	det        Detector
	sampleRate int
}

const trimPadFrames = 2

func NewTrimmer(det Detector, sampleRate int) *Trimmer {
	return &Trimmer{det: det, sampleRate: sampleRate}
}

// Trim returns the voice-active span of samples. On detector errors the
// original clip is returned: trimming is an optimization, never a gate.
func (t *Trimmer) Trim(samples []float32) []float32 {
	frameLen := t.sampleRate / 50 // 20ms
	if frameLen <= 0 || len(samples) < frameLen {
		return samples
	}

	first, last := -1, -1
	frames := len(samples) / frameLen
	for i := 0; i < frames; i++ {
		frame := samples[i*frameLen : (i+1)*frameLen]
		active, err := t.det.Active(t.sampleRate, pcm16Bytes(frame))
		if err != nil {
			return samples
		}
		if active {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return samples
	}

	startFrame := first - trimPadFrames
	if startFrame < 0 {
		startFrame = 0
	}
	endFrame := last + trimPadFrames + 1
	if endFrame > frames {
		endFrame = frames
	}

	start := startFrame * frameLen
	end := endFrame * frameLen
	if end > len(samples) {
		end = len(samples)
	}
	return samples[start:end]
}

func pcm16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		}
		if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
