// Package vad implements the energy-based voice activity gate that decides
// which resampled audio frames are transmitted to the streaming service.
package vad

import "math"

const (
	// DefaultThreshold is the RMS energy above which a frame counts as speech.
	// Tuned empirically for echo-cancelled browser microphones.
	DefaultThreshold = 0.005
	// DefaultMinSpeechFrames is the debounce: consecutive speech frames
	// required before the gate opens.
	DefaultMinSpeechFrames = 3
	// DefaultMaxSilencePadFrames is the trailing-silence padding sent after an
	// utterance so the transcription service sees the utterance boundary.
	DefaultMaxSilencePadFrames = 10
)

// Gate tracks per-session speech state. It is a deterministic state machine
// driven one frame at a time by a single caller; no locking.
type Gate struct {
	Threshold           float32
	MinSpeechFrames     int
	MaxSilencePadFrames int

	speaking          bool
	speechFrameCount  int
	silenceFrameCount int
}

func NewGate() *Gate {
	return &Gate{
		Threshold:           DefaultThreshold,
		MinSpeechFrames:     DefaultMinSpeechFrames,
		MaxSilencePadFrames: DefaultMaxSilencePadFrames,
	}
}

// Admit reports whether the frame should be transmitted. A frame passes while
// the gate is open, or while trailing silence is still within the padding
// window. Silence beyond the padding window closes the gate.
func (g *Gate) Admit(frame []float32) bool {
	if RMS(frame) > g.Threshold {
		g.speechFrameCount++
		g.silenceFrameCount = 0
		if !g.speaking && g.speechFrameCount >= g.MinSpeechFrames {
			g.speaking = true
		}
	} else {
		g.silenceFrameCount++
		g.speechFrameCount = 0
		if g.speaking && g.silenceFrameCount > g.MaxSilencePadFrames {
			g.speaking = false
		}
	}
	return g.speaking || g.silenceFrameCount <= g.MaxSilencePadFrames
}

// Speaking reports whether the gate currently considers the user to be
// mid-utterance.
func (g *Gate) Speaking() bool { return g.speaking }

// Reset clears state for a fresh recording session.
func (g *Gate) Reset() {
	g.speaking = false
	g.speechFrameCount = 0
	g.silenceFrameCount = 0
}

// RMS computes the root-mean-square energy of a frame.
func RMS(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(frame))))
}
