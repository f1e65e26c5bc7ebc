package vad

import (
	"testing"

	"github.com/skypro1111/vad-segmenter/internal/audio"
)

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" {
		t.Errorf("Expected idle, got %s", Idle.String())
	}
	if Recording.String() != "recording" {
		t.Errorf("Expected recording, got %s", Recording.String())
	}
	if State(9).String() != "unknown" {
		t.Errorf("Expected unknown, got %s", State(9).String())
	}
}

// drive feeds frames with the given activations through a machine backed by
// a ring of the given capacity and returns every closed segment
func drive(capacity int, cfg Config, activations []float64) ([][]uint64, *machine) {
	ring, _ := audio.NewRing(capacity)
	m := newMachine(cfg)

	var segments [][]uint64
	for i, a := range activations {
		frame := audio.Frame{Index: uint64(i + 1)}
		ring.Store(frame, a > 0.5)

		if segment, done := m.step(ring, frame, a); done {
			indices := make([]uint64, len(segment))
			for j, f := range segment {
				indices[j] = f.Index
			}
			segments = append(segments, indices)
		}
	}
	return segments, &m
}

func equalIndices(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMachineHysteresis(t *testing.T) {
	cfg := Config{VoiceThreshold: 0.6, NonVoiceThreshold: 0.3, PaddingFrames: 2}

	segments, m := drive(1, cfg, []float64{0.1, 0.2, 0.7, 0.5, 0.35, 0.2})

	if len(segments) != 1 {
		t.Fatalf("Expected exactly one utterance, got %d", len(segments))
	}

	// Start at f3, keep f4 and f5 inside the hysteresis band, pad f6 twice
	expected := []uint64{3, 4, 5, 6, 6}
	if !equalIndices(segments[0], expected) {
		t.Errorf("Expected frames %v, got %v", expected, segments[0])
	}

	if m.state != Idle {
		t.Errorf("Expected machine back in idle, got %s", m.state)
	}
}

func TestMachineThresholdsAreStrict(t *testing.T) {
	cfg := Config{VoiceThreshold: 0.6, NonVoiceThreshold: 0.3, PaddingFrames: 1}

	// Activation equal to the voice threshold does not start a segment
	segments, m := drive(4, cfg, []float64{0.6, 0.6, 0.6})
	if len(segments) != 0 || m.state != Idle {
		t.Errorf("Expected no recording at the voice threshold, got %d segments in %s", len(segments), m.state)
	}

	// Activation equal to the non-voice threshold closes the segment
	segments, _ = drive(1, cfg, []float64{0.9, 0.3})
	if len(segments) != 1 {
		t.Fatalf("Expected the non-voice threshold to stop recording, got %d segments", len(segments))
	}
	if !equalIndices(segments[0], []uint64{1, 2}) {
		t.Errorf("Expected frames [1 2], got %v", segments[0])
	}
}

func TestMachinePreRollAndPadding(t *testing.T) {
	cfg := Config{VoiceThreshold: 0.5, NonVoiceThreshold: 0.2, PaddingFrames: 3}

	// Ring of 4 holds f2..f5 when f5 starts the segment
	segments, _ := drive(4, cfg, []float64{0, 0, 0, 0, 0.8, 0.4, 0.1})
	if len(segments) != 1 {
		t.Fatalf("Expected one utterance, got %d", len(segments))
	}

	expected := []uint64{2, 3, 4, 5, 6, 7, 7, 7}
	if !equalIndices(segments[0], expected) {
		t.Errorf("Expected frames %v, got %v", expected, segments[0])
	}
}

func TestMachineZeroPadding(t *testing.T) {
	cfg := Config{VoiceThreshold: 0.5, NonVoiceThreshold: 0.2, PaddingFrames: 0}

	segments, _ := drive(1, cfg, []float64{0.9, 0.9, 0.0})
	if len(segments) != 1 {
		t.Fatalf("Expected one utterance, got %d", len(segments))
	}

	// Without padding the closing frame is not part of the utterance
	if !equalIndices(segments[0], []uint64{1, 2}) {
		t.Errorf("Expected frames [1 2], got %v", segments[0])
	}
}

func TestMachineDiscard(t *testing.T) {
	cfg := Config{VoiceThreshold: 0.5, NonVoiceThreshold: 0.2, PaddingFrames: 1}

	_, m := drive(2, cfg, []float64{0.9, 0.9})
	if m.state != Recording {
		t.Fatalf("Expected recording, got %s", m.state)
	}

	if !m.discard() {
		t.Error("Expected discard to report an open segment")
	}
	if m.state != Idle || m.segment != nil {
		t.Error("Expected discard to reset the machine")
	}
	if m.discard() {
		t.Error("Expected second discard to report nothing")
	}
}
