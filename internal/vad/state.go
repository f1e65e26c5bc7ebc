package vad

import "github.com/skypro1111/vad-segmenter/internal/audio"

// State is the position of the utterance state machine
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// machine is the Idle/Recording hysteresis. It only sees the ring, the
// current frame and its activation; it never classifies anything itself.
type machine struct {
	voiceThreshold    float64
	nonVoiceThreshold float64
	padding           int

	state   State
	segment []audio.Frame
}

func newMachine(cfg Config) machine {
	return machine{
		voiceThreshold:    cfg.VoiceThreshold,
		nonVoiceThreshold: cfg.NonVoiceThreshold,
		padding:           cfg.PaddingFrames,
	}
}

// step advances the machine by one frame. The frame must already be stored in
// the ring. When a segment closes it is returned with done set.
func (m *machine) step(r *audio.Ring, frame audio.Frame, activation float64) (segment []audio.Frame, done bool) {
	switch m.state {
	case Idle:
		if activation > m.voiceThreshold {
			m.state = Recording
			// Pre-roll: everything still buffered, current frame included
			m.segment = r.Snapshot()
		}

	case Recording:
		if activation > m.nonVoiceThreshold {
			m.segment = append(m.segment, frame)
			return nil, false
		}

		for i := 0; i < m.padding; i++ {
			m.segment = append(m.segment, frame)
		}
		segment = m.segment
		m.segment = nil
		m.state = Idle
		return segment, true
	}

	return nil, false
}

// discard drops an unfinished segment and reports whether there was one
func (m *machine) discard() bool {
	wasRecording := m.state == Recording
	m.state = Idle
	m.segment = nil
	return wasRecording
}
