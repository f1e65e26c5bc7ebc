package vad

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/vad-segmenter/internal/audio"
)

// Utterance is one finished speech segment. The engine never modifies it after
// handing it to the sink. Samples is a slice, so holders that pass it on to
// code which may write to it should hand out a Clone.
type Utterance struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	SampleRate int       `json:"sample_rate"`
	Samples    []int16   `json:"-"`
	StartFrame uint64    `json:"start_frame"` // Index of the first pre-roll frame
	EndFrame   uint64    `json:"end_frame"`   // Index of the frame that closed the segment
	Frames     int       `json:"frames"`      // Frame count, padding included
	CreatedAt  time.Time `json:"created_at"`
}

func newUtterance(source string, sampleRate int, frames []audio.Frame) Utterance {
	total := 0
	for _, f := range frames {
		total += len(f.Samples)
	}

	samples := make([]int16, 0, total)
	for _, f := range frames {
		samples = append(samples, f.Samples...)
	}

	u := Utterance{
		ID:         uuid.NewString(),
		Source:     source,
		SampleRate: sampleRate,
		Samples:    samples,
		Frames:     len(frames),
		CreatedAt:  time.Now(),
	}
	if len(frames) > 0 {
		u.StartFrame = frames[0].Index
		u.EndFrame = frames[len(frames)-1].Index
	}
	return u
}

// Clone returns a copy whose Samples do not share memory with u
func (u Utterance) Clone() Utterance {
	u.Samples = slices.Clone(u.Samples)
	return u
}

// Duration returns the audio length of the utterance
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Bytes returns the utterance as little-endian PCM16
func (u Utterance) Bytes() []byte {
	return audio.SamplesToBytes(u.Samples)
}

// WAV returns the utterance as a mono PCM16 WAV file
func (u Utterance) WAV() ([]byte, error) {
	return audio.EncodeWAV(u.Samples, u.SampleRate)
}
