package vad

import "github.com/skypro1111/vad-segmenter/internal/audio"

// Activation returns the share of speech among the window most recently
// stored decisions. Slots never written count as non-speech, so a fresh ring
// ramps up from 0. A window larger than the ring is clamped to its capacity.
func Activation(r *audio.Ring, window int) float64 {
	if window < 1 {
		return 0
	}
	if window > r.Capacity() {
		window = r.Capacity()
	}

	speech := 0
	for offset := 1; offset <= window; offset++ {
		if r.Decision(offset) {
			speech++
		}
	}
	return float64(speech) / float64(window)
}
