package audio

import (
	"fmt"
	"sync"
)

// Frame is a fixed-length slice of PCM16 samples, the unit of speech classification.
// Frames are never mutated after the segmenter hands them out.
type Frame struct {
	Index   uint64  // Position of the frame in the stream, starting at 0
	Samples []int16 // Exactly frameSamples samples
}

// Bytes returns the frame as little-endian PCM16.
func (f Frame) Bytes() []byte {
	return SamplesToBytes(f.Samples)
}

// FrameSegmenter splits an unbounded byte stream into fixed-size frames.
// Partial frames stay buffered across calls until enough bytes arrive.
type FrameSegmenter struct {
	frameSamples int
	frameBytes   int

	pending []byte // Raw bytes not yet emitted as a frame
	emitted uint64 // Frames handed out so far

	mu sync.Mutex
}

// NewFrameSegmenter creates a segmenter emitting frames of frameSamples samples
func NewFrameSegmenter(frameSamples int) (*FrameSegmenter, error) {
	if frameSamples <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d samples", frameSamples)
	}

	return &FrameSegmenter{
		frameSamples: frameSamples,
		frameBytes:   frameSamples * BytesPerSample,
		pending:      make([]byte, 0, frameSamples*BytesPerSample*4),
	}, nil
}

// Push appends chunk and calls fn once per complete frame, oldest bytes first.
// If fn fails, the failing frame is consumed, the rest stays buffered and the
// error is returned; Push(nil, fn) resumes with the remaining frames.
func (s *FrameSegmenter) Push(chunk []byte, fn func(Frame) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, chunk...)

	offset := 0
	var err error
	for len(s.pending)-offset >= s.frameBytes {
		frame := Frame{
			Index:   s.emitted,
			Samples: BytesToSamples(s.pending[offset : offset+s.frameBytes]),
		}
		offset += s.frameBytes
		s.emitted++

		if err = fn(frame); err != nil {
			break
		}
	}

	// Shift the unconsumed tail to the front so the buffer does not grow without bound
	if offset > 0 {
		n := copy(s.pending, s.pending[offset:])
		s.pending = s.pending[:n]
	}

	return err
}

// Pending returns the number of buffered bytes that do not yet form a frame
// (or are waiting after a failed Push).
func (s *FrameSegmenter) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Emitted returns the number of frames handed out so far
func (s *FrameSegmenter) Emitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// FrameSamples returns the frame length in samples
func (s *FrameSegmenter) FrameSamples() int {
	return s.frameSamples
}

// Reset drops any buffered bytes and restarts frame numbering
func (s *FrameSegmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]
	s.emitted = 0
}
