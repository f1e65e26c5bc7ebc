package audio

import (
	"errors"
	"testing"
)

// pcmRamp returns n little-endian samples counting up from start
func pcmRamp(start, n int) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(start + i)
	}
	return SamplesToBytes(samples)
}

func TestNewFrameSegmenterValidation(t *testing.T) {
	if _, err := NewFrameSegmenter(0); err == nil {
		t.Error("Expected error for zero frame size")
	}

	if _, err := NewFrameSegmenter(-80); err == nil {
		t.Error("Expected error for negative frame size")
	}

	seg, err := NewFrameSegmenter(80)
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	if seg.FrameSamples() != 80 {
		t.Errorf("Expected 80 samples per frame, got %d", seg.FrameSamples())
	}
}

func TestSegmenterUndersizedChunks(t *testing.T) {
	seg, _ := NewFrameSegmenter(80) // 160 bytes per frame

	frames := 0
	count := func(Frame) error {
		frames++
		return nil
	}

	// 159 bytes in uneven pieces, including an odd-sized one
	for _, size := range []int{1, 50, 7, 100, 1} {
		if err := seg.Push(make([]byte, size), count); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	if frames != 0 {
		t.Errorf("Expected no frames below one frame of data, got %d", frames)
	}

	if seg.Pending() != 159 {
		t.Errorf("Expected 159 pending bytes, got %d", seg.Pending())
	}

	// One more byte completes the frame
	if err := seg.Push([]byte{0}, count); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if frames != 1 {
		t.Errorf("Expected exactly one frame, got %d", frames)
	}

	if seg.Pending() != 0 {
		t.Errorf("Expected empty buffer, got %d pending bytes", seg.Pending())
	}
}

func TestSegmenterOrderAndNoLoss(t *testing.T) {
	const frameSamples = 10
	seg, _ := NewFrameSegmenter(frameSamples)

	// 47 samples split across irregular chunk boundaries, including mid-sample splits
	stream := pcmRamp(0, 47)
	cuts := []int{3, 21, 22, 60, 61, 94}

	var got []Frame
	collect := func(f Frame) error {
		got = append(got, f)
		return nil
	}

	prev := 0
	for _, cut := range cuts {
		if err := seg.Push(stream[prev:cut], collect); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
		prev = cut
	}

	if len(got) != 4 {
		t.Fatalf("Expected 4 frames, got %d", len(got))
	}

	for i, frame := range got {
		if frame.Index != uint64(i) {
			t.Errorf("Frame %d: expected index %d, got %d", i, i, frame.Index)
		}
		if len(frame.Samples) != frameSamples {
			t.Errorf("Frame %d: expected %d samples, got %d", i, frameSamples, len(frame.Samples))
		}
		for j, s := range frame.Samples {
			if want := int16(i*frameSamples + j); s != want {
				t.Errorf("Frame %d sample %d: expected %d, got %d", i, j, want, s)
			}
		}
	}

	// 7 samples remain buffered
	if seg.Pending() != 7*BytesPerSample {
		t.Errorf("Expected %d pending bytes, got %d", 7*BytesPerSample, seg.Pending())
	}

	if seg.Emitted() != 4 {
		t.Errorf("Expected 4 emitted frames, got %d", seg.Emitted())
	}
}

func TestSegmenterStopsOnCallbackError(t *testing.T) {
	seg, _ := NewFrameSegmenter(4)
	boom := errors.New("boom")

	var seen []uint64
	failSecond := func(f Frame) error {
		seen = append(seen, f.Index)
		if f.Index == 1 {
			return boom
		}
		return nil
	}

	// Three full frames at once
	err := seg.Push(pcmRamp(0, 12), failSecond)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected callback error, got %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("Expected processing to stop after the failing frame, saw %v", seen)
	}

	// The failing frame is consumed, the third one is still buffered
	if seg.Pending() != 4*BytesPerSample {
		t.Errorf("Expected one frame pending, got %d bytes", seg.Pending())
	}

	if err := seg.Push(nil, failSecond); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if len(seen) != 3 || seen[2] != 2 {
		t.Errorf("Expected resumed frame with index 2, saw %v", seen)
	}
}

func TestSegmenterReset(t *testing.T) {
	seg, _ := NewFrameSegmenter(4)
	_ = seg.Push(pcmRamp(0, 6), func(Frame) error { return nil })

	seg.Reset()

	if seg.Pending() != 0 {
		t.Errorf("Expected no pending bytes after reset, got %d", seg.Pending())
	}

	if seg.Emitted() != 0 {
		t.Errorf("Expected frame numbering to restart, got %d", seg.Emitted())
	}
}

func TestPCMConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	data := SamplesToBytes(samples)

	if len(data) != len(samples)*BytesPerSample {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*BytesPerSample, len(data))
	}

	// Little-endian layout
	if data[10] != 0x00 || data[11] != 0x01 {
		t.Errorf("Expected little-endian encoding of 256, got %#x %#x", data[10], data[11])
	}

	back := BytesToSamples(data)
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}

	// Trailing odd byte is ignored
	if n := len(BytesToSamples([]byte{1, 0, 7})); n != 1 {
		t.Errorf("Expected 1 sample from 3 bytes, got %d", n)
	}
}
