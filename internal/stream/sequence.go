package stream

import (
	"errors"
	"fmt"
)

// ErrStalePacket is returned for duplicate packets and packets older than the
// last one delivered
var ErrStalePacket = errors.New("stale packet")

// reorderBuffer restores packet order within a small window. Packets ahead of
// the expected sequence are held back; once the gap exceeds maxGap the missing
// sequences are declared lost and delivery moves on.
type reorderBuffer struct {
	maxGap   uint32
	started  bool
	expected uint32
	pending  map[uint32][]byte
}

func newReorderBuffer(maxGap int) *reorderBuffer {
	if maxGap < 0 {
		maxGap = 0
	}
	return &reorderBuffer{
		maxGap:  uint32(maxGap),
		pending: make(map[uint32][]byte),
	}
}

// push accepts one packet and returns the payloads now deliverable in order,
// plus how many sequence numbers were given up as lost.
func (b *reorderBuffer) push(sequence uint32, data []byte) (ready [][]byte, lost int, err error) {
	if !b.started {
		b.started = true
		b.expected = sequence
	}

	switch {
	case sequence == b.expected:
		ready = append(ready, data)
		b.expected++

	case sequence > b.expected:
		if _, dup := b.pending[sequence]; dup {
			return nil, 0, fmt.Errorf("%w: duplicate seq=%d", ErrStalePacket, sequence)
		}
		b.pending[sequence] = data

		if sequence-b.expected <= b.maxGap {
			return nil, 0, nil
		}

		// Gap too large: skip ahead, delivering whatever is buffered on the way
		for b.expected < sequence {
			if held, ok := b.pending[b.expected]; ok {
				ready = append(ready, held)
				delete(b.pending, b.expected)
			} else {
				lost++
			}
			b.expected++
		}

	default:
		return nil, 0, fmt.Errorf("%w: seq=%d, expected=%d", ErrStalePacket, sequence, b.expected)
	}

	// Drain consecutive packets that were waiting
	for {
		held, ok := b.pending[b.expected]
		if !ok {
			break
		}
		ready = append(ready, held)
		delete(b.pending, b.expected)
		b.expected++
	}

	return ready, lost, nil
}

// held returns the number of packets waiting for a gap to fill
func (b *reorderBuffer) held() int {
	return len(b.pending)
}
