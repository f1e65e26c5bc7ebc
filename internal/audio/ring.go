package audio

import "fmt"

// Ring holds the last Capacity frames together with the speech decision made for
// each one. Both arrays share a single write cursor, so a slot always pairs a
// frame with its own decision.
//
// Ring is not safe for concurrent use; the owning engine serializes access.
type Ring struct {
	frames    []Frame
	decisions []bool
	capacity  int
	cursor    int    // Next slot to write
	stored    uint64 // Total pairs written
}

// NewRing creates a ring of the given capacity in frames
func NewRing(capacity int) (*Ring, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("ring capacity must be at least 1, got %d", capacity)
	}

	return &Ring{
		frames:    make([]Frame, capacity),
		decisions: make([]bool, capacity),
		capacity:  capacity,
	}, nil
}

// Store writes a frame/decision pair at the cursor and advances it, overwriting
// the oldest pair once the ring is full.
func (r *Ring) Store(frame Frame, decision bool) {
	r.frames[r.cursor] = frame
	r.decisions[r.cursor] = decision
	r.cursor = (r.cursor + 1) % r.capacity
	r.stored++
}

// Decision returns the decision offset slots behind the cursor; offset 1 is the
// most recent one. Slots that were never written read as false.
func (r *Ring) Decision(offset int) bool {
	return r.decisions[r.index(r.cursor-offset)]
}

// Frame returns the frame offset slots behind the cursor; offset 1 is the most
// recent one.
func (r *Ring) Frame(offset int) Frame {
	return r.frames[r.index(r.cursor-offset)]
}

// Snapshot returns the frames currently held, oldest first. Only written slots
// are included, so a ring that has seen fewer than Capacity frames returns
// exactly those frames.
func (r *Ring) Snapshot() []Frame {
	n := r.Len()
	out := make([]Frame, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, r.Frame(i))
	}
	return out
}

// Len returns the number of frames held, min(Stored, Capacity)
func (r *Ring) Len() int {
	if r.stored < uint64(r.capacity) {
		return int(r.stored)
	}
	return r.capacity
}

// Cursor returns the index of the next slot to write
func (r *Ring) Cursor() int {
	return r.cursor
}

// Capacity returns the number of slots
func (r *Ring) Capacity() int {
	return r.capacity
}

// Stored returns the total number of pairs written since creation
func (r *Ring) Stored() uint64 {
	return r.stored
}

// index maps any integer, including negative ones, onto a slot
func (r *Ring) index(i int) int {
	i %= r.capacity
	if i < 0 {
		i += r.capacity
	}
	return i
}
