package gateway

import "sync"

// replayEntry holds a single broadcasted envelope.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel so clients
// can backfill sequence gaps. Safe for concurrent use.
type ReplayBuffer struct {
	mu    sync.RWMutex
	buf   []replayEntry
	head  int // index of the oldest entry
	count int
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayDepth
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push appends an envelope, evicting the oldest when full. data is copied.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.count < len(rb.buf) {
		rb.buf[(rb.head+rb.count)%len(rb.buf)] = replayEntry{Seq: seq, Data: cp}
		rb.count++
		return
	}
	rb.buf[rb.head] = replayEntry{Seq: seq, Data: cp}
	rb.head = (rb.head + 1) % len(rb.buf)
}

// Range returns entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []replayEntry
	for i := 0; i < rb.count; i++ {
		e := rb.buf[(rb.head+i)%len(rb.buf)]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
