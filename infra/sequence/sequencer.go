// Package sequence issues the strictly monotonic sequence numbers the
// input queue stamps on appended requests.
package sequence

import "sync/atomic"

type Sequencer struct {
	next atomic.Uint64
}

// New starts issuing after last: 0 on a fresh log, the highest replayed
// sequence after recovery.
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(last)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset ratchets the issuer forward so the next sequence is last+1.
// Calls with a value at or below the current position are ignored, so
// the stream can never regress.
func (s *Sequencer) Reset(last uint64) {
	for {
		cur := s.next.Load()
		if last <= cur {
			return
		}
		if s.next.CompareAndSwap(cur, last) {
			return
		}
	}
}
