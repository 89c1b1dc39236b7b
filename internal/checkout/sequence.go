package checkout

import "sync/atomic"

// Sequencer orders overlapping requests for the same resource. Responses are
// applied in issue order: a response is dropped once a newer request's
// response has been applied, however late the older one arrives.
type Sequencer struct {
	issued  atomic.Uint64
	applied atomic.Uint64
}

func (s *Sequencer) Next() uint64 {
	return s.issued.Add(1)
}

func (s *Sequencer) Apply(seq uint64) bool {
	for {
		cur := s.applied.Load()
		if seq <= cur {
			return false
		}
		if s.applied.CompareAndSwap(cur, seq) {
			return true
		}
	}
}
