package protocol

import "sync/atomic"

// Sequence is the monotonic broadcast counter. The host calls Next before
// every broadcast; guests compare stamped versions against Current and
// Adopt whatever a full-state message carries.
type Sequence struct{ v uint64 }

func (s *Sequence) Current() uint64 { return atomic.LoadUint64(&s.v) }
func (s *Sequence) Next() uint64    { return atomic.AddUint64(&s.v, 1) }
func (s *Sequence) Adopt(v uint64)  { atomic.StoreUint64(&s.v, v) }

// Gap reports whether a patch stamped with incoming must be discarded.
// Patches are only applicable when they are exactly the next version;
// anything else (drop, duplicate, reorder) means resync.
func (s *Sequence) Gap(incoming uint64) bool {
	return incoming != atomic.LoadUint64(&s.v)+1
}
