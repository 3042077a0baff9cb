// Package timer implements the idle-eviction timer store for the reactor.
//
// The store is a binary min-heap ordered by absolute expiry time with lazy
// deletion: cancelling an entry only flips a tombstone flag, and the dead
// entry is physically removed when it surfaces at the front of the heap.
//
// Design rationale:
// - Connections re-arm their idle timer on almost every I/O event. A
//   physical remove+reinsert per event would dominate cost at high
//   connection churn; tombstone-and-skip amortizes the cleanup to the
//   moment the entry would have fired anyway.
// - The store is owned and mutated exclusively by the reactor's single
//   goroutine, so no locking is needed.
package timer

import (
	"container/heap"
	"time"
)

// Entry is one scheduled expiry. Callers hold it as an opaque handle for
// Cancel; everything else is managed by the Store.
type Entry struct {
	due       time.Time
	seq       uint64 // insertion order, tie-break for equal due times
	index     int    // heap index, -1 once popped
	tombstone bool
	fire      func()
}

// Store is a priority queue of pending expiries.
// Not safe for concurrent use; the owning event loop is single-threaded.
type Store struct {
	entries entryHeap
	nextSeq uint64
	live    int
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Schedule inserts a new expiry d from now and returns its handle.
// O(log n).
func (s *Store) Schedule(d time.Duration, fire func()) *Entry {
	return s.ScheduleAt(time.Now().Add(d), fire)
}

// ScheduleAt inserts a new expiry at an absolute instant.
// Exposed separately so tests can drive the clock explicitly.
func (s *Store) ScheduleAt(due time.Time, fire func()) *Entry {
	e := &Entry{
		due:  due,
		seq:  s.nextSeq,
		fire: fire,
	}
	s.nextSeq++
	heap.Push(&s.entries, e)
	s.live++
	return e
}

// Cancel marks the entry tombstoned. The entry stays in the heap until it
// reaches the front; firing it is suppressed. Cancelling an entry twice, or
// one that already fired, is a no-op. O(1).
func (s *Store) Cancel(e *Entry) {
	if e == nil || e.tombstone {
		return
	}
	e.tombstone = true
	e.fire = nil
	if e.index >= 0 {
		s.live--
	}
}

// NextWait returns the time until the earliest live entry, discarding
// tombstoned entries at the front. The second result is false when no live
// timers exist (the caller should wait indefinitely).
func (s *Store) NextWait(now time.Time) (time.Duration, bool) {
	s.scrub()
	if s.entries.Len() == 0 {
		return 0, false
	}
	d := s.entries[0].due.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// DrainDue pops and discards tombstoned entries, then pops and fires every
// live entry due at or before now, until the front entry is not yet due.
// Each entry fires at most once.
func (s *Store) DrainDue(now time.Time) {
	for {
		s.scrub()
		if s.entries.Len() == 0 || s.entries[0].due.After(now) {
			return
		}
		e := heap.Pop(&s.entries).(*Entry)
		s.live--
		fire := e.fire
		e.fire = nil
		e.tombstone = true
		fire()
	}
}

// Len reports the number of live (non-tombstoned) entries.
func (s *Store) Len() int {
	return s.live
}

// scrub removes tombstoned entries sitting at the front of the heap.
func (s *Store) scrub() {
	for s.entries.Len() > 0 && s.entries[0].tombstone {
		heap.Pop(&s.entries)
	}
}

// entryHeap orders by due time, then by insertion sequence so equal keys
// pop in a stable order.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
