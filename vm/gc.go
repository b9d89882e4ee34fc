package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Mark/sweep collection over the heap registries
// ---------------------------------------------------------------------------

// GCStats holds statistics from a single collection.
type GCStats struct {
	Strings    int
	Tables     int
	Functions  int
	Userdata   int
	Threads    int
	TotalSwept int
	Duration   time.Duration
	Timestamp  time.Time
}

// CollectGarbage reclaims every heap object unreachable from the roots:
// the value stack, the globals table, and the live registry slots.
// Releasing a registry slot makes its value *eligible* for collection; it
// is reclaimed on the next collection, not immediately.
//
// Collection runs on the caller's goroutine under the State's
// single-thread contract; there is no background sweeper.
func (s *State) CollectGarbage() GCStats {
	start := time.Now()
	m := newMarker(s.h)

	for _, v := range s.stack {
		m.mark(v)
	}
	m.mark(s.globals)
	for _, v := range s.reg.slots {
		m.mark(v)
	}

	stats := s.h.sweep(m)
	stats.Duration = time.Since(start)
	stats.Timestamp = start
	if stats.TotalSwept > 0 {
		s.log.Debugf("gc: swept %d objects in %v", stats.TotalSwept, stats.Duration)
	}
	return stats
}

type marker struct {
	h       *heap
	strings map[uint32]bool
	tables  map[uint32]bool
	funcs   map[uint32]bool
	users   map[uint32]bool
	threads map[uint32]bool
}

func newMarker(h *heap) *marker {
	return &marker{
		h:       h,
		strings: make(map[uint32]bool),
		tables:  make(map[uint32]bool),
		funcs:   make(map[uint32]bool),
		users:   make(map[uint32]bool),
		threads: make(map[uint32]bool),
	}
}

func (m *marker) mark(v Value) {
	switch {
	case v.IsString():
		m.strings[v.heapID()] = true
	case v.IsFunction():
		m.funcs[v.heapID()] = true
	case v.IsThread():
		m.threads[v.heapID()] = true
	case v.IsUserdata():
		id := v.heapID()
		if m.users[id] {
			return
		}
		m.users[id] = true
		if u := m.h.users[id]; u != nil {
			m.mark(u.meta)
		}
	case v.IsTable():
		id := v.heapID()
		if m.tables[id] {
			return
		}
		m.tables[id] = true
		t := m.h.tables[id]
		if t == nil {
			return
		}
		// Tombstoned keys stay marked: an in-flight cursor may still
		// anchor iteration on a removed key.
		for _, e := range t.entries {
			m.mark(e.key)
			m.mark(e.value)
		}
		m.mark(t.meta)
	}
}

func (h *heap) sweep(m *marker) GCStats {
	var stats GCStats
	for id, content := range h.strings {
		if !m.strings[id] {
			delete(h.strings, id)
			delete(h.intern, content)
			stats.Strings++
		}
	}
	for id := range h.tables {
		if !m.tables[id] {
			delete(h.tables, id)
			stats.Tables++
		}
	}
	for id := range h.funcs {
		if !m.funcs[id] {
			delete(h.funcs, id)
			stats.Functions++
		}
	}
	for id := range h.users {
		if !m.users[id] {
			delete(h.users, id)
			stats.Userdata++
		}
	}
	for id := range h.threads {
		if !m.threads[id] {
			delete(h.threads, id)
			stats.Threads++
		}
	}
	stats.TotalSwept = stats.Strings + stats.Tables + stats.Functions +
		stats.Userdata + stats.Threads
	return stats
}

// LiveObjects returns the number of heap objects currently registered, for
// diagnostics and leak tests.
func (s *State) LiveObjects() int {
	return len(s.h.strings) + len(s.h.tables) + len(s.h.funcs) +
		len(s.h.users) + len(s.h.threads)
}
