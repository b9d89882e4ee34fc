package vm

// ---------------------------------------------------------------------------
// Table: hash storage with insertion-ordered iteration
// ---------------------------------------------------------------------------

// Table stores key/value pairs. Keys are normalized Values (integral floats
// fold to small integers, strings are interned), so the Go map below gives
// raw-identity lookup in O(1).
//
// Entries are kept in insertion order. Removing a key leaves a tombstone so
// that the native iteration protocol, which is keyed off the raw identity
// of the current key rather than off a position, can still advance from a
// key that was removed mid-pass. Tombstones are revived in place when the
// same key is inserted again. Inserting a previously unseen key during a
// pass is undefined behavior for any in-flight iteration, per the protocol
// contract.
type Table struct {
	entries []tableEntry
	index   map[Value]int
	meta    Value
	live    int
}

type tableEntry struct {
	key   Value
	value Value
	dead  bool
}

// NewTable creates an empty table with no metatable.
func NewTable() *Table {
	return &Table{
		index: make(map[Value]int),
		meta:  Nil,
	}
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return t.live
}

// Get returns the value for a normalized key, or Nil when absent.
func (t *Table) Get(key Value) Value {
	i, ok := t.index[key]
	if !ok || t.entries[i].dead {
		return Nil
	}
	return t.entries[i].value
}

// Set stores a value for a normalized key. Storing Nil removes the key,
// leaving a tombstone behind for in-flight iteration.
func (t *Table) Set(key, value Value) {
	i, ok := t.index[key]
	if value == Nil {
		if ok && !t.entries[i].dead {
			t.entries[i].dead = true
			t.entries[i].value = Nil
			t.live--
		}
		return
	}
	if ok {
		if t.entries[i].dead {
			t.entries[i].dead = false
			t.live++
		}
		t.entries[i].value = value
		return
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, tableEntry{key: key, value: value})
	t.live++
}

// Next returns the entry following the given key in iteration order. A Nil
// key starts the pass. The second result is false when the pass is
// complete, and the error is non-nil when the key was never present in the
// table (and so cannot anchor an iteration).
func (t *Table) Next(key Value) (tableEntry, bool, error) {
	start := 0
	if key != Nil {
		i, ok := t.index[key]
		if !ok {
			return tableEntry{}, false, faultf("next", "invalid key to table iteration")
		}
		start = i + 1
	}
	for i := start; i < len(t.entries); i++ {
		if !t.entries[i].dead {
			return t.entries[i], true, nil
		}
	}
	return tableEntry{}, false, nil
}

// Border returns the raw sequence length: an n such that t[n] is non-nil
// and t[n+1] is nil, computed over the integer keys 1..n.
func (t *Table) Border() int64 {
	var n int64
	for t.Get(FromSmallInt(n+1)) != Nil {
		n++
	}
	return n
}
