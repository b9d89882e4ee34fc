package bind

import (
	"github.com/lunarlang/lunar/vm"
)

// ---------------------------------------------------------------------------
// Cursor: a single forward pass over a table's entries
// ---------------------------------------------------------------------------

// Cursor is a position in one forward pass over a table: a borrowed table
// slot plus owned slots for the current entry's key and value. The two
// owned slots are either both valid (positioned on an entry) or both
// sentinel (exhausted), never mixed.
//
// Advancing is keyed off the raw identity of the current key, delegating
// entirely to the runtime's iteration protocol: removing the current key
// or mutating existing values mid-pass is safe, inserting new keys is
// not. Cursors are single-pass; only deriving a fresh cursor from the
// table Ref restarts a pass.
type Cursor struct {
	s     *vm.State
	table int  // borrowed
	key   int  // owned; NoRef when exhausted
	value int  // owned; NoRef when exhausted
	done  bool // set once the pass is over; a fresh cursor is not done
}

// Valid reports whether the cursor is positioned on an entry.
func (c *Cursor) Valid() bool {
	return c.s != nil && c.key != vm.NoRef
}

// Next advances to the next entry, or transitions to the exhausted state
// after the last one. Exhaustion is a normal transition, not an error.
// Advancing an exhausted cursor is a no-op. A fault from the iteration
// protocol (a key that was never in the table) leaves the cursor
// unchanged.
func (c *Cursor) Next() error {
	if c.s == nil || c.done {
		return nil
	}
	s := c.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(c.table)
	if c.key == vm.NoRef {
		s.PushNil()
	} else {
		s.PushRef(c.key)
	}
	ok, err := s.Next(-2)
	if err != nil {
		return err
	}
	if !ok {
		c.releaseSlots()
		c.done = true
		return nil
	}
	// Stack: table, key, value. Pin value first, then key.
	value := s.Ref()
	key := s.Ref()
	c.releaseSlots()
	c.key = key
	c.value = value
	return nil
}

func (c *Cursor) releaseSlots() {
	c.s.Unref(c.key)
	c.s.Unref(c.value)
	c.key = vm.NoRef
	c.value = vm.NoRef
}

// Key pins the current entry's key. Valid only while positioned; the
// cursor itself is not mutated, so the call is repeatable.
func (c *Cursor) Key() (*Ref, error) {
	if !c.Valid() {
		return nil, &vm.Fault{Op: "cursor", Msg: "key on an exhausted cursor"}
	}
	c.s.PushRef(c.key)
	return FromStackTop(c.s), nil
}

// Value pins the current entry's value. Valid only while positioned.
func (c *Cursor) Value() (*Ref, error) {
	if !c.Valid() {
		return nil, &vm.Fault{Op: "cursor", Msg: "value on an exhausted cursor"}
	}
	c.s.PushRef(c.value)
	return FromStackTop(c.s), nil
}

// Equal reports cursor equality: true when both cursors are exhausted, or
// when both are positioned on raw-identical keys. This is sufficient to
// terminate a pass against an end cursor; it is not meaningful across
// different tables beyond that.
func (c *Cursor) Equal(o *Cursor) bool {
	if !c.Valid() || !o.Valid() {
		return !c.Valid() && !o.Valid()
	}
	s := c.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(c.key)
	s.PushRef(o.key)
	return s.RawEqual(-2, -1)
}

// Clone duplicates the cursor's key/value registrations, producing an
// independent owner at the same position. The clone does not rewind; the
// pass remains single-pass.
func (c *Cursor) Clone() *Cursor {
	if !c.Valid() {
		return &Cursor{s: c.s, table: c.table, key: vm.NoRef, value: vm.NoRef, done: c.done}
	}
	s := c.s
	s.PushRef(c.key)
	key := s.Ref()
	s.PushRef(c.value)
	value := s.Ref()
	return &Cursor{s: s, table: c.table, key: key, value: value}
}

// Release frees whatever slots the cursor currently holds and leaves it
// exhausted. Releasing twice is a no-op.
func (c *Cursor) Release() {
	if c.s == nil {
		return
	}
	c.releaseSlots()
	c.done = true
}
