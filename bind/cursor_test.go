package bind

import (
	"testing"

	"github.com/lunarlang/lunar/vm"
)

func TestCursorFullPass(t *testing.T) {
	s := newState(t)

	r := newTableRef(t, s)
	defer r.Release()
	want := map[string]int64{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		if err := r.RawSet(k, v); err != nil {
			t.Fatal(err)
		}
	}

	got := make(map[string]int64)
	c, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()
	for c.Valid() {
		key, err := c.Key()
		if err != nil {
			t.Fatal(err)
		}
		val, err := c.Value()
		if err != nil {
			t.Fatal(err)
		}
		ks, err := key.Str()
		if err != nil {
			t.Fatal(err)
		}
		n, err := val.Int()
		if err != nil {
			t.Fatal(err)
		}
		got[ks] = n
		key.Release()
		val.Release()
		if err := c.Next(); err != nil {
			t.Fatal(err)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("pass visited %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("entry %q = %d, want %d", k, got[k], v)
		}
	}
	if s.Top() != 0 {
		t.Fatalf("completed pass left %d stack values", s.Top())
	}
}

func TestCursorEmptyTable(t *testing.T) {
	s := newState(t)

	r := newTableRef(t, s)
	defer r.Release()

	c, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()
	if c.Valid() {
		t.Fatal("cursor over an empty table should start exhausted")
	}
	if _, err := c.Key(); err == nil {
		t.Fatal("Key on an exhausted cursor should fault")
	}
	if _, err := c.Value(); err == nil {
		t.Fatal("Value on an exhausted cursor should fault")
	}
}

func TestCursorExhaustionIsSticky(t *testing.T) {
	s := newState(t)

	r := newTableRef(t, s)
	defer r.Release()
	if err := r.RawSet("only", 1); err != nil {
		t.Fatal(err)
	}

	c, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if c.Valid() {
		t.Fatal("single-entry pass should be exhausted")
	}
	// Advancing an exhausted cursor must not restart the pass.
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if c.Valid() {
		t.Fatal("exhausted cursor restarted")
	}
}

func TestCursorRemoveCurrentKeyMidPass(t *testing.T) {
	s := newState(t)

	r := newTableRef(t, s)
	defer r.Release()
	for i := 1; i <= 3; i++ {
		if err := r.RawSet(i*10, i); err != nil {
			t.Fatal(err)
		}
	}

	c, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()

	visited := 0
	for c.Valid() {
		visited++
		key, err := c.Key()
		if err != nil {
			t.Fatal(err)
		}
		k, err := key.Int()
		key.Release()
		if err != nil {
			t.Fatal(err)
		}
		// Remove the entry the cursor is standing on.
		if err := r.RawSet(k, nil); err != nil {
			t.Fatal(err)
		}
		if err := c.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if visited != 3 {
		t.Fatalf("visited %d entries, want 3", visited)
	}
	if n, err := r.RawLen(); err != nil || n != 0 {
		t.Fatalf("table not emptied: %d, %v", n, err)
	}
}

func TestCursorEqual(t *testing.T) {
	s := newState(t)

	r := newTableRef(t, s)
	defer r.Release()
	if err := r.RawSet("a", 1); err != nil {
		t.Fatal(err)
	}
	if err := r.RawSet("b", 2); err != nil {
		t.Fatal(err)
	}

	c1, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Release()
	c2, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Release()

	if !c1.Equal(c2) {
		t.Fatal("two fresh cursors share the first key")
	}
	if err := c2.Next(); err != nil {
		t.Fatal(err)
	}
	if c1.Equal(c2) {
		t.Fatal("cursors at different positions compare equal")
	}

	// Both exhausted: equal again.
	for c1.Valid() {
		if err := c1.Next(); err != nil {
			t.Fatal(err)
		}
	}
	for c2.Valid() {
		if err := c2.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if !c1.Equal(c2) {
		t.Fatal("two exhausted cursors should compare equal")
	}
}

func TestCursorClone(t *testing.T) {
	s := newState(t)

	r := newTableRef(t, s)
	defer r.Release()
	if err := r.RawSet("a", 1); err != nil {
		t.Fatal(err)
	}
	if err := r.RawSet("b", 2); err != nil {
		t.Fatal(err)
	}

	c, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()
	d := c.Clone()
	defer d.Release()

	if !c.Equal(d) {
		t.Fatal("clone should share the position")
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	// The clone is an independent owner and did not move.
	if c.Equal(d) {
		t.Fatal("advancing one cursor moved its clone")
	}
	key, err := d.Key()
	if err != nil {
		t.Fatal(err)
	}
	defer key.Release()
	if ks, _ := key.Str(); ks != "a" {
		t.Fatalf("clone position = %q, want first entry", ks)
	}
}

func TestCursorValueIsPinnedIndependently(t *testing.T) {
	s := newState(t)

	r := newTableRef(t, s)
	defer r.Release()
	inner := newTableRef(t, s)
	if err := r.RawSet("t", inner); err != nil {
		t.Fatal(err)
	}
	innerClone := inner.Clone()
	defer innerClone.Release()
	inner.Release()

	c, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()
	val, err := c.Value()
	if err != nil {
		t.Fatal(err)
	}
	defer val.Release()

	// Remove the entry; the pinned value survives collection.
	if err := r.RawSet("t", nil); err != nil {
		t.Fatal(err)
	}
	s.CollectGarbage()
	if val.Type() != vm.TypeTable {
		t.Fatal("pinned value lost after removal and collection")
	}
	if !val.IsIdentical(innerClone) {
		t.Fatal("pinned value identity changed")
	}
}

func TestCursorReleaseFreesSlots(t *testing.T) {
	s := newState(t)

	r := newTableRef(t, s)
	if err := r.RawSet("a", 1); err != nil {
		t.Fatal(err)
	}

	c, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	c.Release()
	c.Release() // no-op
	if c.Valid() {
		t.Fatal("released cursor should be exhausted")
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}

	r.Release()
	if s.RefCount() != 0 {
		t.Fatalf("slot leak: %d", s.RefCount())
	}
}
