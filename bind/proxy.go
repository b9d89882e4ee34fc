package bind

import (
	"github.com/lunarlang/lunar/vm"
)

// ---------------------------------------------------------------------------
// Field: an assignable table-field proxy
// ---------------------------------------------------------------------------

// Field represents table[key] as a first-class location: a borrowed table
// slot paired with an owned key slot. The field is not read until Value
// is called and not written until Set is called; there is no caching, so
// every read and write is an independent round trip to the table.
//
// The table slot belongs to the Ref the Field was derived from; the Field
// never releases it and must not outlive that Ref.
type Field struct {
	s     *vm.State
	table int // borrowed
	key   int // owned
}

// Value reads the field through the __index metamethod chain and pins the
// result. The read duplicates the proxy's registered key; the proxy's own
// key slot is never consumed, so the read is repeatable.
func (f *Field) Value() (*Ref, error) {
	s := f.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(f.table)
	s.PushRef(f.key)
	if _, err := s.GetTable(-2); err != nil {
		return nil, err
	}
	return FromStackTop(s), nil
}

// Go reads the field and converts it to a native Go value.
func (f *Field) Go() (any, error) {
	v, err := f.Value()
	if err != nil {
		return nil, err
	}
	defer v.Release()
	return v.Go()
}

// Set writes the field through the __newindex metamethod chain,
// overwriting unconditionally. Repeatable; the proxy is not consumed.
func (f *Field) Set(value any) error {
	s := f.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(f.table)
	s.PushRef(f.key)
	if err := pushArg(s, value); err != nil {
		return err
	}
	return s.SetTable(-3)
}

// CopyFrom reads the other proxy's field and writes it into this one:
// "copy one field into another field", not proxy-identity aliasing.
func (f *Field) CopyFrom(o *Field) error {
	v, err := o.Value()
	if err != nil {
		return err
	}
	defer v.Release()
	s := f.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(f.table)
	s.PushRef(f.key)
	v.Push(s)
	return s.SetTable(-3)
}

// Clone duplicates the key registration, producing an independent owner
// of the same location.
func (f *Field) Clone() *Field {
	s := f.s
	s.PushRef(f.key)
	return &Field{s: s, table: f.table, key: s.Ref()}
}

// Release frees the owned key slot. The Field must not be used afterward.
// Releasing twice is a no-op.
func (f *Field) Release() {
	if f.s == nil {
		return
	}
	f.s.Unref(f.key)
	f.s = nil
	f.key = vm.NoRef
	f.table = vm.NoRef
}
