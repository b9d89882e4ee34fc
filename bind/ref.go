package bind

import (
	"reflect"
	"strings"

	"github.com/lunarlang/lunar/vm"
)

// ---------------------------------------------------------------------------
// Ref: a pinned reference to one runtime value
// ---------------------------------------------------------------------------

// Ref owns exactly one registry slot in a State. The slot pins the
// referenced value against the runtime's collector until Release is
// called (or the Ref is reassigned through Move).
//
// The zero Ref is empty: it references nothing, which is distinct from
// referencing the runtime nil value. Operations on an empty Ref behave as
// on a default-constructed one; none of them panic.
type Ref struct {
	s    *vm.State
	slot int
}

// FromStackTop pins the value at the top of the State's stack into a
// fresh registry slot and pops it. It never fails for a well-formed
// stack.
func FromStackTop(s *vm.State) *Ref {
	return &Ref{s: s, slot: s.Ref()}
}

// New converts a native Go value into a runtime value and pins it.
func New(s *vm.State, value any) (*Ref, error) {
	top := s.Top()
	if err := s.PushGoValue(value); err != nil {
		s.SetTop(top)
		return nil, err
	}
	return FromStackTop(s), nil
}

// Global resolves a plain or dotted global name ("config" or
// "config.net.port") and pins the result. An absent name, or a path that
// dead-ends in a non-indexable value, yields a Ref holding nil rather
// than an error.
func Global(s *vm.State, name string) *Ref {
	top := s.Top()
	defer s.SetTop(top)

	parts := strings.Split(name, ".")
	s.Global(parts[0])
	for _, part := range parts[1:] {
		if t := s.Type(-1); t != vm.TypeTable && t != vm.TypeUserdata {
			return wrapSlot(s, vm.RefNil)
		}
		s.PushString(part)
		if _, err := s.GetTable(-2); err != nil {
			return wrapSlot(s, vm.RefNil)
		}
	}
	return FromStackTop(s)
}

// wrapSlot adopts an existing registry slot. The Ref takes ownership.
func wrapSlot(s *vm.State, slot int) *Ref {
	return &Ref{s: s, slot: slot}
}

// Release frees the Ref's registry slot, making the referenced value
// eligible for collection if nothing else reaches it. The Ref becomes
// empty. Releasing an empty Ref is a no-op, so Release is idempotent and
// safe to defer unconditionally.
func (r *Ref) Release() {
	if r == nil || r.s == nil {
		return
	}
	r.s.Unref(r.slot)
	r.s = nil
	r.slot = vm.NoRef
}

// Clone registers a second slot for the same underlying value. The two
// Refs are independent owners: releasing or reassigning one never affects
// what the other reads.
func (r *Ref) Clone() *Ref {
	if r.isEmpty() {
		return &Ref{slot: vm.NoRef}
	}
	if r.slot == vm.RefNil {
		return wrapSlot(r.s, vm.RefNil)
	}
	r.s.PushRef(r.slot)
	return FromStackTop(r.s)
}

// Move transfers slot ownership to the returned Ref and empties the
// receiver. No registry traffic occurs.
func (r *Ref) Move() *Ref {
	moved := &Ref{s: r.s, slot: r.slot}
	r.s = nil
	r.slot = vm.NoRef
	return moved
}

func (r *Ref) isEmpty() bool {
	return r == nil || r.s == nil
}

// IsEmpty reports whether the Ref references nothing at all (default
// constructed, released, or moved from).
func (r *Ref) IsEmpty() bool {
	return r.isEmpty()
}

// IsNil reports whether the Ref compares equal to nil: true for an empty
// Ref and for a Ref holding the runtime nil value. This is a pure slot
// sentinel check; no runtime round trip happens and no metamethod can
// fire.
func (r *Ref) IsNil() bool {
	return r.isEmpty() || r.slot == vm.RefNil
}

// State returns the State this Ref is bound to, or nil when empty.
func (r *Ref) State() *vm.State {
	if r == nil {
		return nil
	}
	return r.s
}

// Push pushes the referenced value onto the given State's stack. An
// empty Ref pushes nil; a non-empty Ref must be pushed onto its own
// State.
func (r *Ref) Push(s *vm.State) {
	if r.isEmpty() {
		s.PushNil()
		return
	}
	r.s.PushRef(r.slot)
}

// ---------------------------------------------------------------------------
// Type inspection
// ---------------------------------------------------------------------------

// Type returns the runtime type of the referenced value. An empty Ref
// reports TypeNone, which is distinct from TypeNil.
func (r *Ref) Type() vm.Type {
	if r.isEmpty() {
		return vm.TypeNone
	}
	if r.slot == vm.RefNil {
		return vm.TypeNil
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	return s.Type(-1)
}

// Check returns the receiver when the referenced value has the expected
// runtime type, and a TypeError otherwise. It is the precondition guard
// for the structural (table- and function-only) operations.
func (r *Ref) Check(want vm.Type) (*Ref, error) {
	if got := r.Type(); got != want {
		return nil, &vm.TypeError{Op: "check", Want: want, Got: got}
	}
	return r, nil
}

// checkIndexable guards the table operations: tables always qualify, and
// userdata qualifies because its metatable may carry __index/__newindex.
func (r *Ref) checkIndexable(op string) error {
	got := r.Type()
	if got == vm.TypeTable || got == vm.TypeUserdata {
		return nil
	}
	return &vm.TypeError{Op: op, Want: vm.TypeTable, Got: got}
}

// ---------------------------------------------------------------------------
// Table operations
// ---------------------------------------------------------------------------

// Get reads table[key] through the __index metamethod chain and pins the
// result. The metamethod may run arbitrary user code; a fault propagates
// with the stack already rebalanced. A missing field yields a Ref holding
// nil.
//
// Here and in the other keyed operations, a key or value of type *Ref
// passes the referenced runtime value through unchanged; any other Go
// value goes through the native conversion.
func (r *Ref) Get(key any) (*Ref, error) {
	if err := r.checkIndexable("get"); err != nil {
		return nil, err
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	if err := pushArg(s, key); err != nil {
		return nil, err
	}
	if _, err := s.GetTable(-2); err != nil {
		return nil, err
	}
	return FromStackTop(s), nil
}

// Set writes table[key] = value through the __newindex metamethod chain.
func (r *Ref) Set(key, value any) error {
	if err := r.checkIndexable("set"); err != nil {
		return err
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	if err := pushArg(s, key); err != nil {
		return err
	}
	if err := pushArg(s, value); err != nil {
		return err
	}
	return s.SetTable(-3)
}

// RawGet reads table[key] bypassing metamethods entirely; no user code
// can run.
func (r *Ref) RawGet(key any) (*Ref, error) {
	if _, err := r.Check(vm.TypeTable); err != nil {
		return nil, err
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	if err := pushArg(s, key); err != nil {
		return nil, err
	}
	if _, err := s.RawGet(-2); err != nil {
		return nil, err
	}
	return FromStackTop(s), nil
}

// RawSet writes table[key] = value bypassing metamethods entirely.
func (r *Ref) RawSet(key, value any) error {
	if _, err := r.Check(vm.TypeTable); err != nil {
		return err
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	if err := pushArg(s, key); err != nil {
		return err
	}
	if err := pushArg(s, value); err != nil {
		return err
	}
	return s.RawSet(-3)
}

// Has reports whether table[key] reads as a non-nil value (through the
// __index chain, consistent with Get).
func (r *Ref) Has(key any) (bool, error) {
	v, err := r.Get(key)
	if err != nil {
		return false, err
	}
	defer v.Release()
	return !v.IsNil(), nil
}

// Remove deletes table[key] by writing nil through the __newindex chain.
func (r *Ref) Remove(key any) error {
	return r.Set(key, nil)
}

// Len returns the length of the referenced value, respecting the __len
// metamethod.
func (r *Ref) Len() (int64, error) {
	if err := r.checkIndexable("len"); err != nil {
		return 0, err
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	return s.Length(-1)
}

// RawLen returns the raw length of the referenced table, bypassing the
// __len metamethod.
func (r *Ref) RawLen() (int64, error) {
	if _, err := r.Check(vm.TypeTable); err != nil {
		return 0, err
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	return s.RawLen(-1)
}

// GetDefault reads table[key] through the __index chain and converts the
// result to the dynamic type of def. When the field is absent, not
// convertible, or the read itself faults, def is returned; no failure
// propagates.
func (r *Ref) GetDefault(key, def any) any {
	v, err := r.Get(key)
	if err != nil {
		return def
	}
	defer v.Release()
	return v.orDefault(def)
}

// RawGetDefault is GetDefault on the raw read path.
func (r *Ref) RawGetDefault(key, def any) any {
	v, err := r.RawGet(key)
	if err != nil {
		return def
	}
	defer v.Release()
	return v.orDefault(def)
}

func (r *Ref) orDefault(def any) any {
	if r.IsNil() {
		return def
	}
	if def == nil {
		v, err := r.Go()
		if err != nil {
			return nil
		}
		return v
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	out := reflect.New(reflect.TypeOf(def))
	if err := s.AssignTo(-1, out.Interface()); err != nil {
		return def
	}
	return out.Elem().Interface()
}

// Field defers table[key] into an assignable proxy: the key is converted
// and pinned now, but the field itself is not read until the proxy is
// used. This lets one expression denote a location for both read and
// write without an eager read on the write path.
func (r *Ref) Field(key any) (*Field, error) {
	if err := r.checkIndexable("field"); err != nil {
		return nil, err
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	if err := pushArg(s, key); err != nil {
		return nil, err
	}
	return &Field{s: s, table: r.slot, key: s.Ref()}, nil
}

// Iter starts a single forward pass over the referenced table's entries.
// The returned cursor is positioned on the first entry, or exhausted for
// an empty table.
func (r *Ref) Iter() (*Cursor, error) {
	if _, err := r.Check(vm.TypeTable); err != nil {
		return nil, err
	}
	c := &Cursor{s: r.s, table: r.slot, key: vm.NoRef, value: vm.NoRef}
	if err := c.Next(); err != nil {
		return nil, err
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Metatables
// ---------------------------------------------------------------------------

// Metatable pins the referenced value's metatable. The result holds nil
// when there is none.
func (r *Ref) Metatable() *Ref {
	if r.isEmpty() || r.slot == vm.RefNil {
		return wrapSlot(r.s, vm.RefNil)
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	if !s.Metatable(-1) {
		return wrapSlot(s, vm.RefNil)
	}
	return FromStackTop(s)
}

// SetMetatable installs meta (a table Ref, or a nil Ref to clear) as the
// referenced value's metatable.
func (r *Ref) SetMetatable(meta *Ref) error {
	if err := r.checkIndexable("setmetatable"); err != nil {
		return err
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	if meta == nil || meta.IsNil() {
		s.PushNil()
	} else {
		s.PushRef(meta.slot)
	}
	return s.SetMetatable(-2)
}

// ---------------------------------------------------------------------------
// Identity and ordering
// ---------------------------------------------------------------------------

// IsIdentical reports raw runtime identity: the same object, the same
// interned string, or numerically equal numbers. No metamethod is
// consulted. Two nil-comparing Refs are identical.
func (r *Ref) IsIdentical(o *Ref) bool {
	if r.IsNil() || o.IsNil() {
		return r.IsNil() && o.IsNil()
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	s.PushRef(o.slot)
	return s.RawEqual(-2, -1)
}

// Equals compares with the runtime's equality, which may invoke an __eq
// metamethod and fail. When either side compares equal to nil the result
// is a pure sentinel check with no runtime round trip.
func (r *Ref) Equals(o *Ref) (bool, error) {
	if r.IsNil() || o.IsNil() {
		return r.IsNil() && o.IsNil(), nil
	}
	return r.compare(o, vm.OpEq)
}

// Less compares with the runtime's ordering, which may invoke an __lt
// metamethod and can fail for non-comparable types.
func (r *Ref) Less(o *Ref) (bool, error) {
	return r.compare(o, vm.OpLt)
}

// LessEq compares with the runtime's ordering via __le.
func (r *Ref) LessEq(o *Ref) (bool, error) {
	return r.compare(o, vm.OpLe)
}

func (r *Ref) compare(o *Ref, op vm.CompareOp) (bool, error) {
	s := r.s
	if s == nil {
		s = o.s
	}
	if s == nil {
		return false, &vm.Fault{Op: "compare", Msg: "attempt to compare two empty references"}
	}
	top := s.Top()
	defer s.SetTop(top)
	pushRefOrNil(s, r)
	pushRefOrNil(s, o)
	return s.Compare(op, -2, -1)
}

func pushRefOrNil(s *vm.State, r *Ref) {
	if r.isEmpty() {
		s.PushNil()
		return
	}
	s.PushRef(r.slot)
}

// pushArg pushes a key or value argument. A *Ref pushes the value it
// references; anything else goes through the native conversion.
func pushArg(s *vm.State, v any) error {
	if r, ok := v.(*Ref); ok {
		r.Push(s)
		return nil
	}
	return s.PushGoValue(v)
}

// ---------------------------------------------------------------------------
// Native conversion
// ---------------------------------------------------------------------------

// Go returns the referenced value as a native Go value.
func (r *Ref) Go() (any, error) {
	if r.IsNil() {
		return nil, nil
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	return s.ToGoValue(-1)
}

// Int returns the referenced value as an int64, converting integral
// floats. Anything else is a ConversionError.
func (r *Ref) Int() (int64, error) {
	var n int64
	err := r.assign(&n)
	return n, err
}

// Float returns the referenced value as a float64.
func (r *Ref) Float() (float64, error) {
	var f float64
	err := r.assign(&f)
	return f, err
}

// Bool returns the referenced boolean. The conversion is strict: only
// true and false qualify; use Truthy for the truth rule.
func (r *Ref) Bool() (bool, error) {
	var b bool
	err := r.assign(&b)
	return b, err
}

// Str returns the referenced string. No coercion is applied.
func (r *Ref) Str() (string, error) {
	var str string
	err := r.assign(&str)
	return str, err
}

// Truthy applies the runtime truth rule: everything except nil and false
// is true. Empty Refs are false.
func (r *Ref) Truthy() bool {
	if r.IsNil() {
		return false
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	return s.ToBoolean(-1)
}

func (r *Ref) assign(dst any) error {
	if r.isEmpty() {
		return &vm.ConversionError{Op: "assign", From: "empty reference", Target: reflect.TypeOf(dst).Elem().String()}
	}
	s := r.s
	top := s.Top()
	defer s.SetTop(top)
	s.PushRef(r.slot)
	return s.AssignTo(-1, dst)
}
