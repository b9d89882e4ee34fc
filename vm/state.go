package vm

import (
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// State: one interpreter instance
// ---------------------------------------------------------------------------

// maxStackDepth bounds the value stack. The binding layer pushes a handful
// of values per operation, so hitting this indicates a runaway metamethod.
const maxStackDepth = 1 << 20

// State is a single Lunar runtime instance: a value stack, a globals
// table, the slot registry, and the heap registries.
//
// A State is single-threaded by contract. Every operation assumes
// exclusive access for the duration of the call; hosts that share a State
// across goroutines must serialize access externally. No method suspends
// or blocks.
type State struct {
	stack   []Value
	globals Value
	reg     registry
	h       *heap
	log     commonlog.Logger
	closed  bool
}

// NewState creates a fresh State with an empty globals table.
func NewState() *State {
	s := &State{
		h:   newHeap(),
		log: commonlog.GetLogger("lunar.vm"),
	}
	s.globals = s.h.newTable()
	s.log.Debug("state created")
	return s
}

// Close tears the State down. Every outstanding registry slot and every
// Value obtained from this State is invalidated; using one afterwards is
// undefined.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.stack = nil
	s.reg = registry{}
	s.h = nil
	s.globals = Nil
	s.log.Debug("state closed")
}

// ---------------------------------------------------------------------------
// Stack manipulation
// ---------------------------------------------------------------------------

// Top returns the number of values on the stack.
func (s *State) Top() int {
	return len(s.stack)
}

// AbsIndex converts an acceptable index into an equivalent absolute index.
func (s *State) AbsIndex(idx int) int {
	if idx > 0 || idx == 0 {
		return idx
	}
	return len(s.stack) + idx + 1
}

// absOffset resolves a stack index (1-based from the bottom, negative from
// the top) to a 0-based offset, or -1 when the index is not valid.
func (s *State) absOffset(idx int) int {
	if idx > 0 {
		if idx > len(s.stack) {
			return -1
		}
		return idx - 1
	}
	if idx < 0 {
		if -idx > len(s.stack) {
			return -1
		}
		return len(s.stack) + idx
	}
	return -1
}

// valueAt returns the value at the given index, or Nil for an invalid one.
func (s *State) valueAt(idx int) Value {
	off := s.absOffset(idx)
	if off < 0 {
		return Nil
	}
	return s.stack[off]
}

// SetTop truncates or extends (with nils) the stack to n values.
func (s *State) SetTop(n int) {
	if n < 0 {
		n = len(s.stack) + n + 1
	}
	for len(s.stack) < n {
		s.stack = append(s.stack, Nil)
	}
	s.stack = s.stack[:n]
}

// Pop removes the top n values.
func (s *State) Pop(n int) {
	s.SetTop(len(s.stack) - n)
}

// PushValue pushes a copy of the value at the given index.
func (s *State) PushValue(idx int) {
	s.push(s.valueAt(idx))
}

// Insert moves the top value into the given position, shifting up the
// values above that position.
func (s *State) Insert(idx int) {
	off := s.absOffset(idx)
	if off < 0 {
		return
	}
	top := s.stack[len(s.stack)-1]
	copy(s.stack[off+1:], s.stack[off:len(s.stack)-1])
	s.stack[off] = top
}

func (s *State) push(v Value) {
	if len(s.stack) >= maxStackDepth {
		panic("vm: value stack overflow")
	}
	s.stack = append(s.stack, v)
}

// pop removes and returns the top value.
func (s *State) pop() Value {
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

// ---------------------------------------------------------------------------
// Pushing values
// ---------------------------------------------------------------------------

// PushNil pushes the nil value.
func (s *State) PushNil() {
	s.push(Nil)
}

// PushBoolean pushes a boolean.
func (s *State) PushBoolean(b bool) {
	s.push(FromBool(b))
}

// PushInteger pushes an integer number.
func (s *State) PushInteger(n int64) {
	s.push(FromSmallInt(n))
}

// PushNumber pushes a float number.
func (s *State) PushNumber(f float64) {
	s.push(FromFloat64(f))
}

// PushString pushes a (interned) string.
func (s *State) PushString(str string) {
	s.push(s.h.internString(str))
}

// NewTable creates a fresh empty table and pushes it.
func (s *State) NewTable() {
	s.push(s.h.newTable())
}

// PushGoFunction wraps a native Go function and pushes it.
func (s *State) PushGoFunction(name string, fn GoFunc) {
	s.push(s.h.newFunction(name, fn))
}

// NewUserdata allocates a full userdata carrying the given native value
// and pushes it.
func (s *State) NewUserdata(data any) {
	s.push(s.h.newUserdata(data))
}

// PushLightUserdata wraps a bare native pointer and pushes it.
func (s *State) PushLightUserdata(ptr uintptr) {
	s.push(s.h.newLightUserdata(ptr))
}

// NewThread allocates a thread object and pushes it.
func (s *State) NewThread(name string) {
	s.push(s.h.newThread(name))
}

// ---------------------------------------------------------------------------
// Reading values
// ---------------------------------------------------------------------------

// Type returns the type of the value at the given index, or TypeNone for
// an invalid index.
func (s *State) Type(idx int) Type {
	if s.absOffset(idx) < 0 {
		return TypeNone
	}
	return s.valueAt(idx).Type()
}

// IsNil returns true if the value at the given index is nil.
func (s *State) IsNil(idx int) bool {
	return s.valueAt(idx) == Nil
}

// ToBoolean converts the value at the given index using the truth rule:
// only nil and false are false.
func (s *State) ToBoolean(idx int) bool {
	return s.valueAt(idx).Truthy()
}

// ToInteger returns the value at the given index as an int64. Floats with
// an integral value convert; everything else reports false.
func (s *State) ToInteger(idx int) (int64, bool) {
	v := s.valueAt(idx)
	switch {
	case v.IsSmallInt():
		return v.SmallInt(), true
	case v.IsFloat():
		f := v.Float64()
		n := int64(f)
		if float64(n) == f {
			return n, true
		}
	}
	return 0, false
}

// ToNumber returns the value at the given index as a float64.
func (s *State) ToNumber(idx int) (float64, bool) {
	v := s.valueAt(idx)
	if !v.IsNumber() {
		return 0, false
	}
	return v.Number(), true
}

// ToString returns the string at the given index. No coercion is applied.
func (s *State) ToString(idx int) (string, bool) {
	v := s.valueAt(idx)
	if !v.IsString() {
		return "", false
	}
	return s.h.stringContent(v), true
}

// ToUserdata returns the userdata at the given index, or nil.
func (s *State) ToUserdata(idx int) *Userdata {
	v := s.valueAt(idx)
	if !v.IsUserdata() {
		return nil
	}
	return s.h.userdata(v)
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// PushGlobals pushes the globals table.
func (s *State) PushGlobals() {
	s.push(s.globals)
}

// Global pushes the value of a global variable and returns its type.
func (s *State) Global(name string) Type {
	t := s.h.table(s.globals)
	v := t.Get(s.h.internString(name))
	s.push(v)
	return v.Type()
}

// SetGlobal pops the top value and stores it as a global variable.
func (s *State) SetGlobal(name string) {
	v := s.pop()
	s.h.table(s.globals).Set(s.h.internString(name), v)
}

// ---------------------------------------------------------------------------
// Metatables
// ---------------------------------------------------------------------------

// Metatable pushes the metatable of the value at the given index and
// returns true, or pushes nothing and returns false when it has none.
func (s *State) Metatable(idx int) bool {
	v := s.valueAt(idx)
	var meta Value
	switch {
	case v.IsTable():
		meta = s.h.table(v).meta
	case v.IsUserdata():
		meta = s.h.userdata(v).meta
	default:
		return false
	}
	if meta == Nil {
		return false
	}
	s.push(meta)
	return true
}

// SetMetatable pops a table (or nil) from the top and sets it as the
// metatable of the value at the given index.
func (s *State) SetMetatable(idx int) error {
	v := s.valueAt(idx)
	meta := s.pop()
	if meta != Nil && !meta.IsTable() {
		return &TypeError{Op: "setmetatable", Want: TypeTable, Got: meta.Type()}
	}
	switch {
	case v.IsTable():
		s.h.table(v).meta = meta
	case v.IsUserdata():
		u := s.h.userdata(v)
		if u.light {
			return faultf("setmetatable", "light userdata cannot carry a metatable")
		}
		u.meta = meta
	default:
		return &TypeError{Op: "setmetatable", Want: TypeTable, Got: v.Type()}
	}
	return nil
}

// metatableOf returns the metatable value for v, or Nil.
func (s *State) metatableOf(v Value) Value {
	switch {
	case v.IsTable():
		return s.h.table(v).meta
	case v.IsUserdata():
		return s.h.userdata(v).meta
	default:
		return Nil
	}
}

// StringContent returns the content of a string Value. Exposed for
// packages layering on the substrate (snapshot encoding, binding).
func (s *State) StringContent(v Value) string {
	return s.h.stringContent(v)
}

// ToPointer returns an opaque identity for the heap value at the given
// index: two indices yield the same non-zero identity iff they hold the
// same heap object. Scalars yield 0.
func (s *State) ToPointer(idx int) uintptr {
	v := s.valueAt(idx)
	switch {
	case v.IsString(), v.IsTable(), v.IsFunction(), v.IsUserdata(), v.IsThread():
		return uintptr(uint64(v))
	default:
		return 0
	}
}
