package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Non-raw operations: metamethod dispatch
// ---------------------------------------------------------------------------

// Metamethod event keys.
const (
	metaIndex    = "__index"
	metaNewIndex = "__newindex"
	metaLen      = "__len"
	metaEq       = "__eq"
	metaLt       = "__lt"
	metaLe       = "__le"
)

// maxMetaDepth bounds __index/__newindex chains.
const maxMetaDepth = 100

// getMeta returns the metamethod value for an event, or Nil.
func (s *State) getMeta(v Value, event string) Value {
	meta := s.metatableOf(v)
	if meta == Nil {
		return Nil
	}
	return s.h.table(meta).Get(s.h.internString(event))
}

// normalizeKey folds integral floats to small integers so 1 and 1.0 index
// the same field. Writing with a nil or NaN key is a fault.
func (s *State) normalizeKey(op string, key Value) (Value, error) {
	if key == Nil {
		return Nil, faultf(op, "table index is nil")
	}
	if key.IsFloat() {
		f := key.Float64()
		if f != f {
			return Nil, faultf(op, "table index is NaN")
		}
		if n := int64(f); float64(n) == f {
			return FromSmallInt(n), nil
		}
	}
	return key, nil
}

// readKey is normalizeKey for read paths, where nil and NaN keys simply
// miss instead of faulting. The second result is false on a guaranteed
// miss.
func (s *State) readKey(key Value) (Value, bool) {
	if key == Nil {
		return Nil, false
	}
	if key.IsFloat() {
		f := key.Float64()
		if f != f {
			return Nil, false
		}
		if n := int64(f); float64(n) == f {
			return FromSmallInt(n), true
		}
	}
	return key, true
}

// ---------------------------------------------------------------------------
// Raw table access
// ---------------------------------------------------------------------------

// RawGet pops a key from the stack and pushes t[key] for the table at the
// given index, bypassing metamethods. It cannot invoke user code.
func (s *State) RawGet(idx int) (Type, error) {
	t := s.valueAt(idx)
	key := s.pop()
	if !t.IsTable() {
		return TypeNone, &TypeError{Op: "rawget", Want: TypeTable, Got: t.Type()}
	}
	k, ok := s.readKey(key)
	if !ok {
		s.push(Nil)
		return TypeNil, nil
	}
	v := s.h.table(t).Get(k)
	s.push(v)
	return v.Type(), nil
}

// RawSet pops a value and a key from the stack and performs t[key] = value
// for the table at the given index, bypassing metamethods.
func (s *State) RawSet(idx int) error {
	t := s.valueAt(idx)
	value := s.pop()
	key := s.pop()
	if !t.IsTable() {
		return &TypeError{Op: "rawset", Want: TypeTable, Got: t.Type()}
	}
	k, err := s.normalizeKey("rawset", key)
	if err != nil {
		return err
	}
	s.h.table(t).Set(k, value)
	return nil
}

// RawLen returns the raw length of the table or string at the given index,
// bypassing the __len metamethod.
func (s *State) RawLen(idx int) (int64, error) {
	v := s.valueAt(idx)
	switch {
	case v.IsTable():
		return s.h.table(v).Border(), nil
	case v.IsString():
		return int64(len(s.h.stringContent(v))), nil
	default:
		return 0, &TypeError{Op: "rawlen", Want: TypeTable, Got: v.Type()}
	}
}

// RawEqual reports raw identity of the values at the two indices: no
// metamethod is consulted and no user code can run.
func (s *State) RawEqual(idx1, idx2 int) bool {
	a := s.valueAt(idx1)
	b := s.valueAt(idx2)
	return rawEqual(a, b)
}

func rawEqual(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return numbersEqual(a, b)
	}
	return a == b
}

// ---------------------------------------------------------------------------
// Metamethod-aware table access
// ---------------------------------------------------------------------------

// GetTable pops a key from the stack, pushes t[key] for the value at the
// given index, and returns the pushed type. The access respects the
// __index metamethod chain and can therefore run arbitrary user code and
// fail. On failure the key is consumed and nothing is pushed.
func (s *State) GetTable(idx int) (Type, error) {
	t := s.valueAt(idx)
	key := s.pop()
	v, err := s.tableGet(t, key, 0)
	if err != nil {
		return TypeNone, err
	}
	s.push(v)
	return v.Type(), nil
}

func (s *State) tableGet(t, key Value, depth int) (Value, error) {
	if depth > maxMetaDepth {
		return Nil, faultf("index", "'__index' chain too long; possible loop")
	}
	if t.IsTable() {
		if k, ok := s.readKey(key); ok {
			if v := s.h.table(t).Get(k); v != Nil {
				return v, nil
			}
		}
		mm := s.getMeta(t, metaIndex)
		if mm == Nil {
			return Nil, nil
		}
		if mm.IsFunction() {
			return s.call1(mm, t, key)
		}
		return s.tableGet(mm, key, depth+1)
	}
	mm := s.getMeta(t, metaIndex)
	if mm == Nil {
		return Nil, faultf("index", "attempt to index a %s value", t.Type())
	}
	if mm.IsFunction() {
		return s.call1(mm, t, key)
	}
	return s.tableGet(mm, key, depth+1)
}

// SetTable pops a value and a key from the stack and performs
// t[key] = value for the value at the given index, respecting the
// __newindex metamethod chain.
func (s *State) SetTable(idx int) error {
	t := s.valueAt(idx)
	value := s.pop()
	key := s.pop()
	return s.tableSet(t, key, value, 0)
}

func (s *State) tableSet(t, key, value Value, depth int) error {
	if depth > maxMetaDepth {
		return faultf("newindex", "'__newindex' chain too long; possible loop")
	}
	if t.IsTable() {
		tbl := s.h.table(t)
		if k, ok := s.readKey(key); ok && tbl.Get(k) != Nil {
			// Existing field: assign directly, no metamethod.
			tbl.Set(k, value)
			return nil
		}
		mm := s.getMeta(t, metaNewIndex)
		if mm == Nil {
			k, err := s.normalizeKey("newindex", key)
			if err != nil {
				return err
			}
			tbl.Set(k, value)
			return nil
		}
		if mm.IsFunction() {
			_, err := s.callN(mm, 0, t, key, value)
			return err
		}
		return s.tableSet(mm, key, value, depth+1)
	}
	mm := s.getMeta(t, metaNewIndex)
	if mm == Nil {
		return faultf("newindex", "attempt to index a %s value", t.Type())
	}
	if mm.IsFunction() {
		_, err := s.callN(mm, 0, t, key, value)
		return err
	}
	return s.tableSet(mm, key, value, depth+1)
}

// Length returns the length of the value at the given index, respecting
// the __len metamethod.
func (s *State) Length(idx int) (int64, error) {
	v := s.valueAt(idx)
	if mm := s.getMeta(v, metaLen); mm != Nil {
		if !mm.IsFunction() {
			return 0, faultf("len", "'__len' metamethod is not callable")
		}
		res, err := s.call1(mm, v)
		if err != nil {
			return 0, err
		}
		n, ok := toInt64(res)
		if !ok {
			return 0, faultf("len", "'__len' metamethod returned a %s", res.Type())
		}
		return n, nil
	}
	switch {
	case v.IsTable():
		return s.h.table(v).Border(), nil
	case v.IsString():
		return int64(len(s.h.stringContent(v))), nil
	default:
		return 0, faultf("len", "attempt to get length of a %s value", v.Type())
	}
}

func toInt64(v Value) (int64, bool) {
	switch {
	case v.IsSmallInt():
		return v.SmallInt(), true
	case v.IsFloat():
		f := v.Float64()
		if n := int64(f); float64(n) == f {
			return n, true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Iteration protocol
// ---------------------------------------------------------------------------

// Next pops a key from the stack and pushes the next key/value pair of the
// table at the given index, returning true. A nil key starts a pass. When
// no entries remain it pushes nothing and returns false. The protocol is
// keyed off the raw identity of the popped key, so it survives table
// compaction; passing a key that was never in the table is a fault.
func (s *State) Next(idx int) (bool, error) {
	t := s.valueAt(idx)
	key := s.pop()
	if !t.IsTable() {
		return false, &TypeError{Op: "next", Want: TypeTable, Got: t.Type()}
	}
	k := Nil
	if key != Nil {
		var ok bool
		if k, ok = s.readKey(key); !ok {
			return false, faultf("next", "invalid key to table iteration")
		}
	}
	entry, ok, err := s.h.table(t).Next(k)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	s.push(entry.key)
	s.push(entry.value)
	return true, nil
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// Call invokes the function at -(nargs+1) with the top nargs values as
// arguments. Function and arguments are popped; up to nresults results are
// pushed (padded with nils). On failure everything is popped and nothing
// is pushed.
func (s *State) Call(nargs, nresults int) error {
	base := len(s.stack) - nargs - 1
	if base < 0 {
		return faultf("call", "not enough values on the stack")
	}
	fn := s.stack[base]
	if !fn.IsFunction() {
		s.log.Debugf("call fault: %s is not callable", s.DescribeValue(base+1))
		s.SetTop(base)
		return faultf("call", "attempt to call a %s value", fn.Type())
	}
	f := s.h.function(fn)
	nret, err := f.Fn(s)
	if err != nil {
		s.SetTop(base)
		return s.wrapCallError(f, err)
	}
	results := s.takeResults(base+1+nargs, nret, nresults)
	s.SetTop(base)
	for _, r := range results {
		s.push(r)
	}
	return nil
}

// callN invokes fn with the given arguments and returns up to nresults
// results, leaving the stack as it found it.
func (s *State) callN(fn Value, nresults int, args ...Value) ([]Value, error) {
	base := len(s.stack)
	s.push(fn)
	for _, a := range args {
		s.push(a)
	}
	err := s.Call(len(args), nresults)
	if err != nil {
		s.SetTop(base)
		return nil, err
	}
	results := make([]Value, nresults)
	for i := range results {
		results[i] = s.valueAt(base + 1 + i)
	}
	s.SetTop(base)
	return results, nil
}

// call1 invokes fn expecting a single result.
func (s *State) call1(fn Value, args ...Value) (Value, error) {
	results, err := s.callN(fn, 1, args...)
	if err != nil {
		return Nil, err
	}
	return results[0], nil
}

// takeResults collects the top nret values of a call frame starting at
// argBase, truncated or padded to want (or kept as-is when want < 0).
func (s *State) takeResults(argBase, nret, want int) []Value {
	if nret < 0 {
		nret = 0
	}
	if nret > len(s.stack)-argBase {
		nret = len(s.stack) - argBase
	}
	results := make([]Value, nret)
	copy(results, s.stack[len(s.stack)-nret:])
	if want >= 0 {
		for len(results) < want {
			results = append(results, Nil)
		}
		results = results[:want]
	}
	return results
}

// wrapCallError turns a native callable's error into a Fault unless it
// already is one of the runtime error kinds.
func (s *State) wrapCallError(f *Function, err error) error {
	switch err.(type) {
	case *Fault, *TypeError, *ConversionError:
		return err
	}
	name := f.Name
	if name == "" {
		name = "?"
	}
	return &Fault{Op: "call " + name, Msg: err.Error()}
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// CompareOp selects a relational operation for Compare.
type CompareOp int

// Relational operations.
const (
	OpEq CompareOp = iota // ==
	OpLt                  // <
	OpLe                  // <=
)

// Compare performs a relational comparison between the values at the two
// indices, respecting the __eq/__lt/__le metamethods, which may run
// arbitrary user code and fail. Ordering values of mismatched or
// unordered types without a metamethod is a fault, never an arbitrary
// total order.
func (s *State) Compare(op CompareOp, idx1, idx2 int) (bool, error) {
	a := s.valueAt(idx1)
	b := s.valueAt(idx2)
	switch op {
	case OpEq:
		return s.valuesEqual(a, b)
	case OpLt:
		return s.valuesOrdered(a, b, metaLt, "<")
	case OpLe:
		return s.valuesOrdered(a, b, metaLe, "<=")
	default:
		return false, faultf("compare", "unknown comparison operation")
	}
}

func (s *State) valuesEqual(a, b Value) (bool, error) {
	if rawEqual(a, b) {
		return true, nil
	}
	// __eq fires only when both operands are tables or both are userdata.
	if !(a.IsTable() && b.IsTable()) && !(a.IsUserdata() && b.IsUserdata()) {
		return false, nil
	}
	mm := s.getMeta(a, metaEq)
	if mm == Nil {
		mm = s.getMeta(b, metaEq)
	}
	if mm == Nil {
		return false, nil
	}
	if !mm.IsFunction() {
		return false, faultf("eq", "'__eq' metamethod is not callable")
	}
	res, err := s.call1(mm, a, b)
	if err != nil {
		return false, err
	}
	return res.Truthy(), nil
}

func (s *State) valuesOrdered(a, b Value, event, opName string) (bool, error) {
	if a.IsNumber() && b.IsNumber() {
		return compareNumbers(a, b, opName), nil
	}
	if a.IsString() && b.IsString() {
		c := strings.Compare(s.h.stringContent(a), s.h.stringContent(b))
		if opName == "<" {
			return c < 0, nil
		}
		return c <= 0, nil
	}
	mm := s.getMeta(a, event)
	if mm == Nil {
		mm = s.getMeta(b, event)
	}
	if mm == Nil {
		return false, faultf("compare", "attempt to compare %s with %s", a.Type(), b.Type())
	}
	if !mm.IsFunction() {
		return false, faultf("compare", "'%s' metamethod is not callable", event)
	}
	res, err := s.call1(mm, a, b)
	if err != nil {
		return false, err
	}
	return res.Truthy(), nil
}

func compareNumbers(a, b Value, opName string) bool {
	x, y := a.Number(), b.Number()
	if opName == "<" {
		return x < y
	}
	return x <= y
}
