package vm

// ---------------------------------------------------------------------------
// Slot registry: pins values against collection
// ---------------------------------------------------------------------------

// Registry slot sentinels.
const (
	// NoRef marks the absence of a slot. Releasing it is a no-op and
	// pushing it produces nil.
	NoRef = -2
	// RefNil is the slot returned when nil is registered. No storage is
	// allocated for it; it is a pure sentinel.
	RefNil = -1
)

// registry is the State-owned associative store mapping small integer
// slots to values. A slot pins its value against collection until
// released. Released slots are recycled through a free list, so register,
// lookup, and release are all O(1).
type registry struct {
	slots []Value
	free  []int
}

// Ref pops the top of the stack and registers it, returning the slot.
// Registering nil returns RefNil without allocating.
func (s *State) Ref() int {
	v := s.pop()
	if v == Nil {
		return RefNil
	}
	if n := len(s.reg.free); n > 0 {
		slot := s.reg.free[n-1]
		s.reg.free = s.reg.free[:n-1]
		s.reg.slots[slot] = v
		return slot
	}
	s.reg.slots = append(s.reg.slots, v)
	return len(s.reg.slots) - 1
}

// Unref releases a slot, making its value eligible for collection if no
// other slot or reachable structure holds it. Releasing NoRef, RefNil,
// or an already-released slot is a no-op.
func (s *State) Unref(slot int) {
	if slot < 0 || slot >= len(s.reg.slots) {
		return
	}
	// A live slot never holds Nil (Ref maps nil to RefNil), so Nil marks
	// a slot already on the free list.
	if s.reg.slots[slot] == Nil {
		return
	}
	s.reg.slots[slot] = Nil
	s.reg.free = append(s.reg.free, slot)
}

// PushRef pushes a copy of the value held by a slot. NoRef and RefNil
// both push nil.
func (s *State) PushRef(slot int) {
	s.push(s.refValue(slot))
}

// refValue resolves a slot to its value without touching the stack.
func (s *State) refValue(slot int) Value {
	if slot < 0 || slot >= len(s.reg.slots) {
		return Nil
	}
	return s.reg.slots[slot]
}

// RefCount returns the number of live registry slots, for diagnostics and
// leak tests.
func (s *State) RefCount() int {
	return len(s.reg.slots) - len(s.reg.free)
}
