package vm

// ---------------------------------------------------------------------------
// Heap registries: State-local storage for all heap-allocated values
// ---------------------------------------------------------------------------

// GoFunc is a native function callable from the runtime. Arguments are on
// the stack when the function is invoked; it returns the number of results
// it left on the top of the stack, or an error, which propagates to the
// operation that triggered the call as a runtime fault.
type GoFunc func(s *State) (int, error)

// Function is a heap object wrapping a native Go function.
type Function struct {
	Name string
	Fn   GoFunc
}

// Userdata is a heap object carrying an opaque native value. A full
// userdata owns an arbitrary Go value and may have a metatable; a light
// userdata wraps a bare native pointer and has neither.
type Userdata struct {
	Data  any
	meta  Value
	light bool
	ptr   uintptr
}

// IsLight returns true for a light userdata.
func (u *Userdata) IsLight() bool { return u.light }

// Pointer returns the wrapped native pointer of a light userdata, or 0.
func (u *Userdata) Pointer() uintptr { return u.ptr }

// Thread is a heap object reserved for cooperative execution contexts.
// Lunar does not schedule threads itself; the value exists so hosts can
// tag and pass execution contexts through tables and the registry.
type Thread struct {
	Name string
}

// heap holds every heap-allocated object owned by one State, keyed by the
// 32-bit IDs encoded in heap Values. IDs start at 1; 0 would be
// indistinguishable from an uninitialized payload.
type heap struct {
	strings  map[uint32]string
	intern   map[string]uint32
	stringID uint32

	tables  map[uint32]*Table
	tableID uint32

	funcs  map[uint32]*Function
	funcID uint32

	users  map[uint32]*Userdata
	userID uint32

	threads  map[uint32]*Thread
	threadID uint32
}

func newHeap() *heap {
	return &heap{
		strings: make(map[uint32]string),
		intern:  make(map[string]uint32),
		tables:  make(map[uint32]*Table),
		funcs:   make(map[uint32]*Function),
		users:   make(map[uint32]*Userdata),
		threads: make(map[uint32]*Thread),
	}
}

// internString returns the canonical Value for a string, registering it on
// first use. Interning makes raw equality on strings a single word compare
// and lets strings serve directly as table index keys.
func (h *heap) internString(s string) Value {
	if id, ok := h.intern[s]; ok {
		return fromHeapID(tagString, id)
	}
	h.stringID++
	id := h.stringID
	h.strings[id] = s
	h.intern[s] = id
	return fromHeapID(tagString, id)
}

func (h *heap) stringContent(v Value) string {
	return h.strings[v.heapID()]
}

func (h *heap) newTable() Value {
	h.tableID++
	id := h.tableID
	h.tables[id] = NewTable()
	return fromHeapID(tagTable, id)
}

func (h *heap) table(v Value) *Table {
	return h.tables[v.heapID()]
}

func (h *heap) newFunction(name string, fn GoFunc) Value {
	h.funcID++
	id := h.funcID
	h.funcs[id] = &Function{Name: name, Fn: fn}
	return fromHeapID(tagFunc, id)
}

func (h *heap) function(v Value) *Function {
	return h.funcs[v.heapID()]
}

func (h *heap) newUserdata(data any) Value {
	h.userID++
	id := h.userID
	h.users[id] = &Userdata{Data: data, meta: Nil}
	return fromHeapID(tagUser, id)
}

func (h *heap) newLightUserdata(ptr uintptr) Value {
	h.userID++
	id := h.userID
	h.users[id] = &Userdata{meta: Nil, light: true, ptr: ptr}
	return fromHeapID(tagUser, id)
}

func (h *heap) userdata(v Value) *Userdata {
	return h.users[v.heapID()]
}

func (h *heap) newThread(name string) Value {
	h.threadID++
	id := h.threadID
	h.threads[id] = &Thread{Name: name}
	return fromHeapID(tagThread, id)
}

func (h *heap) thread(v Value) *Thread {
	return h.threads[v.heapID()]
}
