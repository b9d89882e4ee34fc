// Package snapshot serializes Lunar value graphs to a canonical CBOR wire
// format and persists named snapshots in a SQLite-backed store.
//
// Snapshots cover the data-shaped part of the heap: nil, booleans,
// numbers, strings, and tables (shared and cyclic tables are encoded once
// and restored with their sharing intact, metatables included). Functions,
// userdata, and threads hold native state and cannot be serialized.
package snapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/lunarlang/lunar/bind"
	"github.com/lunarlang/lunar/vm"
)

// cborEncMode uses canonical options for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// imageVersion is bumped on incompatible wire changes.
const imageVersion = 1

// Value kinds on the wire.
const (
	kindNil uint8 = iota
	kindFalse
	kindTrue
	kindInt
	kindFloat
	kindString
	kindTable
)

// wireValue is one serialized value. Tables are referenced by their index
// in the image's table list, so sharing and cycles survive a round trip.
type wireValue struct {
	Kind uint8   `cbor:"k"`
	Int  int64   `cbor:"i,omitempty"`
	Num  float64 `cbor:"n,omitempty"`
	Str  string  `cbor:"s,omitempty"`
	Tab  int64   `cbor:"t,omitempty"`
}

type wireEntry struct {
	Key   wireValue `cbor:"k"`
	Value wireValue `cbor:"v"`
}

type wireTable struct {
	Entries []wireEntry `cbor:"e,omitempty"`
	Meta    int64       `cbor:"m"` // table index, or -1 for none
}

type image struct {
	Version int         `cbor:"v"`
	Root    wireValue   `cbor:"root"`
	Tables  []wireTable `cbor:"tables,omitempty"`
}

// encoder tracks table identity during a walk so each table is emitted
// exactly once.
type encoder struct {
	s      *vm.State
	tables []wireTable
	ids    map[uintptr]int64
}

// Marshal serializes the value graph rooted at the pinned root to CBOR
// bytes. Functions, userdata, and threads anywhere in the graph are an
// error.
func Marshal(root *bind.Ref) ([]byte, error) {
	s := root.State()
	if s == nil {
		return cborEncMode.Marshal(&image{Version: imageVersion, Root: wireValue{Kind: kindNil}})
	}
	enc := &encoder{s: s, ids: make(map[uintptr]int64)}

	top := s.Top()
	defer s.SetTop(top)
	root.Push(s)
	rv, err := enc.encode(s.Top())
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(&image{Version: imageVersion, Root: rv, Tables: enc.tables})
}

// encode serializes the value at an absolute stack index.
func (e *encoder) encode(idx int) (wireValue, error) {
	s := e.s
	switch s.Type(idx) {
	case vm.TypeNil:
		return wireValue{Kind: kindNil}, nil
	case vm.TypeBoolean:
		if s.ToBoolean(idx) {
			return wireValue{Kind: kindTrue}, nil
		}
		return wireValue{Kind: kindFalse}, nil
	case vm.TypeNumber:
		if n, ok := s.ToInteger(idx); ok {
			return wireValue{Kind: kindInt, Int: n}, nil
		}
		f, _ := s.ToNumber(idx)
		return wireValue{Kind: kindFloat, Num: f}, nil
	case vm.TypeString:
		str, _ := s.ToString(idx)
		return wireValue{Kind: kindString, Str: str}, nil
	case vm.TypeTable:
		id, err := e.encodeTable(idx)
		if err != nil {
			return wireValue{}, err
		}
		return wireValue{Kind: kindTable, Tab: id}, nil
	default:
		return wireValue{}, fmt.Errorf("snapshot: cannot serialize a %s value", s.Type(idx))
	}
}

// encodeTable serializes the table at an absolute stack index, returning
// its image table ID. A table already seen returns its existing ID, which
// is also how cycles terminate.
func (e *encoder) encodeTable(idx int) (int64, error) {
	s := e.s
	ptr := s.ToPointer(idx)
	if id, ok := e.ids[ptr]; ok {
		return id, nil
	}
	id := int64(len(e.tables))
	e.ids[ptr] = id
	e.tables = append(e.tables, wireTable{Meta: -1})

	var entries []wireEntry
	s.PushNil()
	for {
		ok, err := s.Next(idx)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		// Stack: ..., key, value
		kv, err := e.encode(s.Top() - 1)
		if err != nil {
			return 0, err
		}
		vv, err := e.encode(s.Top())
		if err != nil {
			return 0, err
		}
		entries = append(entries, wireEntry{Key: kv, Value: vv})
		s.Pop(1) // drop value, keep key as the iteration anchor
	}

	meta := int64(-1)
	if s.Metatable(idx) {
		mid, err := e.encodeTable(s.Top())
		if err != nil {
			return 0, err
		}
		s.Pop(1)
		meta = mid
	}

	e.tables[id].Entries = entries
	e.tables[id].Meta = meta
	return id, nil
}

// Unmarshal deserializes CBOR bytes produced by Marshal into a fresh
// value graph in the given State and pins the root.
func Unmarshal(s *vm.State, data []byte) (*bind.Ref, error) {
	var img image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal image: %w", err)
	}
	if img.Version != imageVersion {
		return nil, fmt.Errorf("snapshot: unsupported image version %d", img.Version)
	}

	top := s.Top()
	defer s.SetTop(top)

	// Materialize every table first so entries and metatables can refer
	// to any of them. Table i lives at stack index base+i while building.
	base := s.Top() + 1
	for range img.Tables {
		s.NewTable()
	}
	check := func(v wireValue) error {
		if v.Kind == kindTable && (v.Tab < 0 || v.Tab >= int64(len(img.Tables))) {
			return fmt.Errorf("snapshot: table reference %d out of range", v.Tab)
		}
		return nil
	}
	for i, wt := range img.Tables {
		for _, entry := range wt.Entries {
			if err := check(entry.Key); err != nil {
				return nil, err
			}
			if err := check(entry.Value); err != nil {
				return nil, err
			}
			pushWire(s, entry.Key, base)
			pushWire(s, entry.Value, base)
			if err := s.RawSet(base + i); err != nil {
				return nil, err
			}
		}
		if wt.Meta >= 0 {
			if wt.Meta >= int64(len(img.Tables)) {
				return nil, fmt.Errorf("snapshot: metatable reference %d out of range", wt.Meta)
			}
			s.PushValue(base + int(wt.Meta))
			if err := s.SetMetatable(base + i); err != nil {
				return nil, err
			}
		}
	}

	if err := check(img.Root); err != nil {
		return nil, err
	}
	pushWire(s, img.Root, base)
	return bind.FromStackTop(s), nil
}

// pushWire pushes the runtime value for a wire value; table references
// resolve against the tables materialized at stack index base.
func pushWire(s *vm.State, v wireValue, base int) {
	switch v.Kind {
	case kindFalse:
		s.PushBoolean(false)
	case kindTrue:
		s.PushBoolean(true)
	case kindInt:
		s.PushInteger(v.Int)
	case kindFloat:
		s.PushNumber(v.Num)
	case kindString:
		s.PushString(v.Str)
	case kindTable:
		s.PushValue(base + int(v.Tab))
	default:
		s.PushNil()
	}
}
