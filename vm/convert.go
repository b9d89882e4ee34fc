package vm

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Native conversion: Go values in and out of the runtime
// ---------------------------------------------------------------------------

// maxConvertDepth bounds recursive conversion of nested Go structures.
const maxConvertDepth = 64

// PushGoValue converts a native Go value to a runtime value and pushes it.
// Scalars map to their runtime counterparts, maps and slices become
// tables, functions with the GoFunc signature become callables, and any
// other value is wrapped as a full userdata.
func (s *State) PushGoValue(v any) error {
	val, err := s.toValue(v, 0)
	if err != nil {
		return err
	}
	s.push(val)
	return nil
}

func (s *State) toValue(v any, depth int) (Value, error) {
	if depth > maxConvertDepth {
		return Nil, &ConversionError{Op: "tovalue", From: "nested Go value", Target: "runtime value (too deep)"}
	}
	switch x := v.(type) {
	case nil:
		return Nil, nil
	case Value:
		return x, nil
	case bool:
		return FromBool(x), nil
	case int:
		return FromSmallInt(int64(x)), nil
	case int8:
		return FromSmallInt(int64(x)), nil
	case int16:
		return FromSmallInt(int64(x)), nil
	case int32:
		return FromSmallInt(int64(x)), nil
	case int64:
		return FromSmallInt(x), nil
	case uint:
		return FromSmallInt(int64(x)), nil
	case uint8:
		return FromSmallInt(int64(x)), nil
	case uint16:
		return FromSmallInt(int64(x)), nil
	case uint32:
		return FromSmallInt(int64(x)), nil
	case uint64:
		return FromSmallInt(int64(x)), nil
	case float32:
		return FromFloat64(float64(x)), nil
	case float64:
		return FromFloat64(x), nil
	case string:
		return s.h.internString(x), nil
	case GoFunc:
		return s.h.newFunction("", x), nil
	case func(*State) (int, error):
		return s.h.newFunction("", x), nil
	case []any:
		t := s.h.newTable()
		tbl := s.h.table(t)
		for i, elem := range x {
			ev, err := s.toValue(elem, depth+1)
			if err != nil {
				return Nil, err
			}
			tbl.Set(FromSmallInt(int64(i)+1), ev)
		}
		return t, nil
	case map[string]any:
		t := s.h.newTable()
		tbl := s.h.table(t)
		for k, elem := range x {
			ev, err := s.toValue(elem, depth+1)
			if err != nil {
				return Nil, err
			}
			tbl.Set(s.h.internString(k), ev)
		}
		return t, nil
	case map[any]any:
		t := s.h.newTable()
		tbl := s.h.table(t)
		for k, elem := range x {
			kv, err := s.toValue(k, depth+1)
			if err != nil {
				return Nil, err
			}
			nk, err := s.normalizeKey("tovalue", kv)
			if err != nil {
				return Nil, err
			}
			ev, err := s.toValue(elem, depth+1)
			if err != nil {
				return Nil, err
			}
			tbl.Set(nk, ev)
		}
		return t, nil
	default:
		return s.reflectToValue(reflect.ValueOf(v), depth)
	}
}

// reflectToValue handles maps and slices of concrete element types (a
// TOML decode yields []map[string]any, for instance). Anything else
// becomes a full userdata.
func (s *State) reflectToValue(rv reflect.Value, depth int) (Value, error) {
	switch rv.Kind() {
	case reflect.Map:
		t := s.h.newTable()
		tbl := s.h.table(t)
		iter := rv.MapRange()
		for iter.Next() {
			kv, err := s.toValue(iter.Key().Interface(), depth+1)
			if err != nil {
				return Nil, err
			}
			nk, err := s.normalizeKey("tovalue", kv)
			if err != nil {
				return Nil, err
			}
			ev, err := s.toValue(iter.Value().Interface(), depth+1)
			if err != nil {
				return Nil, err
			}
			tbl.Set(nk, ev)
		}
		return t, nil
	case reflect.Slice, reflect.Array:
		t := s.h.newTable()
		tbl := s.h.table(t)
		for i := 0; i < rv.Len(); i++ {
			ev, err := s.toValue(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return Nil, err
			}
			tbl.Set(FromSmallInt(int64(i)+1), ev)
		}
		return t, nil
	default:
		// Struct pointers and other opaque host values stay opaque.
		return s.h.newUserdata(rv.Interface()), nil
	}
}

// ToGoValue returns the value at the given index as a native Go value:
// nil, bool, int64, float64, string, map[any]any for tables (shared and
// cyclic tables resolve to shared maps), the wrapped value for userdata,
// and the heap object itself for functions and threads.
func (s *State) ToGoValue(idx int) (any, error) {
	return s.toGo(s.valueAt(idx), make(map[uint32]map[any]any))
}

func (s *State) toGo(v Value, seen map[uint32]map[any]any) (any, error) {
	switch {
	case v == Nil:
		return nil, nil
	case v == True:
		return true, nil
	case v == False:
		return false, nil
	case v.IsSmallInt():
		return v.SmallInt(), nil
	case v.IsFloat():
		return v.Float64(), nil
	case v.IsString():
		return s.h.stringContent(v), nil
	case v.IsTable():
		id := v.heapID()
		if m, ok := seen[id]; ok {
			return m, nil
		}
		m := make(map[any]any)
		seen[id] = m
		tbl := s.h.table(v)
		for _, e := range tbl.entries {
			if e.dead {
				continue
			}
			k, err := s.toGo(e.key, seen)
			if err != nil {
				return nil, err
			}
			// Table and userdata keys can convert to maps and slices,
			// which Go maps cannot hash.
			if k != nil && !reflect.TypeOf(k).Comparable() {
				return nil, &ConversionError{
					Op:     "togo",
					From:   "table with " + e.key.Type().String() + " key",
					Target: "map[any]any",
				}
			}
			val, err := s.toGo(e.value, seen)
			if err != nil {
				return nil, err
			}
			m[k] = val
		}
		return m, nil
	case v.IsUserdata():
		u := s.h.userdata(v)
		if u.light {
			return u.ptr, nil
		}
		return u.Data, nil
	case v.IsFunction():
		return s.h.function(v), nil
	case v.IsThread():
		return s.h.thread(v), nil
	default:
		return nil, &ConversionError{Op: "togo", From: v.Type().String(), Target: "Go value"}
	}
}

// AssignTo converts the value at the given index into *dst, where dst is
// a non-nil pointer. Numbers convert across integer and float kinds when
// the value is representable; everything else requires an assignable
// dynamic type. A failure is a ConversionError and leaves *dst untouched.
func (s *State) AssignTo(idx int, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &ConversionError{Op: "assign", From: "runtime value", Target: "non-pointer destination"}
	}
	target := rv.Elem()
	v := s.valueAt(idx)

	fail := func() error {
		return &ConversionError{Op: "assign", From: v.Type().String(), Target: target.Type().String()}
	}

	switch target.Kind() {
	case reflect.Bool:
		if !v.IsBool() {
			return fail()
		}
		target.SetBool(v == True)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt64(v)
		if !ok || target.OverflowInt(n) {
			return fail()
		}
		target.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := toInt64(v)
		if !ok || n < 0 || target.OverflowUint(uint64(n)) {
			return fail()
		}
		target.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		if !v.IsNumber() {
			return fail()
		}
		target.SetFloat(v.Number())
		return nil
	case reflect.String:
		if !v.IsString() {
			return fail()
		}
		target.SetString(s.h.stringContent(v))
		return nil
	default:
		g, err := s.toGo(v, make(map[uint32]map[any]any))
		if err != nil {
			return err
		}
		if g == nil {
			target.SetZero()
			return nil
		}
		gv := reflect.ValueOf(g)
		if !gv.Type().AssignableTo(target.Type()) {
			return fail()
		}
		target.Set(gv)
		return nil
	}
}

// DescribeValue renders a short human-readable description of the value
// at the given index, for logs and diagnostics.
func (s *State) DescribeValue(idx int) string {
	v := s.valueAt(idx)
	switch {
	case v == Nil:
		return "nil"
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v.IsSmallInt():
		return fmt.Sprintf("%d", v.SmallInt())
	case v.IsFloat():
		return fmt.Sprintf("%g", v.Float64())
	case v.IsString():
		return fmt.Sprintf("%q", s.h.stringContent(v))
	default:
		return fmt.Sprintf("%s: 0x%x", v.Type(), v.heapID())
	}
}
