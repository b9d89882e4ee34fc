package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestPushGoValueScalars(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.PushGoValue(nil); err != nil {
		t.Fatal(err)
	}
	if !s.IsNil(-1) {
		t.Error("nil should convert to nil")
	}

	if err := s.PushGoValue(true); err != nil {
		t.Fatal(err)
	}
	if !s.ToBoolean(-1) {
		t.Error("true lost in conversion")
	}

	if err := s.PushGoValue(42); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.ToInteger(-1); n != 42 {
		t.Errorf("int = %d", n)
	}

	if err := s.PushGoValue(2.5); err != nil {
		t.Fatal(err)
	}
	if f, _ := s.ToNumber(-1); f != 2.5 {
		t.Errorf("float = %g", f)
	}

	if err := s.PushGoValue("hi"); err != nil {
		t.Fatal(err)
	}
	if str, _ := s.ToString(-1); str != "hi" {
		t.Errorf("string = %q", str)
	}
}

func TestPushGoValueNestedMap(t *testing.T) {
	s := NewState()
	defer s.Close()

	err := s.PushGoValue(map[string]any{
		"name": "lunar",
		"tags": []any{"a", "b"},
		"deep": map[string]any{"n": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Type(-1) != TypeTable {
		t.Fatal("map should become a table")
	}

	s.PushString("tags")
	if _, err := s.RawGet(-2); err != nil {
		t.Fatal(err)
	}
	if n, err := s.RawLen(-1); err != nil || n != 2 {
		t.Fatalf("tags length = %d, %v", n, err)
	}
	s.Pop(1)

	s.PushString("deep")
	if _, err := s.RawGet(-2); err != nil {
		t.Fatal(err)
	}
	s.PushString("n")
	if _, err := s.RawGet(-2); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.ToInteger(-1); n != 1 {
		t.Fatalf("deep.n = %d", n)
	}
}

func TestPushGoValueTypedCollections(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.PushGoValue([]string{"x", "y", "z"}); err != nil {
		t.Fatal(err)
	}
	if n, err := s.RawLen(-1); err != nil || n != 3 {
		t.Fatalf("[]string length = %d, %v", n, err)
	}

	if err := s.PushGoValue(map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	s.PushString("a")
	if _, err := s.RawGet(-2); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.ToInteger(-1); n != 1 {
		t.Fatalf("map[string]int value = %d", n)
	}
}

func TestPushGoValueOpaque(t *testing.T) {
	s := NewState()
	defer s.Close()

	type host struct{ n int }
	if err := s.PushGoValue(&host{n: 7}); err != nil {
		t.Fatal(err)
	}
	if s.Type(-1) != TypeUserdata {
		t.Fatal("struct pointer should wrap as userdata")
	}
	u := s.ToUserdata(-1)
	if h, ok := u.Data.(*host); !ok || h.n != 7 {
		t.Fatal("userdata payload lost")
	}
}

func TestToGoValueTable(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.NewTable()
	s.PushString("k")
	s.PushInteger(1)
	if err := s.RawSet(1); err != nil {
		t.Fatal(err)
	}

	g, err := s.ToGoValue(1)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := g.(map[any]any)
	if !ok {
		t.Fatalf("table converted to %T", g)
	}
	if m["k"] != int64(1) {
		t.Fatalf("m[k] = %v", m["k"])
	}
}

func TestToGoValueSharedTables(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.NewTable() // outer
	s.NewTable() // shared
	s.PushString("a")
	s.PushValue(2)
	if err := s.RawSet(1); err != nil {
		t.Fatal(err)
	}
	s.PushString("b")
	s.PushValue(2)
	if err := s.RawSet(1); err != nil {
		t.Fatal(err)
	}

	g, err := s.ToGoValue(1)
	if err != nil {
		t.Fatal(err)
	}
	m := g.(map[any]any)
	ma, ok1 := m["a"].(map[any]any)
	mb, ok2 := m["b"].(map[any]any)
	if !ok1 || !ok2 {
		t.Fatal("nested tables lost")
	}
	ma["probe"] = true
	if mb["probe"] != true {
		t.Fatal("shared table should convert to one shared map")
	}
}

func TestToGoValueCycle(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.NewTable()
	s.PushString("self")
	s.PushValue(1)
	if err := s.RawSet(1); err != nil {
		t.Fatal(err)
	}

	g, err := s.ToGoValue(1)
	if err != nil {
		t.Fatal(err)
	}
	m := g.(map[any]any)
	inner, ok := m["self"].(map[any]any)
	if !ok {
		t.Fatal("cycle lost")
	}
	if inner["self"] == nil {
		t.Fatal("cycle should resolve to the shared map")
	}
}

func TestAssignToNumericConversions(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushInteger(5)
	var f float64
	if err := s.AssignTo(-1, &f); err != nil || f != 5 {
		t.Fatalf("int->float64: %g, %v", f, err)
	}

	s.PushNumber(7.0)
	var n int
	if err := s.AssignTo(-1, &n); err != nil || n != 7 {
		t.Fatalf("integral float->int: %d, %v", n, err)
	}

	s.PushNumber(7.5)
	var bad int
	err := s.AssignTo(-1, &bad)
	var conv *ConversionError
	if !errors.As(err, &conv) {
		t.Fatalf("fractional float->int should fail with ConversionError, got %v", err)
	}
	if bad != 0 {
		t.Fatal("failed assignment must leave destination untouched")
	}
}

func TestAssignToTypeMismatch(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushString("nope")
	var n int
	if err := s.AssignTo(-1, &n); err == nil {
		t.Fatal("string->int should fail")
	}

	var str string
	if err := s.AssignTo(-1, &str); err != nil || str != "nope" {
		t.Fatalf("string->string: %q, %v", str, err)
	}
}

func TestToGoValueTableKeyedTable(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.NewTable() // outer
	s.NewTable() // inner, used as key
	s.PushInteger(1)
	if err := s.RawSet(1); err != nil {
		t.Fatal(err)
	}

	_, err := s.ToGoValue(1)
	if err == nil {
		t.Fatal("table-keyed table must not convert to a Go map")
	}
	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T (%v)", err, err)
	}

	// A function key converts to a comparable *Function, so it stays fine.
	s.NewTable()
	s.PushGoFunction("k", func(s *State) (int, error) { return 0, nil })
	s.PushInteger(2)
	if err := s.RawSet(2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ToGoValue(2); err != nil {
		t.Fatalf("function-keyed table: %v", err)
	}
}

func TestAssignToTableKeyedTable(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.NewTable()
	s.NewTable()
	s.PushInteger(1)
	if err := s.RawSet(1); err != nil {
		t.Fatal(err)
	}

	var m map[any]any
	if err := s.AssignTo(1, &m); err == nil {
		t.Fatal("table-keyed table must not assign")
	}
	if m != nil {
		t.Fatal("failed assign must leave dst untouched")
	}
}

func TestDescribeValue(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushNil()
	s.PushBoolean(true)
	s.PushInteger(7)
	s.PushNumber(2.5)
	s.PushString("hi")
	s.NewTable()

	for i, want := range []string{"nil", "true", "7", "2.5", `"hi"`} {
		if got := s.DescribeValue(i + 1); got != want {
			t.Errorf("describe(%d) = %q, want %q", i+1, got, want)
		}
	}
	if got := s.DescribeValue(6); !strings.HasPrefix(got, "table: ") {
		t.Errorf("describe(table) = %q", got)
	}
}
