package snapshot

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStoreSaveLoad(t *testing.T) {
	st := openTestStore(t)

	data := []byte{1, 2, 3, 4}
	if err := st.Save("alpha", data); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("loaded %v, want %v", got, data)
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	st := openTestStore(t)

	if err := st.Save("alpha", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := st.Save("alpha", []byte("new")); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("loaded %q after replace", got)
	}

	infos, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("replace should not duplicate: %d entries", len(infos))
	}
}

func TestStoreLoadMissing(t *testing.T) {
	st := openTestStore(t)

	_, err := st.Load("ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing snapshot error = %v, want ErrNotFound", err)
	}
}

func TestStoreDelete(t *testing.T) {
	st := openTestStore(t)

	if err := st.Save("alpha", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := st.Delete("alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Load("alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
	// Deleting a missing name is not an error.
	if err := st.Delete("ghost"); err != nil {
		t.Fatal(err)
	}
}

func TestStoreList(t *testing.T) {
	st := openTestStore(t)

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := st.Save(name, []byte(name)); err != nil {
			t.Fatal(err)
		}
	}
	infos, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("List returned %d entries", len(infos))
	}
	want := []string{"alpha", "bravo", "charlie"}
	for i, info := range infos {
		if info.Name != want[i] {
			t.Errorf("position %d: %q, want %q", i, info.Name, want[i])
		}
		if info.Size != int64(len(info.Name)) {
			t.Errorf("%q size = %d", info.Name, info.Size)
		}
		if info.Created.IsZero() {
			t.Errorf("%q has no creation time", info.Name)
		}
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Save("alpha", []byte("keep")); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	st, err = OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.Load("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "keep" {
		t.Fatalf("reopened store returned %q", got)
	}
}
