package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestOverlayBuffersUntilCommit(t *testing.T) {
	base := NewMemDB()
	if err := base.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("seed base: %v", err)
	}

	ov := NewOverlay(base)
	if err := ov.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := ov.Delete([]byte("a")); err != nil {
		t.Fatalf("overlay delete: %v", err)
	}

	if _, err := ov.Get([]byte("a")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected buffered delete to hide key, got err %v", err)
	}
	got, err := ov.Get([]byte("b"))
	if err != nil || !bytes.Equal(got, []byte("2")) {
		t.Fatalf("expected buffered write visible, got %q err %v", got, err)
	}

	// Base untouched before commit.
	if _, err := base.Get([]byte("b")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("base saw uncommitted write")
	}
	if _, err := base.Get([]byte("a")); err != nil {
		t.Fatalf("base lost key before commit: %v", err)
	}

	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := base.Get([]byte("a")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("delete not applied on commit")
	}
	got, err = base.Get([]byte("b"))
	if err != nil || !bytes.Equal(got, []byte("2")) {
		t.Fatalf("write not applied on commit, got %q err %v", got, err)
	}
}

func TestOverlayDiscardLeavesBaseUntouched(t *testing.T) {
	base := NewMemDB()
	if err := base.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("seed base: %v", err)
	}
	ov := NewOverlay(base)
	if err := ov.Put([]byte("k"), []byte("mutated")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := ov.Put([]byte("new"), []byte("x")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	ov.Discard()

	got, err := base.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("base mutated after discard: %q err %v", got, err)
	}
	if _, err := base.Get([]byte("new")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("base gained key after discard")
	}
}

func TestOverlayIteratorMergesAndOrders(t *testing.T) {
	base := NewMemDB()
	for _, k := range []string{"p/1", "p/3", "q/9"} {
		if err := base.Put([]byte(k), []byte("base")); err != nil {
			t.Fatalf("seed base: %v", err)
		}
	}
	ov := NewOverlay(base)
	if err := ov.Put([]byte("p/2"), []byte("ov")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := ov.Delete([]byte("p/3")); err != nil {
		t.Fatalf("overlay delete: %v", err)
	}

	it := ov.NewIterator([]byte("p/"))
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if len(keys) != 2 || keys[0] != "p/1" || keys[1] != "p/2" {
		t.Fatalf("unexpected merged keys: %v", keys)
	}
}

func TestMemDBIteratorIsPrefixScopedAndSorted(t *testing.T) {
	db := NewMemDB()
	for _, k := range []string{"acct/2", "acct/10", "acct/1", "other/5"} {
		if err := db.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	it := db.NewIterator([]byte("acct/"))
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	// Byte order, not numeric order.
	want := []string{"acct/1", "acct/10", "acct/2"}
	if len(keys) != len(want) {
		t.Fatalf("got %v want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v want %v", keys, want)
		}
	}
}
