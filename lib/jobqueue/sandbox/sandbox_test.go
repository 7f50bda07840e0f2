package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireCreatesAndReleaseRemoves(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "slot-0")
	release, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected %s to exist: %v", dir, err)
	}
	if err := release(); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", dir, err)
	}
}

func TestAcquireWipesExistingContents(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "slot-0")
	if _, err := Acquire(dir); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	stray := filepath.Join(dir, "stray.txt")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	release, err := Acquire(dir)
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	defer release()

	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Fatalf("expected stray file wiped, stat err = %v", err)
	}
}

func TestRingRentExhaustsAndReturns(t *testing.T) {
	root := t.TempDir()
	ring := NewRing(root, "relayq", "slot", 2)

	path1, release1, ok := ring.Rent()
	if !ok {
		t.Fatal("first Rent() expected ok=true")
	}
	path2, release2, ok := ring.Rent()
	if !ok {
		t.Fatal("second Rent() expected ok=true")
	}
	if path1 == path2 {
		t.Fatalf("expected distinct paths, got %s twice", path1)
	}

	if _, _, ok := ring.Rent(); ok {
		t.Fatal("third Rent() on a size-2 ring expected ok=false")
	}

	if err := release1(); err != nil {
		t.Fatalf("release1() error = %v", err)
	}
	if _, _, ok := ring.Rent(); !ok {
		t.Fatal("Rent() after release expected ok=true")
	}
	release2()
}
