package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/satchelkv/satchel/internal/codec"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "store.skv")
}

func TestWriteReadMap_RoundTrip(t *testing.T) {
	path := tempStorePath(t)
	in := map[string][]byte{"k1": []byte("v1"), "k2": {0xFF}}

	if err := WriteMapAtomic(path, in); err != nil {
		t.Fatalf("WriteMapAtomic() failed: %v", err)
	}
	out, err := ReadMap(path)
	if err != nil {
		t.Fatalf("ReadMap() failed: %v", err)
	}
	if len(out) != 2 || !bytes.Equal(out["k1"], []byte("v1")) {
		t.Errorf("ReadMap() = %v, want %v", out, in)
	}
}

func TestWriteMapAtomic_LeavesNoTempFile(t *testing.T) {
	path := tempStorePath(t)
	if err := WriteMapAtomic(path, map[string][]byte{"k": []byte("v")}); err != nil {
		t.Fatalf("WriteMapAtomic() failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file still present after write: %v", err)
	}
}

func TestReadMap_NotFound(t *testing.T) {
	if _, err := ReadMap(tempStorePath(t)); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadMap() error = %v, want ErrNotFound", err)
	}
}

func TestReadMap_Corrupt(t *testing.T) {
	path := tempStorePath(t)
	if err := os.WriteFile(path, []byte("definitely not a map blob"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if _, err := ReadMap(path); !errors.Is(err, codec.ErrMalformed) {
		t.Errorf("ReadMap() error = %v, want codec.ErrMalformed", err)
	}
}

func TestCreateEmptyIfAbsent_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ns")
	path := filepath.Join(dir, "store.skv")

	created, err := CreateEmptyIfAbsent(dir, path)
	if err != nil {
		t.Fatalf("first CreateEmptyIfAbsent() failed: %v", err)
	}
	if !created {
		t.Error("first call should report creation")
	}

	created, err = CreateEmptyIfAbsent(dir, path)
	if err != nil {
		t.Fatalf("second CreateEmptyIfAbsent() failed: %v", err)
	}
	if created {
		t.Error("second call should not report creation")
	}

	m, err := ReadMap(path)
	if err != nil {
		t.Fatalf("ReadMap() failed: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("bootstrap file holds %d entries, want 0", len(m))
	}
}

func TestCreateEmptyIfAbsent_KeepsExistingData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ns")
	path := filepath.Join(dir, "store.skv")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := WriteMapAtomic(path, map[string][]byte{"keep": []byte("me")}); err != nil {
		t.Fatalf("WriteMapAtomic() failed: %v", err)
	}

	if _, err := CreateEmptyIfAbsent(dir, path); err != nil {
		t.Fatalf("CreateEmptyIfAbsent() failed: %v", err)
	}
	m, err := ReadMap(path)
	if err != nil {
		t.Fatalf("ReadMap() failed: %v", err)
	}
	if !bytes.Equal(m["keep"], []byte("me")) {
		t.Error("existing data was clobbered")
	}
}

func TestRemove_ToleratesAbsent(t *testing.T) {
	if err := Remove(tempStorePath(t)); err != nil {
		t.Errorf("Remove() of absent file failed: %v", err)
	}
}

func TestCurrentGeneration(t *testing.T) {
	path := tempStorePath(t)

	gen, err := CurrentGeneration(path)
	if err != nil {
		t.Fatalf("CurrentGeneration() failed: %v", err)
	}
	if !gen.Deleted() {
		t.Errorf("generation of absent file = %v, want deleted", gen)
	}

	if err := WriteMapAtomic(path, map[string][]byte{"k": []byte("v1")}); err != nil {
		t.Fatalf("WriteMapAtomic() failed: %v", err)
	}
	first, err := CurrentGeneration(path)
	if err != nil {
		t.Fatalf("CurrentGeneration() failed: %v", err)
	}
	if !first.Known() {
		t.Fatalf("generation after write = %v, want known", first)
	}

	again, err := CurrentGeneration(path)
	if err != nil {
		t.Fatalf("CurrentGeneration() failed: %v", err)
	}
	if !first.Equal(again) {
		t.Error("generation changed without a write")
	}

	// Rename-based replacement lands on a new inode, so even writing
	// the same content must change the generation.
	if err := WriteMapAtomic(path, map[string][]byte{"k": []byte("v1")}); err != nil {
		t.Fatalf("WriteMapAtomic() failed: %v", err)
	}
	second, err := CurrentGeneration(path)
	if err != nil {
		t.Fatalf("CurrentGeneration() failed: %v", err)
	}
	if first.Equal(second) {
		t.Error("generation did not change across a rewrite")
	}
}

func TestGeneration_UnknownNeverEqual(t *testing.T) {
	if UnknownGeneration().Equal(UnknownGeneration()) {
		t.Error("unknown generations must not compare equal")
	}
	if UnknownGeneration().Equal(DeletedGeneration()) {
		t.Error("unknown must not equal deleted")
	}
	if !DeletedGeneration().Equal(DeletedGeneration()) {
		t.Error("deleted generations must compare equal")
	}
}
