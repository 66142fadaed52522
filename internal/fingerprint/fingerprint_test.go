package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

func TestCompute_KnownVector(t *testing.T) {
	got, err := Compute(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCompute_LargerThanChunk(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), ChunkSize/3)
	got, err := Compute(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	sum := sha256.Sum256(data)
	if got != hex.EncodeToString(sum[:]) {
		t.Fatalf("digest mismatch for multi-chunk input")
	}
}

func TestFile(t *testing.T) {
	fsys := memfs.New()
	if errWrite := util.WriteFile(fsys, "scan/sample.bin", []byte("abc"), 0o644); errWrite != nil {
		t.Fatalf("seed: %v", errWrite)
	}
	got, err := File(fsys, "scan/sample.bin")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if !strings.HasPrefix(got, "ba7816bf") || len(got) != 64 {
		t.Fatalf("unexpected digest %s", got)
	}

	if _, errMissing := File(fsys, "scan/missing.bin"); !errors.Is(errMissing, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", errMissing)
	}
}
