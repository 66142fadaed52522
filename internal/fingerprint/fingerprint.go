// Package fingerprint computes the content hash used as the lookup key.
package fingerprint

import (
	_ "crypto/sha256"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/opencontainers/go-digest"
)

// ChunkSize bounds how much of a file is held in memory at once.
const ChunkSize = 32 * 1024

// Algorithm is the digest used for fingerprints.
const Algorithm = digest.SHA256

// Compute hashes the full stream from r and returns the hex-encoded digest.
func Compute(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("fingerprint: nil reader")
	}
	digester := Algorithm.Digester()
	buf := make([]byte, ChunkSize)
	if _, errCopy := io.CopyBuffer(digester.Hash(), r, buf); errCopy != nil {
		return "", fmt.Errorf("fingerprint: read: %w", errCopy)
	}
	return digester.Digest().Encoded(), nil
}

// File opens name in fsys and hashes its content.
func File(fsys billy.Filesystem, name string) (string, error) {
	if fsys == nil {
		return "", fmt.Errorf("fingerprint: nil filesystem")
	}
	f, errOpen := fsys.Open(name)
	if errOpen != nil {
		return "", fmt.Errorf("fingerprint: open %s: %w", name, errOpen)
	}
	defer func() {
		_ = f.Close()
	}()
	return Compute(f)
}
