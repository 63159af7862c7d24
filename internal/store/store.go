// Package store implements the columnar on-disk cache: atomic
// write-then-rename, zstd-compressed, fingerprint-header-gated files for
// every pipeline stage's output.
//
// Every file on disk begins with a fixed header (magic + fingerprint)
// so a reader can reject a stale or truncated entry without decompressing
// the body. Writes never touch the final path directly — they write to a
// ".tmp-<pid>" sibling and os.Rename into place, so a crash mid-write
// never leaves a corrupt file at the path a reader will open.
package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/quantlab/fxlab/internal/errs"
	"github.com/quantlab/fxlab/internal/fingerprint"
)

const magic uint32 = 0x46584C31 // "FXL1"

// Store is a directory-rooted columnar cache.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Path joins the store root with the given cache-relative path segments.
func (s *Store) Path(elem ...string) string {
	return filepath.Join(append([]string{s.root}, elem...)...)
}

// Exists reports whether a cache entry is present and matches fp, without
// decompressing its body.
func (s *Store) Exists(relPath string, fp fingerprint.Digest) bool {
	gotFP, _, err := s.readHeader(s.Path(relPath))
	return err == nil && gotFP == fp
}

// Write atomically writes payload (already-encoded, uncompressed bytes)
// to relPath, tagged with fp. The directory tree is created as needed.
func (s *Store) Write(relPath string, fp fingerprint.Digest, payload []byte) error {
	fullPath := s.Path(relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp-%d", fullPath, os.Getpid())
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("store: create tmp: %w", err)
	}

	if werr := writeAll(f, fp, payload); werr != nil {
		f.Close()
		os.Remove(tmpPath)
		return werr
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close tmp: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}

func writeAll(w io.Writer, fp fingerprint.Digest, payload []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:4], magic)
	binary.LittleEndian.PutUint64(header[4:12], uint64(fp))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("store: write header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("store: zstd writer: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return fmt.Errorf("store: zstd write: %w", err)
	}
	return zw.Close()
}

// Read returns the decompressed payload for relPath if its fingerprint
// matches fp, or a *errs.CacheMissError otherwise.
func (s *Store) Read(relPath string, fp fingerprint.Digest) ([]byte, error) {
	fullPath := s.Path(relPath)
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, &errs.CacheMissError{Key: relPath}
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var header [12]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, &errs.CacheMissError{Key: relPath}
	}
	if binary.LittleEndian.Uint32(header[0:4]) != magic {
		return nil, &errs.CacheMissError{Key: relPath}
	}
	gotFP := fingerprint.Digest(binary.LittleEndian.Uint64(header[4:12]))
	if gotFP != fp {
		return nil, &errs.CacheMissError{Key: relPath}
	}

	zr, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("store: zstd reader: %w", err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("store: zstd decode: %w", err)
	}
	return payload, nil
}

// ReadAny decompresses relPath's payload without checking its
// fingerprint, returning the digest stamped on it alongside. Used by a
// reader that has no independent way to know the expected fingerprint
// ahead of time (e.g. a later pipeline stage resuming from a cache
// written by an earlier stage in a prior process) and instead wants to
// discover and propagate it.
func (s *Store) ReadAny(relPath string) ([]byte, fingerprint.Digest, error) {
	fp, _, err := s.readHeader(s.Path(relPath))
	if err != nil {
		return nil, 0, &errs.CacheMissError{Key: relPath}
	}
	payload, err := s.Read(relPath, fp)
	if err != nil {
		return nil, 0, err
	}
	return payload, fp, nil
}

func (s *Store) readHeader(fullPath string) (fingerprint.Digest, bool, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, false, err
	}
	if binary.LittleEndian.Uint32(header[0:4]) != magic {
		return 0, false, fmt.Errorf("store: bad magic")
	}
	return fingerprint.Digest(binary.LittleEndian.Uint64(header[4:12])), true, nil
}

// Remove deletes a cache entry if present; absence is not an error.
func (s *Store) Remove(relPath string) error {
	err := os.Remove(s.Path(relPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: remove %s: %w", relPath, err)
	}
	return nil
}

// RemoveDir deletes an entire cache subtree — used by
// clean-strategy-cache to drop the RUN tree while leaving STABLE intact.
func (s *Store) RemoveDir(relPath string) error {
	return os.RemoveAll(s.Path(relPath))
}
