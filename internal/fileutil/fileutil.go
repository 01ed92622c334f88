package fileutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge reports that a streamed write exceeded its byte limit.
var ErrTooLarge = errors.New("content exceeds size limit")

// WriteResult describes a completed streamed write.
type WriteResult struct {
	Path   string
	Size   int64
	SHA256 string
}

// WriteStreamAtomic streams r into path through a temp file in the same
// directory, renaming it into place only after the copy succeeds. A positive
// limit caps the number of bytes accepted; exceeding it removes the temp file
// and returns ErrTooLarge.
func WriteStreamAtomic(path string, r io.Reader, limit int64, mode os.FileMode) (WriteResult, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return WriteResult{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("write %s: %w", path, err)
	}
	if limit > 0 && written > limit {
		cleanup()
		return WriteResult{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("rename into %s: %w", path, err)
	}
	return WriteResult{Path: path, Size: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// WriteFileAtomic writes data to path via a temp file and rename.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	_, err := WriteStreamAtomic(path, bytes.NewReader(data), 0, mode)
	return err
}

// ReserveUniquePath claims path, or the first free "<stem>_<n><ext>"
// sibling, by creating it empty with O_EXCL. Concurrent callers never get the
// same name. The caller overwrites the placeholder or removes it on failure.
func ReserveUniquePath(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]
	candidate := path
	for n := 1; n <= 1000; n++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if err := f.Close(); err != nil {
				_ = os.Remove(candidate)
				return "", fmt.Errorf("close %s: %w", candidate, err)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("reserve %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	return "", fmt.Errorf("no free filename for %s", path)
}
