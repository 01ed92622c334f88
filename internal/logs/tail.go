package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	scanBufferSize = 1024 * 1024
	pollInterval   = 500 * time.Millisecond
)

// Filter narrows log output. The zero value keeps everything.
type Filter struct {
	JobID string
}

func (f Filter) active() bool {
	return strings.TrimSpace(f.JobID) != ""
}

// matcher tracks whether the entry currently being read was kept, so the
// indented field lines of a console entry follow their header.
type matcher struct {
	jsonNeedle    string
	consoleNeedle string
	active        bool
	keep          bool
}

func newMatcher(filter Filter) *matcher {
	id := strings.TrimSpace(filter.JobID)
	return &matcher{
		jsonNeedle:    `"job_id":"` + id + `"`,
		consoleNeedle: " Job " + id + " ",
		active:        filter.active(),
	}
}

func (m *matcher) match(line string) bool {
	if !m.active {
		return true
	}
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return m.keep
	}
	m.keep = strings.Contains(line, m.jsonNeedle) || strings.Contains(line, m.consoleNeedle)
	return m.keep
}

// TailResult holds the selected lines and the offset just past them.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail returns up to limit matching lines from the end of path. A missing
// file yields an empty result. limit <= 0 returns no lines but still
// reports the end offset.
func Tail(path string, limit int, filter Filter) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return TailResult{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{}, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return TailResult{Offset: info.Size()}, nil
	}

	m := newMatcher(filter)
	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scanLines(file, func(line string) {
		if !m.match(line) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return TailResult{}, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := range count {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return TailResult{Lines: lines, Offset: offset}, nil
}

// Follow calls emit for every matching line appended to path after offset
// until ctx is done. Truncation restarts reading from the beginning.
func Follow(ctx context.Context, path string, offset int64, filter Filter, emit func(string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch log directory: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	m := newMatcher(filter)
	for {
		next, err := readFrom(path, offset, m, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if ok && err != nil {
				return fmt.Errorf("watch log file: %w", err)
			}
		case <-watcher.Events:
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, m *matcher, emit func(string) error) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if offset == info.Size() {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	// Only complete lines are consumed so a partially written entry is
	// re-read on the next pass.
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if !m.match(line) {
			continue
		}
		if err := emit(line); err != nil {
			return offset, err
		}
	}
}

func scanLines(file *os.File, fn func(string)) (int64, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	return offset, nil
}
