// Package jsonl implements the append-only JSONL record codec shared by
// NodeStore content and meta files: small appends go straight to the file
// with O_APPEND (atomic up to PIPE_BUF on POSIX, the same assumption the
// teacher's store layer makes about single INSERT statements), while
// rewrites or appends that might exceed that bound take an exclusive
// advisory lock first.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// smallAppendLimit is the largest write this package will perform without
// taking an advisory lock, matching the common PIPE_BUF atomicity guarantee.
const smallAppendLimit = 4096

// Append writes one JSON-encoded record terminated by a newline to path,
// creating the file if needed. Writes at or under smallAppendLimit bytes
// rely on O_APPEND's atomicity; larger writes take an exclusive lock first
// so a concurrent reader never observes a torn line.
func Append(path string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("jsonl: marshal record: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	defer f.Close()

	if len(data) > smallAppendLimit {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
			return fmt.Errorf("jsonl: lock %s: %w", path, err)
		}
		defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("jsonl: write %s: %w", path, err)
	}
	return f.Sync()
}

// ReadAll decodes every line of path into records via decode, skipping
// blank lines. Takes no lock. Returns nil if the file does not exist.
func ReadAll(path string, decode func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := decode(cp); err != nil {
			return fmt.Errorf("jsonl: decode %s: %w", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("jsonl: scan %s: %w", path, err)
	}
	return nil
}

// Rewrite atomically replaces path's contents with the records yielded by
// emit, via a temp-file-then-rename, while holding an exclusive lock on the
// destination for the duration, the same pattern compaction and tombstone
// garbage-collection use.
func Rewrite(path string, emit func(w *bufio.Writer) error) error {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("jsonl: open %s for lock: %w", path, err)
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("jsonl: lock %s: %w", path, err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	tmp, err := os.CreateTemp(dirOf(path), ".jsonl-tmp-*")
	if err != nil {
		return fmt.Errorf("jsonl: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := bufio.NewWriter(tmp)
	if err := emit(w); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonl: emit for %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonl: flush %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonl: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonl: close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("jsonl: rename into %s: %w", path, err)
	}
	return nil
}

// WriteRecord is a convenience for Rewrite's emit callback.
func WriteRecord(w *bufio.Writer, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
