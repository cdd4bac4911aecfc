package jsonl

import (
	"bufio"
	"encoding/json"
	"path/filepath"
	"testing"
)

type testRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")

	want := []testRecord{
		{ID: "a1", Text: "first"},
		{ID: "a2", Text: "second"},
		{ID: "a3", Text: "third"},
	}
	for _, r := range want {
		if err := Append(path, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var got []testRecord
	err := ReadAll(path, func(line []byte) error {
		var r testRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadAllMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonl")
	called := false
	err := ReadAll(path, func([]byte) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("ReadAll on missing file: %v", err)
	}
	if called {
		t.Errorf("decode callback should not run for a missing file")
	}
}

func TestRewriteReplacesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")

	if err := Append(path, testRecord{ID: "a1", Text: "stale"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	err := Rewrite(path, func(w *bufio.Writer) error {
		return WriteRecord(w, testRecord{ID: "a1", Text: "fresh"})
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	var got []testRecord
	err = ReadAll(path, func(line []byte) error {
		var r testRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadAll after rewrite: %v", err)
	}
	if len(got) != 1 || got[0].Text != "fresh" {
		t.Fatalf("got %+v, want single fresh record", got)
	}
}
