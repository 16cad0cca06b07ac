package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendThenReplayYieldsSamePayloadsInOrder(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "events.log"), "grid-a")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	seq1, _, err := l.Append(json.RawMessage(`{"k":"a"}`))
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	seq2, _, err := l.Append(json.RawMessage(`{"k":"b"}`))
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("expected sequences 1,2 got %d,%d", seq1, seq2)
	}

	var got []Entry
	err = l.Replay(func(e Entry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("sequence monotonicity violated: %+v", got)
	}
	if string(got[0].Payload) != `{"k":"a"}` || string(got[1].Payload) != `{"k":"b"}` {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestReopenContinuesSequenceNumbering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	l1, err := Open(path, "grid-a")
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	if _, _, err := l1.Append(json.RawMessage(`{"k":"a"}`)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := Open(path, "grid-a")
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	defer l2.Close()
	seq, _, err := l2.Append(json.RawMessage(`{"k":"b"}`))
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected sequence 2 after reopen, got %d", seq)
	}
}

func TestReplayForControllerFiltersByGridAndController(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "events.log"), "grid-a")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	entries := []string{
		`{"kind":"controller_tick","grid_id":"grid-a","controller_id":"ctrl-a"}`,
		`{"kind":"controller_tick","grid_id":"grid-a","controller_id":"ctrl-b"}`,
		`{"kind":"controller_tick","grid_id":"grid-a","controller_id":"ctrl-a"}`,
	}
	for _, e := range entries {
		if _, _, err := l.Append(json.RawMessage(e)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var matched []uint64
	err = l.ReplayForController("grid-a", "ctrl-a", func(e Entry) error {
		matched = append(matched, e.Sequence)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayForController: %v", err)
	}
	if len(matched) != 2 || matched[0] != 1 || matched[1] != 3 {
		t.Fatalf("expected sequences [1,3] for ctrl-a, got %v", matched)
	}
}

func TestCorruptedLineSurfacesParseErrorAtOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	l, err := Open(path, "grid-a")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := l.Append(json.RawMessage(`{"k":"a"}`)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	l.Close()

	// Append a corrupted line after the only entry, leaving the header and
	// that entry intact.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	corrupted := string(raw) + "not-json\n"
	if err := os.WriteFile(path, []byte(corrupted), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l2, err := Open(path, "grid-a")
	if err == nil {
		defer l2.Close()
	}
	// Either Open's rescan or a subsequent Replay must surface the parse
	// error; both are acceptable since Open also scans the file.
	if err == nil {
		replayErr := l2.Replay(func(Entry) error { return nil })
		if replayErr == nil {
			t.Fatalf("expected a parse error on the corrupted line")
		}
	}
}
