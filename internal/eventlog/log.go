// Package eventlog implements component C: an append-only, header-stamped,
// newline-framed, sequence-numbered log with ordered, optionally filtered
// replay. One file per grid.
package eventlog

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Aurora-energy/R-EMS/internal/metrics"
	"github.com/Aurora-energy/R-EMS/internal/remserr"
)

// LogVersion is the on-disk event log format version (spec.md §9: a
// process-wide constant; bumping it is a migration).
const LogVersion uint16 = 1

// Header is the log file's first line.
type Header struct {
	Version   uint16    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Hash      string    `json:"hash"`
}

// Entry is one line of the log after the header.
type Entry struct {
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// payloadFields extracts the grid_id/controller_id fields replay filtering
// needs, without assuming a fixed payload schema beyond what spec.md §3
// guarantees ("payload always includes kind and typically grid_id,
// controller_id").
type payloadFields struct {
	Kind         string `json:"kind"`
	GridID       string `json:"grid_id"`
	ControllerID string `json:"controller_id"`
}

// Archiver receives every successfully appended entry, best-effort. See
// SPEC_FULL.md §3.2.
type Archiver interface {
	Archive(grid string, e Entry)
}

// Log is a single grid's append-only event log file.
type Log struct {
	gridID string
	path   string

	mu       sync.Mutex
	f        *os.File
	w        *bufio.Writer
	lastSeq  uint64
	Archiver Archiver
}

// Open opens (or creates) the log file at path for grid gridID. If the file
// already exists, it scans the file to determine the last assigned sequence
// so appends continue monotonically; otherwise it writes a fresh header.
func Open(path, gridID string) (*Log, error) {
	info, statErr := os.Stat(path)
	exists := statErr == nil && info.Size() > 0

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &remserr.TransientIO{Op: "open event log", Err: err}
	}

	l := &Log{
		gridID: gridID,
		path:   path,
		f:      f,
		w:      bufio.NewWriter(f),
	}

	if exists {
		seq, err := determineLastSequence(path)
		if err != nil {
			f.Close()
			return nil, &remserr.TransientIO{Op: "scan event log", Err: err}
		}
		l.lastSeq = seq
		return l, nil
	}

	if err := l.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) writeHeader() error {
	h := Header{Version: LogVersion, CreatedAt: time.Now().UTC()}
	sum := sha256.Sum256([]byte(l.gridID))
	h.Hash = hex.EncodeToString(sum[:])
	b, err := json.Marshal(h)
	if err != nil {
		return &remserr.TransientIO{Op: "marshal header", Err: err}
	}
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		return &remserr.TransientIO{Op: "write header", Err: err}
	}
	return l.flush()
}

func (l *Log) flush() error {
	if err := l.w.Flush(); err != nil {
		return &remserr.TransientIO{Op: "flush", Err: err}
	}
	if err := l.f.Sync(); err != nil {
		return &remserr.TransientIO{Op: "sync", Err: err}
	}
	return nil
}

// determineLastSequence scans an existing file's entry lines (skipping the
// header) to find the highest assigned sequence, so reopening a log after a
// restart continues numbering correctly.
func determineLastSequence(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	first := true
	var last uint64
	for scanner.Scan() {
		if first {
			first = false
			continue // header
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return 0, fmt.Errorf("parse error scanning existing log: %w", err)
		}
		last = e.Sequence
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return last, nil
}

// Append assigns the next sequence number, serializes entry to one line,
// flushes, and returns (sequence, bytes written). Every append flushes, so
// no partial lines are ever produced.
func (l *Log) Append(payload json.RawMessage) (uint64, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeq++
	e := Entry{
		Sequence:  l.lastSeq,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	b, err := json.Marshal(e)
	if err != nil {
		l.lastSeq--
		return 0, 0, &remserr.TransientIO{Op: "marshal entry", Err: err}
	}
	b = append(b, '\n')

	n, err := l.w.Write(b)
	if err != nil {
		l.lastSeq--
		return 0, 0, &remserr.TransientIO{Op: "write entry", Err: err}
	}
	if err := l.flush(); err != nil {
		return 0, 0, err
	}

	var fields payloadFields
	_ = json.Unmarshal(payload, &fields)
	metrics.EventLogBytesTotal.WithLabelValues(fields.GridID, fields.ControllerID).Add(float64(n))

	if l.Archiver != nil {
		l.Archiver.Archive(l.gridID, e)
	}

	return e.Sequence, n, nil
}

// Replay flushes pending writes then invokes handler for each entry in
// sequence order, stopping on the first handler error. A parse error on a
// non-last line (truncation/corruption) surfaces as an error at that offset.
func (l *Log) Replay(handler func(Entry) error) error {
	l.mu.Lock()
	if err := l.flush(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return &remserr.TransientIO{Op: "open for replay", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	first := true
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if first {
			first = false
			continue
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("parse error at line %d: %w", lineNo, err)
		}
		if err := handler(e); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ReplayForController flushes then replays, invoking handler only for
// entries whose payload carries grid_id == grid and controller_id ==
// controller. Duration is observed in a histogram labeled (grid, controller).
func (l *Log) ReplayForController(grid, controller string, handler func(Entry) error) error {
	start := time.Now()
	err := l.Replay(func(e Entry) error {
		var fields payloadFields
		if uerr := json.Unmarshal(e.Payload, &fields); uerr != nil {
			return nil // payload doesn't carry the filter fields; skip it silently
		}
		if fields.GridID != grid || fields.ControllerID != controller {
			return nil
		}
		return handler(e)
	})
	metrics.ReplayDurationSeconds.WithLabelValues(grid, controller).Observe(time.Since(start).Seconds())
	return err
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flush(); err != nil {
		return err
	}
	return l.f.Close()
}
