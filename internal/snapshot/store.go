// Package snapshot implements component B: a versioned, hash-verified
// key/value store of controller state, one file per capture, with retention
// pruning. Grounded on the write-then-flush, directory-scan idiom the teacher
// uses for its own on-disk artifacts, generalized to the envelope format in
// spec.md §3/§6.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Aurora-energy/R-EMS/internal/metrics"
	"github.com/Aurora-energy/R-EMS/internal/remserr"
)

// EnvelopeVersion is the on-disk envelope format version. Bumping it is a
// migration, per spec.md §9.
const EnvelopeVersion uint16 = 1

// ControllerSnapshot is the opaque-to-the-store capture a controller writes.
type ControllerSnapshot struct {
	GridID       string          `json:"grid_id" cbor:"grid_id"`
	ControllerID string          `json:"controller_id" cbor:"controller_id"`
	CapturedAt   time.Time       `json:"captured_at" cbor:"captured_at"`
	Payload      json.RawMessage `json:"payload" cbor:"payload"`
}

// Envelope is the on-disk wrapper: version, creation time, content hash, and
// the state it protects.
type Envelope struct {
	Version   uint16              `json:"version" cbor:"version"`
	CreatedAt time.Time           `json:"created_at" cbor:"created_at"`
	Hash      string              `json:"hash" cbor:"hash"`
	State     ControllerSnapshot  `json:"state" cbor:"state"`
}

func hashState(state ControllerSnapshot) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Store persists controller snapshots under <root>/<grid>/<controller>/.
type Store struct {
	root       string
	retainLast int
	mu         sync.Mutex

	// Mirror is an optional fast-path cache populated best-effort after every
	// successful Write. It is never consulted by LoadLatest; see
	// SPEC_FULL.md §3.1.
	Mirror interface {
		Put(ctx context.Context, grid, controller string, env Envelope)
	}
}

// New creates a Store rooted at root, retaining at most retainLast files per
// controller (minimum 1).
func New(root string, retainLast int) *Store {
	if retainLast < 1 {
		retainLast = 1
	}
	return &Store{root: root, retainLast: retainLast}
}

func (s *Store) dir(grid, controller string) string {
	return filepath.Join(s.root, grid, controller)
}

// fileName produces the zero-padded (10-digit) unix-seconds prefix that
// spec.md §9 identifies as the fix for the original's latent year-2286
// ambiguity: lexicographic order on the filename must imply chronological
// order, which only holds for a fixed-width numeric prefix.
func fileName(controller string, at time.Time, ext string) string {
	return fmt.Sprintf("%010d-%s.%s", at.Unix(), controller, ext)
}

// Write serializes snapshot into a freshly hashed envelope, atomically writes
// it under the grid/controller directory (json unless ext is "cbor"), and
// prunes to retainLast files. It returns the written path.
func (s *Store) Write(ctx context.Context, snapshot ControllerSnapshot, ext string) (string, error) {
	if ext == "" {
		ext = "json"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir(snapshot.GridID, snapshot.ControllerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.SnapshotsFailedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()
		return "", &remserr.TransientIO{Op: "mkdir", Err: err}
	}

	hash, err := hashState(snapshot)
	if err != nil {
		metrics.SnapshotsFailedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()
		return "", &remserr.TransientIO{Op: "hash", Err: err}
	}

	env := Envelope{
		Version:   EnvelopeVersion,
		CreatedAt: time.Now().UTC(),
		Hash:      hash,
		State:     snapshot,
	}

	var payload []byte
	if ext == "cbor" {
		payload, err = cbor.Marshal(env)
	} else {
		payload, err = json.Marshal(env)
	}
	if err != nil {
		metrics.SnapshotsFailedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()
		return "", &remserr.TransientIO{Op: "marshal", Err: err}
	}

	name := fileName(snapshot.ControllerID, env.CreatedAt, ext)
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		metrics.SnapshotsFailedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()
		return "", &remserr.TransientIO{Op: "open", Err: err}
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		metrics.SnapshotsFailedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()
		return "", &remserr.TransientIO{Op: "write", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		metrics.SnapshotsFailedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()
		return "", &remserr.TransientIO{Op: "sync", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		metrics.SnapshotsFailedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()
		return "", &remserr.TransientIO{Op: "close", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		metrics.SnapshotsFailedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()
		return "", &remserr.TransientIO{Op: "rename", Err: err}
	}

	metrics.SnapshotsSavedTotal.WithLabelValues(snapshot.GridID, snapshot.ControllerID).Inc()

	if err := s.prune(dir); err != nil {
		return path, &remserr.TransientIO{Op: "prune", Err: err}
	}

	if s.Mirror != nil {
		s.Mirror.Put(ctx, snapshot.GridID, snapshot.ControllerID, env)
	}

	return path, nil
}

// prune keeps at most s.retainLast files in dir, removing the oldest first
// by chronological order (the zero-padded unix-seconds prefix parsed via
// seconds, falling back to lexicographic order for any name it can't parse).
func (s *Store) prune(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sortByChronology(names)
	if len(names) <= s.retainLast {
		return nil
	}
	toRemove := names[:len(names)-s.retainLast]
	for _, n := range toRemove {
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			return err
		}
	}
	return nil
}

// LoadLatest returns the most recent envelope for (grid, controller),
// verifying its hash. A HashMismatch means the affected controller should
// start with fresh state; it is not itself wrapped as TransientIO since it
// represents tamper, not a retryable I/O fault.
func (s *Store) LoadLatest(grid, controller string) (*Envelope, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir(grid, controller)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		metrics.SnapshotsFailedTotal.WithLabelValues(grid, controller).Inc()
		return nil, "", &remserr.TransientIO{Op: "readdir", Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, "", nil
	}
	sortByChronology(names)
	latest := names[len(names)-1]
	path := filepath.Join(dir, latest)

	raw, err := os.ReadFile(path)
	if err != nil {
		metrics.SnapshotsFailedTotal.WithLabelValues(grid, controller).Inc()
		return nil, "", &remserr.TransientIO{Op: "read", Err: err}
	}

	var env Envelope
	if strings.HasSuffix(latest, ".cbor") {
		err = cbor.Unmarshal(raw, &env)
	} else {
		err = json.Unmarshal(raw, &env)
	}
	if err != nil {
		metrics.SnapshotsFailedTotal.WithLabelValues(grid, controller).Inc()
		return nil, "", &remserr.TransientIO{Op: "unmarshal", Err: err}
	}

	wantHash, err := hashState(env.State)
	if err != nil {
		return nil, "", &remserr.TransientIO{Op: "rehash", Err: err}
	}
	if !bytes.Equal([]byte(wantHash), []byte(env.Hash)) {
		metrics.SnapshotsFailedTotal.WithLabelValues(grid, controller).Inc()
		return nil, path, &remserr.HashMismatch{Path: path, Want: wantHash, Got: env.Hash}
	}

	return &env, path, nil
}

// Verify reports whether the envelope at path still hashes correctly,
// without the logging/metric side effects of a failed LoadLatest.
func (s *Store) Verify(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, &remserr.TransientIO{Op: "read", Err: err}
	}
	var env Envelope
	if strings.HasSuffix(path, ".cbor") {
		err = cbor.Unmarshal(raw, &env)
	} else {
		err = json.Unmarshal(raw, &env)
	}
	if err != nil {
		return false, &remserr.TransientIO{Op: "unmarshal", Err: err}
	}
	want, err := hashState(env.State)
	if err != nil {
		return false, err
	}
	return want == env.Hash, nil
}

// seconds parses the zero-padded unix-seconds prefix back out of a filename.
func seconds(name string) (int64, error) {
	idx := strings.Index(name, "-")
	if idx < 0 {
		return 0, fmt.Errorf("malformed snapshot filename %q", name)
	}
	return strconv.ParseInt(name[:idx], 10, 64)
}

// sortByChronology sorts names in place by their parsed seconds prefix. Any
// name seconds can't parse sorts by plain string comparison instead, so a
// stray non-conforming file never aborts retention or latest-lookup.
func sortByChronology(names []string) {
	sort.Slice(names, func(i, j int) bool {
		si, erri := seconds(names[i])
		sj, errj := seconds(names[j])
		if erri != nil || errj != nil {
			return names[i] < names[j]
		}
		if si != sj {
			return si < sj
		}
		return names[i] < names[j]
	})
}
