package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one JSON snapshot,
// rewritten atomically (tmp + rename) on every change. The state is a few
// hundred bytes and changes a handful of times per day, so snapshot-per-write
// is cheaper than a journal.
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	refs    map[string]PollRef
	markers map[string]int64 // unix milli expiry
}

type fileState struct {
	PollRefs map[string]PollRef `json:"poll_refs"`
	Markers  map[string]int64   `json:"markers"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:     log,
		path:    path,
		refs:    map[string]PollRef{},
		markers: map[string]int64{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	pruneExpired(s.markers, time.Now())
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var st fileState
	if err := json.Unmarshal(b, &st); err != nil {
		// A torn write should not brick the bot; start fresh and keep the
		// corrupt file aside for inspection.
		s.log.Warn("state file corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		_ = os.Rename(s.path, s.path+".corrupt")
		return nil
	}
	if st.PollRefs != nil {
		s.refs = st.PollRefs
	}
	if st.Markers != nil {
		s.markers = st.Markers
	}
	return nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) GetPollRef(ctx context.Context, kind string) (PollRef, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[kind]
	return ref, ok, nil
}

func (s *fileStore) SetPollRef(ctx context.Context, kind string, ref PollRef) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[kind] = ref
	return s.flushLocked()
}

func (s *fileStore) PutMarker(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[key] = until.UnixMilli()
	pruneExpired(s.markers, time.Now())
	return s.flushLocked()
}

func (s *fileStore) GetMarker(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.markers[key]
	if !ok || ms < time.Now().UnixMilli() {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) ListMarkers(ctx context.Context) (map[string]time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.markers))
	now := time.Now().UnixMilli()
	for k, v := range s.markers {
		if v >= now {
			out[k] = time.UnixMilli(v)
		}
	}
	return out, nil
}

// flushLocked writes the snapshot atomically. The in-memory maps are already
// updated when this runs; an error here is reported but not rolled back.
func (s *fileStore) flushLocked() error {
	st := fileState{PollRefs: s.refs, Markers: s.markers}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
