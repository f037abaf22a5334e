package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps the same in-memory-first semantics as the file driver:
// every read is served from the maps, every write updates the maps and then
// persists. A database error therefore never makes the scheduler forget what
// it already did this process.
type sqliteStore struct {
	log logx.Logger
	db  *sql.DB

	mu      sync.Mutex
	refs    map[string]PollRef
	markers map[string]int64 // unix milli expiry
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &sqliteStore{
		log:     log,
		db:      db,
		refs:    map[string]PollRef{},
		markers: map[string]int64{},
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	pruneExpired(s.markers, time.Now())
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, chat_id, message_id FROM poll_refs`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var ref PollRef
		if err := rows.Scan(&kind, &ref.ChatID, &ref.MessageID); err != nil {
			return err
		}
		s.refs[kind] = ref
	}
	if err := rows.Err(); err != nil {
		return err
	}

	mrows, err := s.db.QueryContext(ctx, `SELECT key, until FROM fired_markers`)
	if err != nil {
		return err
	}
	defer mrows.Close()
	for mrows.Next() {
		var key string
		var ms int64
		if err := mrows.Scan(&key, &ms); err != nil {
			return err
		}
		s.markers[key] = ms
	}
	return mrows.Err()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetPollRef(ctx context.Context, kind string) (PollRef, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[kind]
	return ref, ok, nil
}

func (s *sqliteStore) SetPollRef(ctx context.Context, kind string, ref PollRef) error {
	s.mu.Lock()
	s.refs[kind] = ref
	s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO poll_refs(kind, chat_id, message_id, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(kind) DO UPDATE SET chat_id=excluded.chat_id, message_id=excluded.message_id, updated_at=excluded.updated_at`,
		kind, ref.ChatID, ref.MessageID, time.Now().Format(time.RFC3339),
	)
	return err
}

func (s *sqliteStore) PutMarker(ctx context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	s.markers[key] = ms
	pruneExpired(s.markers, time.Now())
	s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fired_markers(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, ms,
	)
	if err == nil {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM fired_markers WHERE until < ?`, time.Now().UnixMilli())
	}
	return err
}

func (s *sqliteStore) GetMarker(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.markers[key]
	if !ok || ms < time.Now().UnixMilli() {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) ListMarkers(ctx context.Context) (map[string]time.Time, error) {
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
