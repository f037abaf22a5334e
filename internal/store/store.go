package store

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"
)

// PollRef points at the most recently posted poll message of a kind.
// Absent before the first successful post.
type PollRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// Store is the persistence API used by the scheduler core.
//
// Durability contract: a Set/Put updates the in-memory view first and then
// persists best-effort. On a persistence error the in-memory value stays
// authoritative for the current process and the error is returned so the
// caller can log it; only a restart before the next successful write loses
// the update.
//
// The dispatcher serializes all writers, so implementations only need to be
// safe against concurrent reads from the command path.
type Store interface {
	GetPollRef(ctx context.Context, kind string) (PollRef, bool, error)
	SetPollRef(ctx context.Context, kind string, ref PollRef) error

	PutMarker(ctx context.Context, key string, until time.Time) error
	GetMarker(ctx context.Context, key string) (until time.Time, ok bool, err error)
	ListMarkers(ctx context.Context) (map[string]time.Time, error)

	Close() error
}

type Config struct {
	Driver      string // "file" (default) or "sqlite"
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func pruneExpired(markers map[string]int64, now time.Time) {
	ms := now.UnixMilli()
	for k, v := range markers {
		if v < ms {
			delete(markers, k)
		}
	}
}
