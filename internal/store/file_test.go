package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"
)

func openTestStore(t *testing.T, cfg Config) Store {
	t.Helper()
	s, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: path}

	s := openTestStore(t, cfg)
	ref := PollRef{ChatID: -100, MessageID: 42}
	if err := s.SetPollRef(ctx, "cell_group", ref); err != nil {
		t.Fatalf("SetPollRef: %v", err)
	}
	until := time.Now().Add(8 * 24 * time.Hour)
	if err := s.PutMarker(ctx, "post_poll.cell_group.sun.1400@2025-01-05", until); err != nil {
		t.Fatalf("PutMarker: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := openTestStore(t, cfg)
	defer s2.Close()
	got, ok, err := s2.GetPollRef(ctx, "cell_group")
	if err != nil || !ok || got != ref {
		t.Fatalf("GetPollRef after reopen: %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := s2.GetMarker(ctx, "post_poll.cell_group.sun.1400@2025-01-05"); !ok {
		t.Fatal("marker lost across reopen")
	}
	if _, ok, _ := s2.GetPollRef(ctx, "service"); ok {
		t.Fatal("unexpected ref for unwritten kind")
	}
}

func TestFileStoreExpiredMarkersAreGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()
	s := openTestStore(t, Config{Path: path})
	defer s.Close()

	if err := s.PutMarker(ctx, "old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("PutMarker: %v", err)
	}
	if _, ok, _ := s.GetMarker(ctx, "old"); ok {
		t.Fatal("expired marker still visible")
	}
	if m, _ := s.ListMarkers(ctx); len(m) != 0 {
		t.Fatalf("expired marker listed: %v", m)
	}
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte("{torn"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := openTestStore(t, Config{Path: path})
	defer s.Close()
	if _, ok, _ := s.GetPollRef(context.Background(), "cell_group"); ok {
		t.Fatal("corrupt file produced data")
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Fatalf("corrupt file not kept aside: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	cfg := Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}

	s := openTestStore(t, cfg)
	ref := PollRef{ChatID: -100, MessageID: 7}
	if err := s.SetPollRef(ctx, "service", ref); err != nil {
		t.Fatalf("SetPollRef: %v", err)
	}
	if err := s.PutMarker(ctx, "k1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("PutMarker: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := openTestStore(t, cfg)
	defer s2.Close()
	got, ok, err := s2.GetPollRef(ctx, "service")
	if err != nil || !ok || got != ref {
		t.Fatalf("GetPollRef after reopen: %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := s2.GetMarker(ctx, "k1"); !ok {
		t.Fatal("marker lost across reopen")
	}
}
