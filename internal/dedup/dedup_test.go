package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"shopbot/internal/config"
)

// exercise checks the Store contract shared by every backend.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	seen, err := s.Seen(ctx, "1001")
	if err != nil || seen {
		t.Fatalf("first Seen = %v, %v; want false, nil", seen, err)
	}
	seen, err = s.Seen(ctx, "1001")
	if err != nil || !seen {
		t.Fatalf("second Seen = %v, %v; want true, nil", seen, err)
	}
	if seen, _ := s.Seen(ctx, "1002"); seen {
		t.Fatal("distinct key reported as seen")
	}
	if seen, _ := s.Seen(ctx, ""); seen {
		t.Fatal("empty key reported as seen")
	}
	if err := s.Forget(ctx, "1002"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if seen, _ := s.Seen(ctx, "1002"); seen {
		t.Fatal("forgotten key reported as seen")
	}
	if err := s.Forget(ctx, "missing"); err != nil {
		t.Fatalf("Forget of unknown key: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory(time.Minute))
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Seen(context.Background(), "a")
	now = now.Add(2 * time.Minute)
	if seen, _ := m.Seen(context.Background(), "b"); seen {
		t.Fatal("b should be new")
	}
	if m.len() != 1 {
		t.Errorf("expired key not swept, len = %d", m.len())
	}
	if seen, _ := m.Seen(context.Background(), "a"); seen {
		t.Error("expired key reported as seen")
	}
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "sub", "dedup.db"), time.Minute, nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer s.Close()
	exercise(t, s)
}

func TestSQLite_ExpiryAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.db")
	ctx := context.Background()

	s, err := NewSQLite(path, time.Minute, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Seen(ctx, "7")
	s.Close()

	s, err = NewSQLite(path, time.Minute, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if seen, _ := s.Seen(ctx, "7"); !seen {
		t.Fatal("key lost across reopen")
	}

	later := time.Now().Add(2 * time.Minute)
	s.now = func() time.Time { return later }
	if seen, _ := s.Seen(ctx, "7"); seen {
		t.Fatal("expired key reported as seen")
	}
	if seen, _ := s.Seen(ctx, "7"); !seen {
		t.Fatal("revived key should be seen again")
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(RedisConfig{Addr: mr.Addr(), TTL: time.Minute})
	defer r.Close()
	exercise(t, r)

	if ttl := mr.TTL(redisKeyPrefix + "1001"); ttl != time.Minute {
		t.Errorf("ttl = %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if seen, _ := r.Seen(context.Background(), "1001"); seen {
		t.Error("expired key reported as seen")
	}
}

func TestRedis_Unavailable(t *testing.T) {
	r := NewRedis(RedisConfig{Addr: "127.0.0.1:1", TTL: time.Minute})
	defer r.Close()

	if _, err := r.Seen(context.Background(), "1"); err == nil {
		t.Fatal("expected error from closed redis")
	}
}

func TestNew(t *testing.T) {
	s, err := New(config.DedupConfig{Backend: "none"}, nil)
	if err != nil || s != nil {
		t.Fatalf("none: got %v, %v", s, err)
	}
	s, err = New(config.DedupConfig{Backend: "memory", TTLSeconds: 60}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("memory: got %T", s)
	}
	s, err = New(config.DedupConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "d.db")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if _, err := New(config.DedupConfig{Backend: "etcd"}, nil); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
