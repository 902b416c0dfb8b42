package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"shopbot/internal/config"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("expected JSON record, got %s", out)
	}
}

func TestRequireSecrets(t *testing.T) {
	cfg := config.Defaults()
	err := requireSecrets(cfg)
	if err == nil || !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") || !strings.Contains(err.Error(), "COMPLETION_API_KEY") {
		t.Fatalf("expected both secrets reported, got %v", err)
	}
	cfg.Telegram.Token = "t"
	cfg.Completion.APIKey = "k"
	if err := requireSecrets(cfg); err != nil {
		t.Fatal(err)
	}
}

func TestBuildApp(t *testing.T) {
	logger = newLogger(&bytes.Buffer{}, "error", "text")
	cfg := config.Defaults()
	cfg.Dedup.Backend = "memory"

	a, err := buildApp(cfg, logger)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()
	if a.pipeline == nil || a.telegram == nil || a.dedup == nil {
		t.Fatalf("incomplete app: %+v", a)
	}
	if seen, _ := a.dedup.Seen(context.Background(), "1"); seen {
		t.Error("fresh store reported key as seen")
	}
}

func TestBuildApp_BadSelector(t *testing.T) {
	logger = newLogger(&bytes.Buffer{}, "error", "text")
	cfg := config.Defaults()
	cfg.Enricher.Product.Price = []config.Strategy{{Selector: "div >"}}
	if _, err := buildApp(cfg, logger); err == nil {
		t.Fatal("expected selector error")
	}
}

func TestCheckDedup(t *testing.T) {
	logger = newLogger(&bytes.Buffer{}, "error", "text")
	cfg := config.Defaults()
	if err := checkDedup(context.Background(), cfg); err != nil {
		t.Errorf("none backend: %v", err)
	}
	cfg.Dedup.Backend = "sqlite"
	cfg.Dedup.SQLitePath = t.TempDir() + "/d.db"
	if err := checkDedup(context.Background(), cfg); err != nil {
		t.Errorf("sqlite backend: %v", err)
	}
}
