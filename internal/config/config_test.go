package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("expected defaults to be valid, got: %v", err)
	}
}

func TestValidate_MaxTokensBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Completion.MaxTokens = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxTokens=0")
	}

	cfg.Completion.MaxTokens = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxTokens=1 should be valid: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_EnricherTimeoutIsSingleDigitSeconds(t *testing.T) {
	cfg := Defaults()
	cfg.Enricher.TimeoutMs = 30000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for a 30s enrichment budget")
	}
}

func TestValidate_AllowedHosts(t *testing.T) {
	cfg := Defaults()
	cfg.Enricher.AllowedHosts = nil
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty allow-list")
	}

	cfg.Enricher.AllowedHosts = []string{"https://jumia.com.ng/"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for a URL in the host allow-list")
	}
}

func TestValidate_FetchMode(t *testing.T) {
	cfg := Defaults()
	cfg.Enricher.FetchMode = "curl"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown fetch mode")
	}
}

func TestValidate_ParseMode(t *testing.T) {
	for _, mode := range []string{"", "Markdown", "MarkdownV2", "HTML"} {
		cfg := Defaults()
		cfg.Telegram.ParseMode = mode
		if err := Validate(cfg); err != nil {
			t.Fatalf("parse mode %q should be valid: %v", mode, err)
		}
	}
	cfg := Defaults()
	cfg.Telegram.ParseMode = "markdown"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for lowercase parse mode")
	}
}

func TestValidate_ProfanityReplacementMustBeClean(t *testing.T) {
	cfg := Defaults()
	cfg.Rules.Profanity = []Substitution{
		{Term: "darn", Replacement: "gosh"},
		{Term: "heck", Replacement: "darn it"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error when a replacement contains a disallowed term")
	}
	if !strings.Contains(err.Error(), "rules.profanity[1]") {
		t.Fatalf("expected error to name the offending entry, got: %v", err)
	}
}

func TestValidate_DedupBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Dedup.Backend = "redis"
	cfg.Dedup.RedisAddr = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for redis backend without address")
	}

	cfg.Dedup.RedisAddr = "localhost:6379"
	if err := Validate(cfg); err != nil {
		t.Fatalf("redis backend with address should be valid: %v", err)
	}

	cfg.Dedup.Backend = "etcd"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestValidate_EmptyRepliesInFixedOrder(t *testing.T) {
	cfg := Defaults()
	cfg.Replies.Greeting = ""
	cfg.Replies.OutOfDomain = " "
	cfg.Replies.Apology = ""
	cfg.Replies.Fallback = ""
	cfg.Replies.FetchError = ""

	want := "replies.greeting must not be empty; replies.outOfDomain must not be empty; " +
		"replies.apology must not be empty; replies.fallback must not be empty; " +
		"replies.fetchError must not be empty"
	for i := 0; i < 5; i++ {
		err := Validate(cfg)
		if err == nil || err.Error() != want {
			t.Fatalf("run %d: got %v\nwant %s", i, err, want)
		}
	}
}

// --- ApplyEnv ---

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := Defaults()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"TELEGRAM_BOT_TOKEN": "123:abc",
		"FIREWORKS_API_KEY":  "fw-key",
		"MAX_TOKENS":         "256",
		"WEBHOOK_SECRET":     "s3cret",
		"PORT":               "9000",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token: got %q", cfg.Telegram.Token)
	}
	if cfg.Completion.APIKey != "fw-key" {
		t.Errorf("api key: got %q", cfg.Completion.APIKey)
	}
	if cfg.Completion.MaxTokens != 256 {
		t.Errorf("max tokens: got %d", cfg.Completion.MaxTokens)
	}
	if cfg.Telegram.WebhookSecret != "s3cret" {
		t.Errorf("secret: got %q", cfg.Telegram.WebhookSecret)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
}

func TestApplyEnv_CompletionKeyPrecedence(t *testing.T) {
	cfg := Defaults()
	_ = ApplyEnv(cfg, envMap(map[string]string{
		"COMPLETION_API_KEY": "primary",
		"FIREWORKS_API_KEY":  "legacy",
	}))
	if cfg.Completion.APIKey != "primary" {
		t.Fatalf("expected COMPLETION_API_KEY to win, got %q", cfg.Completion.APIKey)
	}
}

func TestApplyEnv_BadMaxTokens(t *testing.T) {
	cfg := Defaults()
	if err := ApplyEnv(cfg, envMap(map[string]string{"MAX_TOKENS": "lots"})); err == nil {
		t.Fatal("expected error for non-numeric MAX_TOKENS")
	}
}

// --- Load / Save ---

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("SHOPBOT_TEST_MODEL", "my-model")
	dir := t.TempDir()
	path := filepath.Join(dir, "shopbot.yaml")
	data := `
completion:
  model: ${SHOPBOT_TEST_MODEL}
  apiBase: ${SHOPBOT_TEST_UNSET:-http://localhost:9999/v1}
rules:
  domainKeywords: ["widget"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Completion.Model != "my-model" {
		t.Errorf("model: got %q", cfg.Completion.Model)
	}
	if cfg.Completion.APIBase != "http://localhost:9999/v1" {
		t.Errorf("apiBase: got %q", cfg.Completion.APIBase)
	}
	if len(cfg.Rules.DomainKeywords) != 1 || cfg.Rules.DomainKeywords[0] != "widget" {
		t.Errorf("keywords should be replaced, got %v", cfg.Rules.DomainKeywords)
	}
	// Untouched sections keep their defaults.
	if cfg.Completion.MaxTokens != 512 {
		t.Errorf("maxTokens default lost: %d", cfg.Completion.MaxTokens)
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopbot.yaml")

	original := Defaults()
	original.Completion.Model = "round-trip"
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Completion.Model != "round-trip" {
		t.Fatalf("expected round-trip, got %q", loaded.Completion.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandEnvVars_KeepsUnknown(t *testing.T) {
	got := ExpandEnvVars("token: ${SHOPBOT_DEFINITELY_UNSET}")
	if got != "token: ${SHOPBOT_DEFINITELY_UNSET}" {
		t.Fatalf("unexpected expansion: %q", got)
	}
}

// --- accessor ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "1234567890:ABCDEFGHIJ"
	cfg.Completion.APIKey = "short"

	s := Sanitize(cfg)
	if s.Telegram.Token == cfg.Telegram.Token || !strings.Contains(s.Telegram.Token, "***") {
		t.Errorf("token not masked: %q", s.Telegram.Token)
	}
	if s.Completion.APIKey != "***" {
		t.Errorf("short key should be fully masked, got %q", s.Completion.APIKey)
	}
	if cfg.Completion.APIKey != "short" {
		t.Error("Sanitize must not modify the original")
	}
}

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "completion.maxTokens")
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 512 {
		t.Fatalf("expected 512, got %v", v)
	}

	v, err = GetByPath(cfg, "enricher.allowedHosts.0")
	if err != nil {
		t.Fatal(err)
	}
	if v != "jumia.com.ng" {
		t.Fatalf("expected jumia.com.ng, got %v", v)
	}

	if _, err := GetByPath(cfg, "completion.nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestDurations(t *testing.T) {
	cfg := Defaults()
	if cfg.HandlerTimeout() != 90*time.Second {
		t.Errorf("handler timeout = %v", cfg.HandlerTimeout())
	}
	if cfg.EnrichTimeout() != 8*time.Second {
		t.Errorf("enrich timeout = %v", cfg.EnrichTimeout())
	}
	if cfg.RateLimitMaxWait() != 5*time.Second {
		t.Errorf("max wait = %v", cfg.RateLimitMaxWait())
	}
	if cfg.CompletionTimeout() != time.Minute {
		t.Errorf("completion timeout = %v", cfg.CompletionTimeout())
	}
}
