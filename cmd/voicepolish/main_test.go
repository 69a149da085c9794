package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"voicepolish/internal/config"
)

func TestResolveConfigPath(t *testing.T) {
	t.Chdir(t.TempDir())
	configPath = ""
	t.Cleanup(func() { configPath = "" })

	if got := resolveConfigPath(); got != "" {
		t.Fatalf("expected no config without a file, got %q", got)
	}
	if got := configFile(); got != config.DefaultConfigPath() {
		t.Fatalf("expected default write path, got %q", got)
	}

	if err := os.WriteFile(config.DefaultConfigPath(), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := resolveConfigPath(); got != config.DefaultConfigPath() {
		t.Fatalf("expected default file to be picked up, got %q", got)
	}

	configPath = "custom.yaml"
	if got := resolveConfigPath(); got != "custom.yaml" {
		t.Fatalf("flag should win, got %q", got)
	}
}

func TestDisplayConfig_WorksWithoutCredentials(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvTelegramToken, "")
	t.Setenv(config.EnvAPIKey, "")
	configPath = ""

	cfg, err := displayConfig()
	if err != nil {
		t.Fatalf("expected config without credentials, got %v", err)
	}
	if cfg.Inference.TranscriptionModel != "whisper-large-v3" {
		t.Fatalf("unexpected model %q", cfg.Inference.TranscriptionModel)
	}

	t.Setenv(config.EnvAPIKey, "gsk_1234567890abcdef")
	cfg, err = displayConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Inference.APIKey == "gsk_1234567890abcdef" {
		t.Fatal("API key should be masked")
	}
}

func TestNewLogger_Level(t *testing.T) {
	ctx := context.Background()
	if !newLogger("debug").Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug level should enable debug")
	}
	if newLogger("warn").Enabled(ctx, slog.LevelInfo) {
		t.Fatal("warn level should not enable info")
	}
	if !newLogger("").Enabled(ctx, slog.LevelInfo) {
		t.Fatal("default level should be info")
	}
}

func TestCheckWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	if err := checkWritable(dir); err != nil {
		t.Fatalf("expected writable dir, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("probe file left behind: %v", entries)
	}
}

func TestCheckPort_Free(t *testing.T) {
	if err := checkPort("127.0.0.1", 0); err != nil {
		t.Fatalf("ephemeral port should bind: %v", err)
	}
}
