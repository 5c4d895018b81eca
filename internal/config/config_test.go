package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.LLM.Provider)
	}
	if cfg.Analysis.DedupThreshold != 0.88 {
		t.Errorf("expected dedup threshold 0.88, got %v", cfg.Analysis.DedupThreshold)
	}
	if cfg.Analysis.MaxSplitParts != 5 {
		t.Errorf("expected max split parts 5, got %d", cfg.Analysis.MaxSplitParts)
	}
	if cfg.LLM.RequestTimeout.Std() != 60*time.Second {
		t.Errorf("expected 60s request timeout, got %v", cfg.LLM.RequestTimeout.Std())
	}
	if len(cfg.Lexicon.Profanity) == 0 {
		t.Error("expected profanity terms to be populated")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: openai
analysis:
  dedup_threshold: 0.9
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.Analysis.DedupThreshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %v", cfg.Analysis.DedupThreshold)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.LLM.OllamaURL)
	}
	if cfg.Analysis.Version != "v1" {
		t.Errorf("expected default analyzer version, got %q", cfg.Analysis.Version)
	}
}

func TestParseRejectsBadThreshold(t *testing.T) {
	if _, err := parse([]byte("analysis:\n  dedup_threshold: 1.5\n")); err == nil {
		t.Error("expected error for threshold above 1")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	if _, err := parse([]byte("llm:\n  request_timeout: soon\n")); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Lexicon.SeverityPatterns) == 0 {
		t.Error("expected severity patterns to be populated from file")
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{}
	cfg.Analysis.Timezone = "Asia/Seoul"
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.String() != "Asia/Seoul" {
		t.Errorf("expected Asia/Seoul, got %s", loc)
	}

	cfg.Analysis.Timezone = "Nowhere/Land"
	if _, err := cfg.Location(); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.Schedule != "0 0 6 * * MON" {
		t.Errorf("unexpected default schedule %q", cfg.Schedule)
	}
	if len(cfg.ActionRules.Operational) == 0 {
		t.Error("expected operational action rules")
	}
}
