package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if *cfg != *want {
		t.Fatalf("got %+v, want default %+v", cfg, want)
	}
}

func TestLoadOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("repository_url: quic://repo.example.com:4433\nchunk_avg_bytes: 32768\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.RepositoryURL != "quic://repo.example.com:4433" {
		t.Fatalf("unexpected repository_url: %s", cfg.RepositoryURL)
	}
	if cfg.ChunkAvgBytes != 32768 {
		t.Fatalf("unexpected chunk_avg_bytes: %d", cfg.ChunkAvgBytes)
	}

	want := Default()
	if cfg.ChunkMinBytes != want.ChunkMinBytes || cfg.ChunkMaxBytes != want.ChunkMaxBytes {
		t.Fatalf("unset fields should retain default values: %+v", cfg)
	}
	if cfg.StatCacheEnabled != want.StatCacheEnabled {
		t.Fatalf("stat_cache_enabled should retain default when absent from file")
	}
}

func TestLoadStatCacheExplicitFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("stat_cache_enabled: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StatCacheEnabled {
		t.Fatalf("expected stat_cache_enabled to be explicitly disabled")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("repository_url: [unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected a parse error")
	}
}
