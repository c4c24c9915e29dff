package config

import (
	"path/filepath"
	"testing"
)

func TestNewRepositoryConfigPicksNonZeroPoly(t *testing.T) {
	cfg, err := NewRepositoryConfig()
	if err != nil {
		t.Fatalf("NewRepositoryConfig failed: %v", err)
	}
	if cfg.Poly == 0 {
		t.Error("expected a non-zero chunking polynomial")
	}
}

func TestMarshalLoadRoundTrip(t *testing.T) {
	cfg, err := NewRepositoryConfig()
	if err != nil {
		t.Fatalf("NewRepositoryConfig failed: %v", err)
	}
	cfg.ChunkMinSize = 512 * 1024
	cfg.ChunkMaxSize = 8 * 1024 * 1024

	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	got, err := Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Poly != cfg.Poly {
		t.Error("poly should round trip through Marshal/Load")
	}
	if got.ChunkMinSize != cfg.ChunkMinSize || got.ChunkMaxSize != cfg.ChunkMaxSize {
		t.Error("chunk size bounds should round trip through Marshal/Load")
	}
}

func TestLoadRejectsZeroPoly(t *testing.T) {
	if _, err := Load([]byte(`{"poly":0}`)); err == nil {
		t.Error("Load should reject a config with poly 0")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	if _, err := Load([]byte(`not json`)); err == nil {
		t.Error("Load should reject malformed JSON")
	}
}

func TestLocalCacheRoundTrip(t *testing.T) {
	cfg, err := NewRepositoryConfig()
	if err != nil {
		t.Fatalf("NewRepositoryConfig failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	if err := SaveLocalCache(path, cfg); err != nil {
		t.Fatalf("SaveLocalCache failed: %v", err)
	}

	got, err := LoadLocalCache(path)
	if err != nil {
		t.Fatalf("LoadLocalCache failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a non-nil cached config")
	}
	if got.Poly != cfg.Poly {
		t.Error("cached poly should match the saved config")
	}
}

func TestLoadLocalCacheMissingFileIsNotAnError(t *testing.T) {
	got, err := LoadLocalCache(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("expected no error for a missing cache file, got %v", err)
	}
	if got != nil {
		t.Error("expected a nil config for a missing cache file")
	}
}
