// Package config handles the repository-wide configuration object
// (persisted once, at repository creation) and the per-run switches a
// backup invocation supplies (spec.md §6: "Configuration switches
// observable by the core").
package config

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nilsson-dev/vaultic/internal/chunker"
)

// RepositoryConfig is written once, at repository init, and read by
// every later run against that repository. Above all it carries the
// chunking polynomial: every archiver run against this repository must
// use the same one, or chunk boundaries (and therefore dedup) stop
// lining up with what is already stored.
type RepositoryConfig struct {
	Poly             uint64 `json:"poly"`
	ChunkMinSize     uint   `json:"chunk_min_size,omitempty"`
	ChunkMaxSize     uint   `json:"chunk_max_size,omitempty"`
	CompressionLevel int    `json:"compression_level,omitempty"`
}

// NewRepositoryConfig generates a fresh config for a new repository,
// picking a random chunking polynomial (spec.md §9: "the polynomial is
// generated once, at repository-init time, and persisted").
func NewRepositoryConfig() (*RepositoryConfig, error) {
	pol, err := chunker.NewRandomPolynomial(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("config: generate polynomial: %w", err)
	}
	return &RepositoryConfig{Poly: uint64(pol)}, nil
}

// Polynomial returns the repository's chunking polynomial.
func (c *RepositoryConfig) Polynomial() chunker.Polynomial {
	return chunker.Polynomial(c.Poly)
}

// Load reads and parses a repository config from data (typically the
// bytes returned by Backend.ReadFull(Config, ...)).
func Load(data []byte) (*RepositoryConfig, error) {
	var cfg RepositoryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if cfg.Poly == 0 {
		return nil, fmt.Errorf("config: missing or zero poly")
	}
	return &cfg, nil
}

// Marshal serializes c for writing via Backend.WriteBytes(Config, ...).
func (c *RepositoryConfig) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return data, nil
}

// DeleteMode mirrors snapshot.DeleteKind's vocabulary at the CLI
// boundary, before a concrete After duration is resolved to a time.
type DeleteMode int

const (
	DeleteModeNotSet DeleteMode = iota
	DeleteModeNever
	DeleteModeAfter
)

// RunConfig carries the switches a single backup invocation supplies;
// none of it is persisted (spec.md §6 lists these as the non-Poly
// configuration switches the core observes).
type RunConfig struct {
	IgnoreCtime    bool
	IgnoreInode    bool
	Force          bool // disables parent lookup entirely
	Parent         string
	DryRun         bool
	Tags           []string
	DeleteMode     DeleteMode
	DeleteAfter    time.Duration
	AsPath         string
	Host           string
	StdinFilename  string
	HashWorkers    int
}

// LoadLocalCache loads a cached copy of the repository config from a
// local path, used so `vaultic backup` need not round-trip to the
// backend just to read the polynomial on every invocation. Absence of
// the file is not an error; callers fetch from the backend instead.
func LoadLocalCache(path string) (*RepositoryConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read cache %s: %w", path, err)
	}
	return Load(data)
}

// SaveLocalCache writes cfg to path for later LoadLocalCache calls.
func SaveLocalCache(path string, cfg *RepositoryConfig) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create cache dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
