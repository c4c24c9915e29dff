package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

// LocalBackend implements Backend on the local filesystem. Layout
// mirrors original_source's local.rs path() rule: Pack objects are
// sharded by the first two hex characters of their id into 256
// subdirectories, every other type is a flat directory of hex-named
// files, and Config is a single file.
type LocalBackend struct {
	root string
}

// NewLocalBackend returns a backend rooted at root. Call Create
// before first use on a fresh directory.
func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{root: root}
}

func (b *LocalBackend) Location() string { return b.root }

func (b *LocalBackend) dirFor(tpe FileType) string {
	if tpe == Config {
		return b.root
	}
	return filepath.Join(b.root, tpe.String())
}

func (b *LocalBackend) pathFor(tpe FileType, id ident.Id) string {
	if tpe == Config {
		return filepath.Join(b.root, "config")
	}
	hexID := id.String()
	if tpe == Pack {
		return filepath.Join(b.root, tpe.String(), hexID[:2], hexID)
	}
	return filepath.Join(b.root, tpe.String(), hexID)
}

// Create prepares the repository layout: one directory per file type,
// plus the 256 pack shard subdirectories, matching local.rs's create().
func (b *LocalBackend) Create() error {
	for _, tpe := range []FileType{Pack, Index, Snapshot, Key} {
		if err := os.MkdirAll(b.dirFor(tpe), 0755); err != nil {
			return fmt.Errorf("backend: create %s dir: %w", tpe, err)
		}
	}
	packDir := b.dirFor(Pack)
	for i := 0; i < 256; i++ {
		shard := filepath.Join(packDir, fmt.Sprintf("%02x", i))
		if err := os.MkdirAll(shard, 0755); err != nil {
			return fmt.Errorf("backend: create pack shard %s: %w", shard, err)
		}
	}
	return nil
}

func (b *LocalBackend) List(tpe FileType) ([]ident.Id, error) {
	entries, err := b.ListWithSize(tpe)
	if err != nil {
		return nil, err
	}
	ids := make([]ident.Id, len(entries))
	for i, e := range entries {
		ids[i] = e.Id
	}
	return ids, nil
}

func (b *LocalBackend) ListWithSize(tpe FileType) ([]Entry, error) {
	var entries []Entry

	walk := func(dir string) error {
		return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			name := filepath.Base(path)
			id, err := ident.Parse(name)
			if err != nil {
				return nil // not an object file (e.g. a .tmp leftover); skip
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Id: id, Size: uint32(info.Size())})
			return nil
		})
	}

	if err := walk(b.dirFor(tpe)); err != nil {
		return nil, fmt.Errorf("backend: list %s: %w", tpe, err)
	}
	return entries, nil
}

func (b *LocalBackend) ReadFull(tpe FileType, id ident.Id) ([]byte, error) {
	data, err := os.ReadFile(b.pathFor(tpe, id))
	if err != nil {
		return nil, fmt.Errorf("backend: read %s %s: %w", tpe, id, err)
	}
	return data, nil
}

func (b *LocalBackend) ReadPartial(tpe FileType, id ident.Id, offset, length int64) ([]byte, error) {
	f, err := os.Open(b.pathFor(tpe, id))
	if err != nil {
		return nil, fmt.Errorf("backend: open %s %s: %w", tpe, id, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("backend: read %s %s at %d+%d: %w", tpe, id, offset, length, err)
	}
	return buf, nil
}

// WriteBytes writes data to a temp file then renames it into place,
// the same atomic-write discipline internal/cas/file_cas.go uses.
func (b *LocalBackend) WriteBytes(tpe FileType, id ident.Id, data []byte) error {
	path := b.pathFor(tpe, id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("backend: mkdir for %s %s: %w", tpe, id, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("backend: create temp for %s %s: %w", tpe, id, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("backend: write %s %s: %w", tpe, id, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("backend: sync %s %s: %w", tpe, id, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backend: close %s %s: %w", tpe, id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backend: rename into place %s %s: %w", tpe, id, err)
	}
	return nil
}

func (b *LocalBackend) Remove(tpe FileType, id ident.Id) error {
	if err := os.Remove(b.pathFor(tpe, id)); err != nil {
		return fmt.Errorf("backend: remove %s %s: %w", tpe, id, err)
	}
	return nil
}

// SaveSnapshot names data by its own hash and writes it as a Snapshot
// object.
func (b *LocalBackend) SaveSnapshot(data []byte) (ident.Id, error) {
	id := ident.Of(data)
	if err := b.WriteBytes(Snapshot, id, data); err != nil {
		return ident.Id{}, err
	}
	return id, nil
}
