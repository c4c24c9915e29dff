// Package backend implements the repository backend contract spec.md
// §6 consumes: listing, reading, writing and removing objects by id,
// plus atomically naming and saving a snapshot manifest.
package backend

import (
	"fmt"

	"github.com/nilsson-dev/vaultic/internal/ident"
	"github.com/nilsson-dev/vaultic/internal/pack"
)

// FileType is the kind of object a backend call addresses.
type FileType int

const (
	Config FileType = iota
	Pack
	Index
	Snapshot
	Key
)

func (t FileType) String() string {
	switch t {
	case Config:
		return "config"
	case Pack:
		return "data"
	case Index:
		return "index"
	case Snapshot:
		return "snapshots"
	case Key:
		return "keys"
	default:
		return "unknown"
	}
}

// Entry is one listed object: its id and, where the backend can
// report it cheaply, its size.
type Entry struct {
	Id   ident.Id
	Size uint32
}

// Backend is the full contract the archiver's surrounding tooling
// (not the engine itself, which only needs pack.Backend and
// SaveSnapshot) relies on: enumeration, reads, writes and repository
// bootstrap.
type Backend interface {
	// Location returns a human-readable identifier for this backend
	// (path or URL), for logging.
	Location() string

	Create() error

	List(tpe FileType) ([]ident.Id, error)
	ListWithSize(tpe FileType) ([]Entry, error)

	ReadFull(tpe FileType, id ident.Id) ([]byte, error)
	ReadPartial(tpe FileType, id ident.Id, offset, length int64) ([]byte, error)

	WriteBytes(tpe FileType, id ident.Id, data []byte) error
	Remove(tpe FileType, id ident.Id) error

	// SaveSnapshot writes a serialized snapshot manifest and returns
	// the id it was named by (the hash of data), per spec.md §6's
	// "save_file(manifest) -> Id atomically writes and names a
	// snapshot-family object by its content hash."
	SaveSnapshot(data []byte) (ident.Id, error)
}

// packAdapter adapts any Backend to pack.Backend, so a Packer can write
// pack objects without knowing about the rest of the contract.
type packAdapter struct{ Backend }

// AsPackBackend exposes be as a pack.Backend.
func AsPackBackend(be Backend) pack.Backend {
	return packAdapter{be}
}

func (a packAdapter) WritePack(blobType pack.BlobType, packID ident.Id, data []byte) error {
	if err := a.WriteBytes(Pack, packID, data); err != nil {
		return fmt.Errorf("backend: write %s pack %s: %w", blobType, packID, err)
	}
	return nil
}

func (a packAdapter) ReadPack(blobType pack.BlobType, packID ident.Id) ([]byte, error) {
	data, err := a.ReadFull(Pack, packID)
	if err != nil {
		return nil, fmt.Errorf("backend: read %s pack %s: %w", blobType, packID, err)
	}
	return data, nil
}
