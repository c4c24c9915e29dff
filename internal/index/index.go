// Package index implements the Indexer (write side) and IndexedBackend
// (read side) of spec.md §4.6: a durable record of which blob ids are
// already present in the repository, shared across a run's packer
// workers under a single-writer discipline.
package index

import (
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/nilsson-dev/vaultic/internal/ident"
	"github.com/nilsson-dev/vaultic/internal/pack"
)

var (
	bucketData = []byte("data")
	bucketTree = []byte("tree")

	// bucketLocationData/bucketLocationTree map a blob id to the hex id
	// of the pack file it was written into, so a later run (the Parent
	// Cursor reading a previous snapshot's trees, or a restore) can find
	// blob bytes without rescanning every pack.
	bucketLocationData = []byte("location-data")
	bucketLocationTree = []byte("location-tree")
)

// Index is the durable existence table backing both the write side
// (Indexer, via NotifyPacked) and the read side (IndexedBackend, via
// HasData/HasTree) of spec.md §4.6. Internally it keeps an in-memory
// set mirrored to a bbolt database, matching the teacher's
// internal/store/kv.go bucket-per-concern layout adapted from a
// hash-mapping table to a blob-existence table.
//
// Mutations are serialized by mu (spec.md §5: "single-writer
// discipline: writers serialize updates; readers see a consistent
// snapshot"); reads take the read lock only. NotifyPacked holds the
// write lock for its whole call, including the bbolt transaction, so
// HasData/HasTree callers wait for any in-progress notification's
// durable write to finish.
type Index struct {
	db *bbolt.DB

	mu      sync.RWMutex
	data    map[ident.Id]bool
	tree    map[ident.Id]bool
	locData map[ident.Id]ident.Id
	locTree map[ident.Id]ident.Id
	dryRun  bool
}

// Open opens (creating if necessary) the bbolt-backed index at path
// and loads its existing contents into memory.
func Open(path string) (*Index, error) {
	db, err := bbolt.Open(path, 0666, nil)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}

	idx := &Index{
		db:      db,
		data:    make(map[ident.Id]bool),
		tree:    make(map[ident.Id]bool),
		locData: make(map[ident.Id]ident.Id),
		locTree: make(map[ident.Id]ident.Id),
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketData, bucketTree, bucketLocationData, bucketLocationTree} {
			if _, e := tx.CreateBucketIfNotExists(b); e != nil {
				return e
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: init buckets: %w", err)
	}

	if err := idx.load(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return idx, nil
}

func (ix *Index) load() error {
	return ix.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketData).ForEach(func(k, v []byte) error {
			id, err := ident.Parse(string(k))
			if err != nil {
				return fmt.Errorf("index: corrupt data key %q: %w", k, err)
			}
			ix.data[id] = true
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTree).ForEach(func(k, v []byte) error {
			id, err := ident.Parse(string(k))
			if err != nil {
				return fmt.Errorf("index: corrupt tree key %q: %w", k, err)
			}
			ix.tree[id] = true
			return nil
		}); err != nil {
			return err
		}
		if err := loadLocations(tx, bucketLocationData, ix.locData); err != nil {
			return err
		}
		return loadLocations(tx, bucketLocationTree, ix.locTree)
	})
}

func loadLocations(tx *bbolt.Tx, bucket []byte, dst map[ident.Id]ident.Id) error {
	return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		id, err := ident.Parse(string(k))
		if err != nil {
			return fmt.Errorf("index: corrupt location key %q: %w", k, err)
		}
		packID, err := ident.Parse(string(v))
		if err != nil {
			return fmt.Errorf("index: corrupt location value for %s: %w", id, err)
		}
		dst[id] = packID
		return nil
	})
}

// SetDryRun marks ix as backing a dry run: NotifyPacked still updates
// the in-memory view (so in-session dedup and summary accounting stay
// correct for the rest of this run) but stops persisting to the
// durable bbolt database, since the packs those ids name were never
// actually written (spec.md §4.7: "dry-run mode ... no other behavior
// changes"). Without this, a dry run would mark blobs as known to a
// later *real* run whose packs genuinely don't exist, violating spec.md
// §8 invariant 1.
func (ix *Index) SetDryRun(dryRun bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.dryRun = dryRun
}

// HasData reports whether id is a known data blob: already committed
// by a previous snapshot, or already packed by this run (spec.md
// §4.6, IndexedBackend read side).
func (ix *Index) HasData(id ident.Id) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.data[id]
}

// HasTree reports whether id is a known tree blob.
func (ix *Index) HasTree(id ident.Id) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree[id]
}

// NotifyPacked implements pack.Notifier: the Packer calls this once a
// batch of blobs is durably written under packID, and the in-memory
// view (and its durable backing) is updated so that subsequent
// HasData/HasTree/Locate calls are immediately authoritative (spec.md
// §5: "after packer finalize returns, every blob it accepted is
// visible to index.has_*").
func (ix *Index) NotifyPacked(blobType pack.BlobType, packID ident.Id, ids []ident.Id) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	bucket, locBucket := bucketData, bucketLocationData
	set, loc := ix.data, ix.locData
	if blobType == pack.Tree {
		bucket, locBucket = bucketTree, bucketLocationTree
		set, loc = ix.tree, ix.locTree
	}

	if !ix.dryRun {
		err := ix.db.Update(func(tx *bbolt.Tx) error {
			b, lb := tx.Bucket(bucket), tx.Bucket(locBucket)
			for _, id := range ids {
				if err := b.Put([]byte(id.String()), []byte{1}); err != nil {
					return err
				}
				if err := lb.Put([]byte(id.String()), []byte(packID.String())); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("index: persist %s ids for pack %s: %w", blobType, packID, err)
		}
	}

	for _, id := range ids {
		set[id] = true
		loc[id] = packID
	}
	return nil
}

// Locate reports which pack file holds the blob id of the given type,
// if known, supporting reads of previously-packed blobs (e.g. the
// Parent Cursor loading a prior snapshot's tree nodes).
func (ix *Index) Locate(blobType pack.BlobType, id ident.Id) (ident.Id, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	loc := ix.locData
	if blobType == pack.Tree {
		loc = ix.locTree
	}
	packID, ok := loc[id]
	return packID, ok
}

// Close releases the underlying bbolt database.
func (ix *Index) Close() error {
	return ix.db.Close()
}
