package pack

import (
	"fmt"
	"sync"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

// Backend is the subset of the repository backend contract (spec.md
// §6) the Packer needs: writing a finished pack object under its own
// id. The concrete filesystem/REST implementations live in
// internal/backend.
type Backend interface {
	WritePack(blobType BlobType, packID ident.Id, data []byte) error
	ReadPack(blobType BlobType, packID ident.Id) ([]byte, error)
}

// Notifier receives newly-durable blob ids so the Indexer can update
// its in-memory view (spec.md §4.6: "the Indexer ... receives pack
// notifications from the packer"). An error here is as fatal to the
// run as a failed pack write (spec.md §4.5).
type Notifier interface {
	NotifyPacked(blobType BlobType, packID ident.Id, ids []ident.Id) error
}

// DefaultFlushThreshold is the accumulated raw byte count at which a
// Packer flushes its pending objects into a new pack file.
const DefaultFlushThreshold = 4 << 20 // 4 MiB

// Packer accumulates blobs of a single BlobType, compresses them as
// they arrive, and flushes them into pack files on a background
// goroutine once enough data has accumulated. Two independent
// instances exist in the Archiver — one for Data, one for Tree — so
// the two kinds of blob never share a pack file (spec.md §4.5).
type Packer struct {
	blobType  BlobType
	backend   Backend
	notifier  Notifier
	threshold int
	algo      CompressAlgo
	pool      *compressPool

	mu        sync.Mutex
	seen      map[ident.Id]bool // in-session dedup, this packer's own state
	pending   []object
	pendingSz int // raw bytes accumulated in pending

	flushWG  sync.WaitGroup
	errMu    sync.Mutex
	flushErr error
}

// NewPacker constructs a Packer for blobType, writing finished packs
// through backend and reporting them to notifier.
func NewPacker(blobType BlobType, backend Backend, notifier Notifier) *Packer {
	return &Packer{
		blobType:  blobType,
		backend:   backend,
		notifier:  notifier,
		threshold: DefaultFlushThreshold,
		algo:      CompressZstd,
		pool:      newCompressPool(0),
		seen:      make(map[ident.Id]bool),
	}
}

// Add compresses data and queues it for packing under id. Returns the
// number of bytes credited against the repository for this blob: 0 if
// id was already added to this Packer in this session (the caller
// must not count it again), otherwise the compressed size.
func (p *Packer) Add(data []byte, id ident.Id) (int, error) {
	p.errMu.Lock()
	flushErr := p.flushErr
	p.errMu.Unlock()
	if flushErr != nil {
		return 0, flushErr
	}

	p.mu.Lock()
	if p.seen[id] {
		p.mu.Unlock()
		return 0, nil
	}
	p.seen[id] = true
	p.mu.Unlock()

	compressed, err := p.pool.compress(p.algo, data)
	if err != nil {
		return 0, fmt.Errorf("pack: compress %s blob %s: %w", p.blobType, id, err)
	}

	obj := object{id: id, size: uint64(len(data)), compressed: compressed, algo: p.algo}

	p.mu.Lock()
	p.pending = append(p.pending, obj)
	p.pendingSz += len(data)
	shouldFlush := p.pendingSz >= p.threshold
	var batch []object
	if shouldFlush {
		batch = p.pending
		p.pending = nil
		p.pendingSz = 0
	}
	p.mu.Unlock()

	if shouldFlush {
		p.flushAsync(batch)
	}

	return len(compressed), nil
}

// flushAsync writes batch to the backend on its own goroutine; errors
// are captured and surfaced by the next Add or by Finalize.
func (p *Packer) flushAsync(batch []object) {
	p.flushWG.Add(1)
	go func() {
		defer p.flushWG.Done()
		if err := p.writeBatch(batch); err != nil {
			p.errMu.Lock()
			if p.flushErr == nil {
				p.flushErr = err
			}
			p.errMu.Unlock()
		}
	}()
}

func (p *Packer) writeBatch(batch []object) error {
	if len(batch) == 0 {
		return nil
	}
	data, err := writePackFile(p.blobType, batch)
	if err != nil {
		return fmt.Errorf("pack: assemble %s pack: %w", p.blobType, err)
	}
	packID := ident.Of(data)
	if err := p.backend.WritePack(p.blobType, packID, data); err != nil {
		return fmt.Errorf("pack: write %s pack %s: %w", p.blobType, packID, err)
	}
	ids := make([]ident.Id, len(batch))
	for i, o := range batch {
		ids[i] = o.id
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyPacked(p.blobType, packID, ids); err != nil {
			return fmt.Errorf("pack: notify indexer for %s pack %s: %w", p.blobType, packID, err)
		}
	}
	return nil
}

// Finalize flushes any partial pack, blocks until every outstanding
// write completes, and returns the first error encountered, if any.
// Any failure here is fatal to the archiver run (spec.md §4.5).
func (p *Packer) Finalize() error {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.pendingSz = 0
	p.mu.Unlock()

	if len(batch) > 0 {
		if err := p.writeBatch(batch); err != nil {
			p.errMu.Lock()
			if p.flushErr == nil {
				p.flushErr = err
			}
			p.errMu.Unlock()
		}
	}

	p.flushWG.Wait()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.flushErr
}
