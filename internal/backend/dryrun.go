package backend

import "github.com/nilsson-dev/vaultic/internal/ident"

// DryRunBackend wraps another Backend and silently discards writes,
// matching original_source's DryRunBackend::new(be, opts.dry_run):
// reads pass through so dedup/parent lookups behave exactly as in a
// real run, but nothing new is ever durably written. The archiver's
// summary still reflects what would have been packed, since the
// Packer/Indexer layer sees its Add/NotifyPacked calls succeed.
type DryRunBackend struct {
	inner Backend
}

// NewDryRunBackend wraps inner. If dryRun is false, inner is returned
// unwrapped so the common case carries no extra indirection.
func NewDryRunBackend(inner Backend, dryRun bool) Backend {
	if !dryRun {
		return inner
	}
	return &DryRunBackend{inner: inner}
}

func (b *DryRunBackend) Location() string { return b.inner.Location() }
func (b *DryRunBackend) Create() error    { return nil }

func (b *DryRunBackend) List(tpe FileType) ([]ident.Id, error) { return b.inner.List(tpe) }
func (b *DryRunBackend) ListWithSize(tpe FileType) ([]Entry, error) {
	return b.inner.ListWithSize(tpe)
}
func (b *DryRunBackend) ReadFull(tpe FileType, id ident.Id) ([]byte, error) {
	return b.inner.ReadFull(tpe, id)
}
func (b *DryRunBackend) ReadPartial(tpe FileType, id ident.Id, offset, length int64) ([]byte, error) {
	return b.inner.ReadPartial(tpe, id, offset, length)
}

func (b *DryRunBackend) WriteBytes(tpe FileType, id ident.Id, data []byte) error { return nil }
func (b *DryRunBackend) Remove(tpe FileType, id ident.Id) error                  { return nil }

// SaveSnapshot still computes the id the manifest would have been
// named by, so callers can report it, but never writes it.
func (b *DryRunBackend) SaveSnapshot(data []byte) (ident.Id, error) {
	return ident.Of(data), nil
}
