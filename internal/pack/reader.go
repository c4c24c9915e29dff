package pack

import (
	"fmt"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

// Locator resolves a blob id to the pack it was written into. The
// Indexer implements this (internal/index.Index.Locate); it is the
// read-side counterpart to Notifier.
type Locator interface {
	Locate(blobType BlobType, id ident.Id) (packID ident.Id, ok bool)
}

// ReadBlob fetches and decompresses a single previously-packed blob.
// It is the read path the Parent Cursor uses to walk a prior
// snapshot's tree blobs without rescanning every pack in the
// repository (spec.md §4.4 "Parent Cursor").
func ReadBlob(be Backend, loc Locator, blobType BlobType, id ident.Id) ([]byte, error) {
	packID, ok := loc.Locate(blobType, id)
	if !ok {
		return nil, fmt.Errorf("pack: %s blob %s not indexed", blobType, id)
	}

	raw, err := be.ReadPack(blobType, packID)
	if err != nil {
		return nil, fmt.Errorf("pack: read %s pack %s: %w", blobType, packID, err)
	}

	gotType, objs, err := readPackFile(raw)
	if err != nil {
		return nil, fmt.Errorf("pack: parse %s pack %s: %w", blobType, packID, err)
	}
	if gotType != blobType {
		return nil, fmt.Errorf("pack: pack %s holds %s blobs, wanted %s", packID, gotType, blobType)
	}

	for _, o := range objs {
		if o.id != id {
			continue
		}
		data, err := decompress(o.algo, o.compressed)
		if err != nil {
			return nil, fmt.Errorf("pack: decompress %s blob %s: %w", blobType, id, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("pack: blob %s not found in pack %s", id, packID)
}
