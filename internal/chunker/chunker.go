// Package chunker splits file content into content-defined chunks
// using a rolling hash over an irreducible polynomial, so that an
// insertion or deletion inside a file shifts chunk boundaries only
// locally instead of re-chunking the whole file.
package chunker

import (
	"fmt"
	"io"

	resticchunker "github.com/restic/chunker"
)

// Polynomial is the irreducible polynomial the rolling hash is built
// over. Two chunkers with the same Polynomial and the same bytes
// produce the same chunk boundaries; different repositories use
// different polynomials so that identical plaintext from unrelated
// repositories doesn't fingerprint identically on the wire.
type Polynomial = resticchunker.Pol

// NewRandomPolynomial picks a random irreducible polynomial suitable
// for use as a repository's chunking parameter. Called once at
// repository-init time; the result is persisted in the repository
// config and reused for every subsequent backup.
func NewRandomPolynomial(rand io.Reader) (Polynomial, error) {
	pol, err := resticchunker.RandomPolynomial(rand)
	if err != nil {
		return 0, fmt.Errorf("chunker: generate polynomial: %w", err)
	}
	return pol, nil
}

// Default min/max chunk sizes, matching restic/chunker's own defaults
// (the buzhash window is tuned for these bounds).
const (
	MinSize = resticchunker.MinSize
	MaxSize = resticchunker.MaxSize
)

// Chunk is one content-defined chunk of a file. Cut is the rolling-hash
// value at the chunk's end (for the final chunk and for chunks forced
// at MaxSize, the hash value where the chunk stopped), exposed so tests
// can check that boundaries are a pure function of content, not
// buffering.
type Chunk struct {
	Data []byte
	Cut  uint64
}

// Chunker incrementally splits a reader's content into Chunks.
type Chunker struct {
	inner *resticchunker.Chunker
	buf   []byte
}

// New wraps r in a Chunker using pol as the rolling-hash polynomial.
func New(r io.Reader, pol Polynomial) *Chunker {
	return &Chunker{
		inner: resticchunker.New(r, pol),
		buf:   make([]byte, MinSize),
	}
}

// Next returns the next chunk, or io.EOF when the reader is exhausted.
func (c *Chunker) Next() (Chunk, error) {
	chunk, err := c.inner.Next(c.buf)
	if err != nil {
		return Chunk{}, err
	}
	// the underlying chunker reuses/grows c.buf across calls; keep our
	// handle to it in sync the same way restic's own callers do.
	c.buf = chunk.Data
	return Chunk{Data: chunk.Data, Cut: chunk.Cut}, nil
}

// All reads every chunk from r until io.EOF, invoking fn for each.
func All(r io.Reader, pol Polynomial, fn func(Chunk) error) error {
	ck := New(r, pol)
	for {
		chunk, err := ck.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chunker: read chunk: %w", err)
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
}
