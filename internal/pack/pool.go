package pack

import (
	"bytes"
	"runtime"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DefaultWorkers bounds the compression worker pool when the caller
// doesn't specify one, matching the teacher's own default for its
// concurrent pack writer.
const DefaultWorkers = 8

// compressPool runs blob compression on a bounded goroutine pool,
// reusing zstd encoders across calls via sync.Pool the way the
// teacher's CompressionPool does, so that a steady stream of chunks
// doesn't allocate a fresh encoder per blob.
type compressPool struct {
	sem      chan struct{}
	zstdPool sync.Pool
}

func newCompressPool(workers int) *compressPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers > DefaultWorkers {
			workers = DefaultWorkers
		}
	}
	return &compressPool{
		sem: make(chan struct{}, workers),
		zstdPool: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
				return enc
			},
		},
	}
}

// compress runs compression for algo/data under the pool's concurrency
// bound, reusing a pooled zstd encoder when algo is CompressZstd.
// Blocks if all workers are busy (backpressure, spec §5).
func (p *compressPool) compress(algo CompressAlgo, data []byte) ([]byte, error) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	if algo != CompressZstd {
		return compress(algo, data)
	}

	var buf bytes.Buffer
	enc := p.zstdPool.Get().(*zstd.Encoder)
	defer p.zstdPool.Put(enc)
	enc.Reset(&buf)
	if _, err := enc.Write(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
