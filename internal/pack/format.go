package pack

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

// Pack wire format: a small git-pack-inspired container. Unlike a git
// pack this one carries our own 32-byte content ids (not git object
// hashes) and a single object type byte rather than git's blob/tree
// type nibble, since both Data and Tree blobs in a single pack file
// are always of the same BlobType (the Packer never mixes them).
var magicPACK = []byte{'P', 'A', 'C', 'K'}

const packVersion uint32 = 1

// CompressAlgo selects the per-object compression codec.
type CompressAlgo int

const (
	CompressZlib CompressAlgo = iota
	CompressZstd
)

// object is one packed blob, already compressed, ready to be written
// into a pack file body.
type object struct {
	id         ident.Id
	size       uint64 // uncompressed size
	compressed []byte
	algo       CompressAlgo
}

func writeObjHeader(w io.Writer, o object) error {
	if _, err := w.Write(o.id.Bytes()); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, o.size); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(o.compressed))); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, uint8(o.algo))
}

func compress(algo CompressAlgo, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch algo {
	case CompressZlib:
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case CompressZstd:
		zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("pack: unknown compression algo %d", algo)
	}
	return buf.Bytes(), nil
}

// writePackFile assembles a pack body: magic + version + blob type +
// count, then each object's header and compressed bytes, then a
// SHA-256 trailer over everything preceding it (an integrity check
// for the pack file itself, independent of the content ids inside).
func writePackFile(blobType BlobType, objs []object) ([]byte, error) {
	var body bytes.Buffer
	body.Write(magicPACK)
	if err := binary.Write(&body, binary.BigEndian, packVersion); err != nil {
		return nil, err
	}
	if err := body.WriteByte(byte(blobType)); err != nil {
		return nil, err
	}
	if err := binary.Write(&body, binary.BigEndian, uint32(len(objs))); err != nil {
		return nil, err
	}
	for _, o := range objs {
		if err := writeObjHeader(&body, o); err != nil {
			return nil, fmt.Errorf("pack: write header for %s: %w", o.id, err)
		}
		if _, err := body.Write(o.compressed); err != nil {
			return nil, err
		}
	}
	sum := sha256.Sum256(body.Bytes())
	body.Write(sum[:])
	return body.Bytes(), nil
}

// readPackFile parses a pack file written by writePackFile, verifying
// its trailer checksum and returning its blob type and the still-
// compressed objects it contains.
func readPackFile(data []byte) (BlobType, []object, error) {
	const trailerLen = sha256.Size
	if len(data) < len(magicPACK)+4+1+4+trailerLen {
		return 0, nil, fmt.Errorf("pack: file too short")
	}
	body, trailer := data[:len(data)-trailerLen], data[len(data)-trailerLen:]

	got := sha256.Sum256(body)
	if !bytes.Equal(got[:], trailer) {
		return 0, nil, fmt.Errorf("pack: trailer checksum mismatch")
	}

	r := bytes.NewReader(body)
	magic := make([]byte, len(magicPACK))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, magicPACK) {
		return 0, nil, fmt.Errorf("pack: bad magic")
	}
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return 0, nil, err
	}
	if version != packVersion {
		return 0, nil, fmt.Errorf("pack: unsupported version %d", version)
	}
	blobTypeByte, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	blobType := BlobType(blobTypeByte)

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return 0, nil, err
	}

	objs := make([]object, 0, count)
	for i := uint32(0); i < count; i++ {
		var idBytes [ident.Size]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return 0, nil, fmt.Errorf("pack: read id %d: %w", i, err)
		}
		var size uint64
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return 0, nil, err
		}
		var compLen uint32
		if err := binary.Read(r, binary.BigEndian, &compLen); err != nil {
			return 0, nil, err
		}
		var algoByte uint8
		if err := binary.Read(r, binary.BigEndian, &algoByte); err != nil {
			return 0, nil, err
		}
		compressed := make([]byte, compLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return 0, nil, fmt.Errorf("pack: read compressed bytes %d: %w", i, err)
		}
		objs = append(objs, object{
			id:         ident.Id(idBytes),
			size:       size,
			compressed: compressed,
			algo:       CompressAlgo(algoByte),
		})
	}

	return blobType, objs, nil
}

func decompress(algo CompressAlgo, compressed []byte) ([]byte, error) {
	switch algo {
	case CompressZlib:
		zr, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressZstd:
		zr, err := zstd.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("pack: unknown compression algo %d", algo)
	}
}
