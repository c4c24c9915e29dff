package pack

import (
	"bytes"
	"testing"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("some content to compress"), 100)

	for _, algo := range []CompressAlgo{CompressZlib, CompressZstd} {
		compressed, err := compress(algo, data)
		if err != nil {
			t.Fatalf("compress(%d) failed: %v", algo, err)
		}
		got, err := decompress(algo, compressed)
		if err != nil {
			t.Fatalf("decompress(%d) failed: %v", algo, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("algo %d: round trip mismatch", algo)
		}
	}
}

func TestWriteReadPackFileRoundTrip(t *testing.T) {
	o1 := object{id: ident.Of([]byte("a")), size: 1}
	o2 := object{id: ident.Of([]byte("b")), size: 2}

	var err error
	o1.compressed, err = compress(CompressZstd, []byte("a"))
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	o1.algo = CompressZstd
	o2.compressed, err = compress(CompressZstd, []byte("bb"))
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	o2.algo = CompressZstd

	data, err := writePackFile(Data, []object{o1, o2})
	if err != nil {
		t.Fatalf("writePackFile failed: %v", err)
	}

	blobType, objs, err := readPackFile(data)
	if err != nil {
		t.Fatalf("readPackFile failed: %v", err)
	}
	if blobType != Data {
		t.Errorf("expected blob type %s, got %s", Data, blobType)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}
	if objs[0].id != o1.id || objs[1].id != o2.id {
		t.Error("object ids did not round trip in order")
	}
}

func TestReadPackFileRejectsCorruptTrailer(t *testing.T) {
	o := object{id: ident.Of([]byte("a")), size: 1}
	var err error
	o.compressed, err = compress(CompressZstd, []byte("a"))
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	o.algo = CompressZstd

	data, err := writePackFile(Tree, []object{o})
	if err != nil {
		t.Fatalf("writePackFile failed: %v", err)
	}

	corrupt := bytes.Clone(data)
	corrupt[len(corrupt)-1] ^= 0xff

	if _, _, err := readPackFile(corrupt); err == nil {
		t.Error("expected an error for a pack with a corrupted trailer")
	}
}

func TestReadPackFileRejectsTruncatedInput(t *testing.T) {
	if _, _, err := readPackFile([]byte("short")); err == nil {
		t.Error("expected an error for a pack file shorter than the fixed header")
	}
}
