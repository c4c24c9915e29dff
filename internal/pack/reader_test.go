package pack

import (
	"bytes"
	"testing"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

func TestReadBlobRoundTripsThroughPacker(t *testing.T) {
	be := newFakeBackend()
	n := newFakeNotifier()
	p := NewPacker(Data, be, n)

	payload := []byte("the actual blob bytes")
	id := ident.Of(payload)
	if _, err := p.Add(payload, id); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := p.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	got, err := ReadBlob(be, n, Data, id)
	if err != nil {
		t.Fatalf("ReadBlob failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("ReadBlob should return the original uncompressed bytes")
	}
}

func TestReadBlobUnknownIdFails(t *testing.T) {
	be := newFakeBackend()
	n := newFakeNotifier()

	if _, err := ReadBlob(be, n, Data, ident.Of([]byte("never added"))); err == nil {
		t.Error("expected an error for a blob the Locator has no entry for")
	}
}
