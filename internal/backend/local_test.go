package backend

import (
	"bytes"
	"testing"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

func newTestLocalBackend(t *testing.T) *LocalBackend {
	t.Helper()
	be := NewLocalBackend(t.TempDir())
	if err := be.Create(); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return be
}

func TestLocalBackendWriteReadRoundTrip(t *testing.T) {
	be := newTestLocalBackend(t)
	data := []byte("pack file bytes")
	id := ident.Of(data)

	if err := be.WriteBytes(Pack, id, data); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	got, err := be.ReadFull(Pack, id)
	if err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read data should match what was written")
	}
}

func TestLocalBackendReadPartial(t *testing.T) {
	be := newTestLocalBackend(t)
	data := []byte("0123456789abcdef")
	id := ident.Of(data)
	if err := be.WriteBytes(Pack, id, data); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	got, err := be.ReadPartial(Pack, id, 4, 6)
	if err != nil {
		t.Fatalf("ReadPartial failed: %v", err)
	}
	if !bytes.Equal(got, data[4:10]) {
		t.Errorf("ReadPartial returned %q, want %q", got, data[4:10])
	}
}

func TestLocalBackendListWithSize(t *testing.T) {
	be := newTestLocalBackend(t)
	var ids []ident.Id
	for _, s := range []string{"one", "two", "three"} {
		data := []byte(s)
		id := ident.Of(data)
		if err := be.WriteBytes(Pack, id, data); err != nil {
			t.Fatalf("WriteBytes failed: %v", err)
		}
		ids = append(ids, id)
	}

	entries, err := be.ListWithSize(Pack)
	if err != nil {
		t.Fatalf("ListWithSize failed: %v", err)
	}
	if len(entries) != len(ids) {
		t.Fatalf("expected %d entries, got %d", len(ids), len(entries))
	}

	seen := make(map[ident.Id]bool)
	for _, e := range entries {
		seen[e.Id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("listed entries missing id %s", id)
		}
	}
}

func TestLocalBackendRemove(t *testing.T) {
	be := newTestLocalBackend(t)
	data := []byte("removable")
	id := ident.Of(data)
	if err := be.WriteBytes(Pack, id, data); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}
	if err := be.Remove(Pack, id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := be.ReadFull(Pack, id); err == nil {
		t.Error("ReadFull should fail after Remove")
	}
}

func TestLocalBackendSaveSnapshotNamesByHash(t *testing.T) {
	be := newTestLocalBackend(t)
	data := []byte(`{"host":"test"}`)

	id, err := be.SaveSnapshot(data)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if id != ident.Of(data) {
		t.Error("SaveSnapshot should name the manifest by the hash of its bytes")
	}

	got, err := be.ReadFull(Snapshot, id)
	if err != nil {
		t.Fatalf("ReadFull(Snapshot) failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("saved snapshot content should round trip unchanged")
	}
}

func TestLocalBackendConfigIgnoresId(t *testing.T) {
	be := newTestLocalBackend(t)
	data := []byte("poly config")

	if err := be.WriteBytes(Config, ident.Zero, data); err != nil {
		t.Fatalf("WriteBytes(Config) failed: %v", err)
	}
	got, err := be.ReadFull(Config, ident.Of([]byte("irrelevant")))
	if err != nil {
		t.Fatalf("ReadFull(Config) failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Config is addressed by a fixed name, so any id should read the same file")
	}
}
