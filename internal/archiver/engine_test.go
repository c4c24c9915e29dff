package archiver

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	resticchunker "github.com/restic/chunker"

	"github.com/nilsson-dev/vaultic/internal/chunker"
	"github.com/nilsson-dev/vaultic/internal/ident"
	"github.com/nilsson-dev/vaultic/internal/index"
	"github.com/nilsson-dev/vaultic/internal/pack"
	"github.com/nilsson-dev/vaultic/internal/snapshot"
	"github.com/nilsson-dev/vaultic/internal/tree"
)

// memBackend is an in-memory stand-in for internal/backend's real
// implementations, satisfying both pack.Backend and SnapshotSaver so
// a single value can play both roles the way cmd/vaultic's CLI wires
// a real Backend through backend.AsPackBackend.
type memBackend struct {
	mu    sync.Mutex
	packs map[ident.Id][]byte
	snaps map[ident.Id][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{packs: make(map[ident.Id][]byte), snaps: make(map[ident.Id][]byte)}
}

func (b *memBackend) WritePack(blobType pack.BlobType, packID ident.Id, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.packs[packID] = data
	return nil
}

func (b *memBackend) ReadPack(blobType pack.BlobType, packID ident.Id) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.packs[packID], nil
}

func (b *memBackend) SaveSnapshot(data []byte) (ident.Id, error) {
	id := ident.Of(data)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snaps[id] = data
	return id, nil
}

func testPolynomial(t *testing.T) chunker.Polynomial {
	t.Helper()
	pol, err := resticchunker.RandomPolynomial(rand.Reader)
	if err != nil {
		t.Fatalf("RandomPolynomial failed: %v", err)
	}
	return pol
}

func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("index.Open failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func newArchiver(t *testing.T, be *memBackend, idx *index.Index, parentTree ident.Id, policy EqualityPolicy) *Archiver {
	t.Helper()
	snap := snapshot.New([]string{"/root"}, "testhost", nil)
	cfg := Config{Poly: testPolynomial(t), Policy: policy}
	a, err := New(be, be, idx, parentTree, snap, cfg, NopLogger{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func dirNode(name string, mtime time.Time) *tree.Node {
	return &tree.Node{Name: name, Kind: tree.KindDir, Meta: tree.Metadata{Mode: 0o40755, Mtime: mtime}}
}

func fileNodeFor(name string, size uint64, mtime time.Time) *tree.Node {
	return &tree.Node{Name: name, Kind: tree.KindFile, Meta: tree.Metadata{Mode: 0o100644, Size: size, Mtime: mtime}}
}

func TestEngineFirstBackupCountsEverythingNew(t *testing.T) {
	be := newMemBackend()
	idx := newTestIndex(t)
	a := newArchiver(t, be, idx, ident.Id{}, EqualityPolicy{})

	mtime := time.Unix(1700000000, 0)
	root := dirNode("root", mtime)
	if err := a.AddEntry([]string{"root"}, "", root); err != nil {
		t.Fatalf("AddEntry(root) failed: %v", err)
	}

	content := []byte("hello snapshot world")
	file := fileNodeFor("file.txt", 0, mtime)
	if err := a.BackupReader(boundReader(content), file); err != nil {
		t.Fatalf("BackupReader failed: %v", err)
	}

	snap, err := a.FinalizeSnapshot()
	if err != nil {
		t.Fatalf("FinalizeSnapshot failed: %v", err)
	}

	if snap.Summary.FilesNew != 1 {
		t.Errorf("expected 1 new file, got %d", snap.Summary.FilesNew)
	}
	if snap.Summary.DirsNew != 1 {
		t.Errorf("expected 1 new dir, got %d", snap.Summary.DirsNew)
	}
	if snap.Tree.IsZero() {
		t.Error("expected a non-zero root tree id")
	}
	if snap.Id.IsZero() {
		t.Error("expected FinalizeSnapshot to assign a snapshot id")
	}

	if _, ok := be.snaps[snap.Id]; !ok {
		t.Error("expected the snapshot manifest to be saved to the backend")
	}
}

func TestEngineSecondBackupDetectsUnmodifiedFile(t *testing.T) {
	be := newMemBackend()
	idx := newTestIndex(t)
	mtime := time.Unix(1700000000, 0)
	content := []byte("identical content across both runs")

	a1 := newArchiver(t, be, idx, ident.Id{}, EqualityPolicy{})
	root1 := dirNode("root", mtime)
	if err := a1.AddEntry([]string{"root"}, "", root1); err != nil {
		t.Fatalf("AddEntry(root) failed: %v", err)
	}
	file1 := fileNodeFor("file.txt", 0, mtime)
	if err := a1.BackupReader(boundReader(content), file1); err != nil {
		t.Fatalf("BackupReader failed: %v", err)
	}
	snap1, err := a1.FinalizeSnapshot()
	if err != nil {
		t.Fatalf("FinalizeSnapshot failed: %v", err)
	}

	a2 := newArchiver(t, be, idx, snap1.Tree, EqualityPolicy{})
	root2 := dirNode("root", mtime)
	if err := a2.AddEntry([]string{"root"}, "", root2); err != nil {
		t.Fatalf("AddEntry(root) failed: %v", err)
	}
	// Same size and mtime as the parent's version: backupFile should
	// reuse the parent's content ids without re-reading realPath.
	file2 := fileNodeFor("file.txt", uint64(len(content)), mtime)
	if err := a2.backupFile("/nonexistent/path/should/not/be/opened", file2); err != nil {
		t.Fatalf("backupFile failed: %v", err)
	}
	snap2, err := a2.FinalizeSnapshot()
	if err != nil {
		t.Fatalf("FinalizeSnapshot failed: %v", err)
	}

	if snap2.Summary.FilesUnmodified != 1 {
		t.Errorf("expected 1 unmodified file, got %d", snap2.Summary.FilesUnmodified)
	}
	if snap2.Summary.FilesNew != 0 {
		t.Errorf("expected 0 new files on the second run, got %d", snap2.Summary.FilesNew)
	}
	if snap2.Tree != snap1.Tree {
		t.Error("an unchanged tree should serialize to the same id across runs")
	}
}

func TestEngineSecondBackupDetectsChangedFile(t *testing.T) {
	be := newMemBackend()
	idx := newTestIndex(t)
	mtime1 := time.Unix(1700000000, 0)
	mtime2 := time.Unix(1700000500, 0)

	a1 := newArchiver(t, be, idx, ident.Id{}, EqualityPolicy{})
	root1 := dirNode("root", mtime1)
	if err := a1.AddEntry([]string{"root"}, "", root1); err != nil {
		t.Fatalf("AddEntry(root) failed: %v", err)
	}
	file1 := fileNodeFor("file.txt", 0, mtime1)
	if err := a1.BackupReader(boundReader([]byte("version one")), file1); err != nil {
		t.Fatalf("BackupReader failed: %v", err)
	}
	snap1, err := a1.FinalizeSnapshot()
	if err != nil {
		t.Fatalf("FinalizeSnapshot failed: %v", err)
	}

	a2 := newArchiver(t, be, idx, snap1.Tree, EqualityPolicy{})
	root2 := dirNode("root", mtime1)
	if err := a2.AddEntry([]string{"root"}, "", root2); err != nil {
		t.Fatalf("AddEntry(root) failed: %v", err)
	}
	file2 := fileNodeFor("file.txt", 0, mtime2)
	if err := a2.BackupReader(boundReader([]byte("version two, different content")), file2); err != nil {
		t.Fatalf("BackupReader failed: %v", err)
	}
	snap2, err := a2.FinalizeSnapshot()
	if err != nil {
		t.Fatalf("FinalizeSnapshot failed: %v", err)
	}

	if snap2.Summary.FilesChanged != 1 {
		t.Errorf("expected 1 changed file, got %d", snap2.Summary.FilesChanged)
	}
	if snap2.Summary.FilesUnmodified != 0 {
		t.Errorf("expected 0 unmodified files, got %d", snap2.Summary.FilesUnmodified)
	}
}

func TestBackupReaderOrdersContentByStreamPosition(t *testing.T) {
	be := newMemBackend()
	idx := newTestIndex(t)
	a := newArchiver(t, be, idx, ident.Id{}, EqualityPolicy{})

	data := make([]byte, 3*chunker.MinSize)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}

	node := fileNodeFor("big.bin", 0, time.Unix(1700000000, 0))
	if err := a.BackupReader(boundReader(data), node); err != nil {
		t.Fatalf("BackupReader failed: %v", err)
	}

	if node.Meta.Size != uint64(len(data)) {
		t.Errorf("expected node size %d, got %d", len(data), node.Meta.Size)
	}
	if len(node.Content) == 0 {
		t.Fatal("expected at least one content chunk id")
	}

	// Re-chunking the same bytes with the same polynomial must produce
	// the same ordered list of ids the engine stored.
	var want []ident.Id
	if err := chunker.All(boundReader(data), a.poly, func(c chunker.Chunk) error {
		want = append(want, ident.Of(c.Data))
		return nil
	}); err != nil {
		t.Fatalf("chunker.All failed: %v", err)
	}
	if len(want) != len(node.Content) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(node.Content))
	}
	for i, id := range want {
		if node.Content[i] != id {
			t.Errorf("content id %d out of order: got %s, want %s", i, node.Content[i], id)
		}
	}
}

func TestFinalizeSnapshotMarshalsValidJSON(t *testing.T) {
	be := newMemBackend()
	idx := newTestIndex(t)
	a := newArchiver(t, be, idx, ident.Id{}, EqualityPolicy{})

	root := dirNode("root", time.Unix(1700000000, 0))
	if err := a.AddEntry([]string{"root"}, "", root); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	snap, err := a.FinalizeSnapshot()
	if err != nil {
		t.Fatalf("FinalizeSnapshot failed: %v", err)
	}

	raw, ok := be.snaps[snap.Id]
	if !ok {
		t.Fatal("expected the snapshot to be saved")
	}
	var decoded snapshot.Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("saved snapshot is not valid JSON: %v", err)
	}
	if decoded.Tree != snap.Tree {
		t.Error("saved snapshot tree id should match the returned snapshot")
	}
}

// boundReader wraps a byte slice in a fresh bytes.Reader each call so
// tests can pass the same content through the chunker twice.
func boundReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
