// Package archiver implements the streaming traversal engine: the
// preorder directory stack, the parent-snapshot comparison, and the
// routing of file content into the data and tree packers (spec.md §2.7,
// §4.7). It is the orchestrator; the object model (internal/tree), the
// packing (internal/pack) and the dedup index (internal/index) are
// leaves it depends on, not the other way around.
package archiver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/nilsson-dev/vaultic/internal/chunker"
	"github.com/nilsson-dev/vaultic/internal/ident"
	"github.com/nilsson-dev/vaultic/internal/index"
	"github.com/nilsson-dev/vaultic/internal/pack"
	"github.com/nilsson-dev/vaultic/internal/snapshot"
	"github.com/nilsson-dev/vaultic/internal/tree"
)

// SnapshotSaver persists a serialized snapshot manifest and names it by
// its content hash — the one backend operation the engine needs beyond
// the narrower pack.Backend the packers use.
type SnapshotSaver interface {
	SaveSnapshot(data []byte) (ident.Id, error)
}

// Config carries the engine's configuration switches (spec.md §6:
// "Configuration switches observable by the core").
type Config struct {
	Poly        chunker.Polynomial
	Policy      EqualityPolicy
	HashWorkers int // 0 means GOMAXPROCS
}

type stackFrame struct {
	node   *tree.Node
	tree   *tree.Tree
	parent *Cursor
}

// Archiver walks a preorder entry stream and builds a snapshot. One
// Archiver handles exactly one backup run; it is not reusable.
type Archiver struct {
	path   []string
	tree   *tree.Tree
	parent *Cursor
	stack  []stackFrame

	index      *index.Index
	dataPacker *pack.Packer
	treePacker *pack.Packer
	saver      SnapshotSaver

	poly        chunker.Polynomial
	hashWorkers int

	snap *snapshot.Snapshot
	log  Logger
}

// New constructs an Archiver rooted at parentTree (the zero Id if
// there is no parent snapshot, or the run was forced). snap must
// already carry its Paths/Hostname/Parent/Tags/Delete fields; New
// stamps only Summary.BackupStart — Summary.Command is the CLI's to
// set, since the core has no notion of how it was invoked.
func New(be pack.Backend, saver SnapshotSaver, idx *index.Index, parentTree ident.Id, snap *snapshot.Snapshot, cfg Config, log Logger) (*Archiver, error) {
	if log == nil {
		log = NopLogger{}
	}
	parent, err := NewRootCursor(be, idx, parentTree, cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("archiver: build parent cursor: %w", err)
	}

	hashWorkers := cfg.HashWorkers
	if hashWorkers <= 0 {
		hashWorkers = runtime.GOMAXPROCS(0)
	}

	snap.Summary.BackupStart = time.Now()

	return &Archiver{
		tree:        tree.New(),
		parent:      parent,
		index:       idx,
		dataPacker:  pack.NewPacker(pack.Data, be, idx),
		treePacker:  pack.NewPacker(pack.Tree, be, idx),
		saver:       saver,
		poly:        cfg.Poly,
		hashWorkers: hashWorkers,
		snap:        snap,
		log:         log,
	}, nil
}

// AddEntry is the primary intake operation: the preorder state machine
// of spec.md §4.7. segPath is the entry's logical path as path
// components from the snapshot root; realPath is where to read file
// content from.
func (a *Archiver) AddEntry(segPath []string, realPath string, node *tree.Node) error {
	base := segPath
	if !node.IsDir() {
		if len(segPath) == 0 {
			return fmt.Errorf("archiver: file path %v has no parent", segPath)
		}
		base = segPath[:len(segPath)-1]
	}

	if err := a.finishTrees(base); err != nil {
		return err
	}

	if !isPrefix(a.path, base) {
		return fmt.Errorf("archiver: internal error: path %v is not a prefix of %v", a.path, base)
	}
	missing := base[len(a.path):]

	for _, c := range missing {
		a.path = append(a.path, c)
		outerTree := a.tree
		a.tree = tree.New()

		if pathEqual(a.path, segPath) && node.IsDir() {
			newParent, err := a.parent.SubParent(node)
			if err != nil {
				return err
			}
			outerParent := a.parent
			a.parent = newParent
			a.stack = append(a.stack, stackFrame{node: node, tree: outerTree, parent: outerParent})
			return nil
		}

		synthetic := tree.NewDirNode(c)
		newParent, err := a.parent.SubParent(synthetic)
		if err != nil {
			return err
		}
		outerParent := a.parent
		a.parent = newParent
		a.stack = append(a.stack, stackFrame{node: synthetic, tree: outerTree, parent: outerParent})
	}

	switch node.Kind {
	case tree.KindFile:
		return a.backupFile(realPath, node)
	case tree.KindDir:
		// handled entirely by the descent above
	default:
		a.addFile(node, 0)
	}
	return nil
}

// finishTrees unwinds the stack until the current path is a prefix of
// target, serializing and packing each completed directory as it pops.
func (a *Archiver) finishTrees(target []string) error {
	for !isPrefix(a.path, target) {
		chunk, id, err := a.tree.Serialize()
		if err != nil {
			return fmt.Errorf("archiver: serialize tree at %v: %w", a.path, err)
		}
		if len(a.stack) == 0 {
			return fmt.Errorf("archiver: tree stack empty while unwinding to %v", target)
		}
		frame := a.stack[len(a.stack)-1]
		a.stack = a.stack[:len(a.stack)-1]

		frame.node.SetSubtree(id)
		a.tree = frame.tree
		a.parent = frame.parent

		if err := a.backupTree(frame.node, chunk); err != nil {
			return err
		}
		a.path = a.path[:len(a.path)-1]
	}
	return nil
}

func (a *Archiver) backupTree(node *tree.Node, chunk []byte) error {
	dirsize := uint64(len(chunk))
	id := node.Subtree

	result, pnode := a.parent.IsParent(node)
	switch {
	case result == Matched && pnode != nil && node.Subtree == pnode.Subtree:
		a.log.Debugf("unchanged tree: %v", a.path)
		a.addDir(node, dirsize)
		a.snap.Summary.DirsUnmodified++
		return nil
	case result == NotFound:
		a.log.Debugf("new tree: %v (%d bytes)", a.path, dirsize)
		a.snap.Summary.DirsNew++
	default:
		a.log.Debugf("changed tree: %v (%d bytes)", a.path, dirsize)
		a.snap.Summary.DirsChanged++
	}

	if !a.index.HasTree(id) {
		packedSize, err := a.treePacker.Add(chunk, id)
		if err != nil {
			return fmt.Errorf("archiver: pack tree %s: %w", id, err)
		}
		if packedSize != 0 {
			a.snap.Summary.TreeBlobs++
			a.snap.Summary.DataAdded += dirsize
			a.snap.Summary.DataAddedPacked += uint64(packedSize)
			a.snap.Summary.DataAddedTrees += dirsize
			a.snap.Summary.DataAddedTreesPacked += uint64(packedSize)
		}
	}
	a.addDir(node, dirsize)
	return nil
}

func (a *Archiver) addDir(node *tree.Node, size uint64) {
	a.tree.Add(node)
	a.snap.Summary.TotalDirsProcessed++
	a.snap.Summary.TotalDirsizeProcessed += size
}

func (a *Archiver) addFile(node *tree.Node, size uint64) {
	result, _ := a.parent.IsParent(node)
	switch result {
	case Matched:
		a.log.Debugf("unchanged file: %s", node.Name)
		a.snap.Summary.FilesUnmodified++
	case NotMatched:
		a.log.Debugf("changed   file: %s", node.Name)
		a.snap.Summary.FilesChanged++
	case NotFound:
		a.log.Debugf("new       file: %s", node.Name)
		a.snap.Summary.FilesNew++
	}
	a.tree.Add(node)
	a.snap.Summary.TotalFilesProcessed++
	a.snap.Summary.TotalBytesProcessed += size
}

// backupFile reuses the parent's content list when every chunk it
// references is already known to the index; otherwise it re-reads the
// file from realPath.
func (a *Archiver) backupFile(realPath string, node *tree.Node) error {
	result, pnode := a.parent.IsParent(node)
	if result == Matched && pnode != nil {
		reusable := true
		for _, id := range pnode.Content {
			if !a.index.HasData(id) {
				reusable = false
				break
			}
		}
		if reusable {
			node.SetContent(pnode.Content)
			a.addFile(node, pnode.Meta.Size)
			return nil
		}
		a.log.Warnf("missing blobs in index for unchanged file %s; re-reading file", realPath)
	}

	f, err := os.Open(realPath)
	if err != nil {
		return fmt.Errorf("archiver: open %s: %w", realPath, err)
	}
	defer f.Close()
	return a.BackupReader(f, node)
}

// BackupReader streams r through the chunker into node's content list,
// bypassing path traversal entirely. It is the engine's entry point
// for sources with no filesystem path, such as stdin (spec.md §4.7,
// operation 2).
func (a *Archiver) BackupReader(r io.Reader, node *tree.Node) error {
	ch := chunker.New(r, a.poly)

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, a.hashWorkers)
		mu       sync.Mutex
		content  []ident.Id
		filesize uint64
		firstErr error
	)

	for {
		c, err := ch.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			wg.Wait()
			return fmt.Errorf("archiver: chunk %s: %w", node.Name, err)
		}

		buf := make([]byte, len(c.Data))
		copy(buf, c.Data)
		filesize += uint64(len(buf))

		mu.Lock()
		pos := len(content)
		content = append(content, ident.Id{})
		mu.Unlock()

		wg.Add(1)
		sem <- struct{}{}
		go func(pos int, buf []byte) {
			defer wg.Done()
			defer func() { <-sem }()

			id := ident.Of(buf)
			if !a.index.HasData(id) {
				packedSize, err := a.dataPacker.Add(buf, id)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("archiver: pack data chunk: %w", err)
					}
					mu.Unlock()
				} else if packedSize != 0 {
					mu.Lock()
					a.snap.Summary.DataBlobs++
					a.snap.Summary.DataAdded += uint64(len(buf))
					a.snap.Summary.DataAddedPacked += uint64(packedSize)
					a.snap.Summary.DataAddedFiles += uint64(len(buf))
					a.snap.Summary.DataAddedFilesPacked += uint64(packedSize)
					mu.Unlock()
				}
			}

			mu.Lock()
			content[pos] = id
			mu.Unlock()
		}(pos, buf)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	node.Meta.Size = filesize
	node.SetContent(content)
	a.addFile(node, filesize)
	return nil
}

// FinalizeSnapshot drains the remaining directory stack, serializes
// the root tree, flushes both packers, stamps timings, and persists
// the snapshot manifest (spec.md §4.7, operation 3).
func (a *Archiver) FinalizeSnapshot() (*snapshot.Snapshot, error) {
	if err := a.finishTrees(nil); err != nil {
		return nil, err
	}

	chunk, id, err := a.tree.Serialize()
	if err != nil {
		return nil, fmt.Errorf("archiver: serialize root tree: %w", err)
	}
	if !a.index.HasTree(id) {
		if _, err := a.treePacker.Add(chunk, id); err != nil {
			return nil, fmt.Errorf("archiver: pack root tree: %w", err)
		}
	}
	a.snap.Tree = id

	if err := a.dataPacker.Finalize(); err != nil {
		return nil, fmt.Errorf("archiver: finalize data packer: %w", err)
	}
	if err := a.treePacker.Finalize(); err != nil {
		return nil, fmt.Errorf("archiver: finalize tree packer: %w", err)
	}

	end := time.Now()
	a.snap.Summary.BackupEnd = end
	a.snap.Summary.BackupDuration = end.Sub(a.snap.Summary.BackupStart).Seconds()
	a.snap.Summary.TotalDuration = end.Sub(a.snap.Time).Seconds()

	data, err := json.Marshal(a.snap)
	if err != nil {
		return nil, fmt.Errorf("archiver: marshal snapshot: %w", err)
	}
	snapID, err := a.saver.SaveSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("archiver: save snapshot: %w", err)
	}
	a.snap.Id = snapID

	return a.snap, nil
}

func isPrefix(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i, c := range prefix {
		if full[i] != c {
			return false
		}
	}
	return true
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
