// Package source enumerates a filesystem subtree in preorder, producing
// the (path, real_path, node) triples the archiver engine consumes
// (spec.md §6: "Source contract (consumed)"). Include/exclude policy
// and progress-bar rendering are deliberately left to callers — this
// package only walks and classifies.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nilsson-dev/vaultic/internal/tree"
)

// Logger receives per-entry warnings for source errors that are
// recovered by skipping the entry (spec.md §7: "SourceError ... Policy:
// per-entry; logged and skipped; snapshot proceeds").
type Logger interface {
	Warnf(format string, args ...any)
}

// Entry is one preorder walk step.
type Entry struct {
	Path     []string // logical path components from the snapshot root
	RealPath string    // where to read file content from, if any
	Node     *tree.Node
}

// LocalSource walks a real directory subtree.
type LocalSource struct {
	root   string
	asPath []string
}

// NewLocalSource returns a source rooted at root. asPath, if non-nil,
// overrides the path components recorded for the root entry and
// everything beneath it (spec.md §6's `as_path` switch); pass nil to
// record root's own path components.
func NewLocalSource(root string, asPath []string) *LocalSource {
	return &LocalSource{root: filepath.Clean(root), asPath: asPath}
}

// Walk visits every entry under the source root in preorder, calling
// yield for each one it can stat. Entries it cannot read are logged
// and skipped. A subdirectory whose listing can't be read is still
// yielded itself (filepath.WalkDir visits it before reading it), but
// its contents are skipped via filepath.SkipDir.
func (s *LocalSource) Walk(log Logger, yield func(Entry) error) error {
	base := s.asPath
	if base == nil {
		base = splitPath(filepath.Base(s.root))
	}

	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("source: skip %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return fmt.Errorf("source: relativize %s: %w", p, err)
		}
		segPath := base
		if rel != "." {
			segPath = append(append([]string{}, base...), splitPath(rel)...)
		}

		info, err := d.Info()
		if err != nil {
			log.Warnf("source: stat %s: %v", p, err)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		node, err := nodeFromInfo(d.Name(), p, info)
		if err != nil {
			log.Warnf("source: read %s: %v", p, err)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "." {
			node.Name = segPath[len(segPath)-1]
		}

		return yield(Entry{Path: segPath, RealPath: p, Node: node})
	})
}

func splitPath(rel string) []string {
	if rel == "" || rel == "." {
		return nil
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}

func nodeFromInfo(name, path string, info fs.FileInfo) (*tree.Node, error) {
	mode := info.Mode()
	node := &tree.Node{
		Name: name,
		Meta: tree.Metadata{
			Mode:  uint32(mode),
			Size:  uint64(info.Size()),
			Mtime: info.ModTime(),
		},
	}

	switch {
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, fmt.Errorf("readlink: %w", err)
		}
		node.Kind = tree.KindSymlink
		node.Target = target
	case info.IsDir():
		node.Kind = tree.KindDir
	case mode&os.ModeNamedPipe != 0:
		node.Kind = tree.KindFifo
	case mode&os.ModeSocket != 0:
		node.Kind = tree.KindSocket
	case mode&os.ModeCharDevice != 0:
		node.Kind = tree.KindChardev
	case mode&os.ModeDevice != 0:
		node.Kind = tree.KindDev
	case mode.IsRegular():
		node.Kind = tree.KindFile
	default:
		return nil, fmt.Errorf("unsupported file mode %v", mode)
	}
	applyUnixStat(node, info)

	return node, nil
}

// applyUnixStat fills in the fields only a *syscall.Stat_t exposes. It
// is a no-op (leaving zero values) on platforms where info.Sys() isn't
// one, which keeps this file portable without a build-tag split.
func applyUnixStat(node *tree.Node, info fs.FileInfo) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	node.Meta.UID = stat.Uid
	node.Meta.GID = stat.Gid
	node.Meta.Inode = stat.Ino
	node.Meta.Ctime = ctimeOf(stat)
	if node.Kind == tree.KindDev || node.Kind == tree.KindChardev {
		node.Meta.DeviceMajor = uint32(stat.Rdev >> 8)
		node.Meta.DeviceMinor = uint32(stat.Rdev & 0xff)
	}
}

func ctimeOf(stat *syscall.Stat_t) time.Time {
	return time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}
