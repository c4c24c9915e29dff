// Package tree implements the in-memory directory object: an ordered
// list of Nodes with a canonical, deterministic serialization so that
// identical directory contents hash identically.
package tree

import (
	"time"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

// Kind identifies what a Node refers to.
type Kind uint8

const (
	KindFile Kind = iota + 1
	KindDir
	KindSymlink
	KindDev
	KindChardev
	KindFifo
	KindSocket
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindDev:
		return "dev"
	case KindChardev:
		return "chardev"
	case KindFifo:
		return "fifo"
	case KindSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// Metadata carries the filesystem attributes the Parent Cursor's
// equality policy compares.
type Metadata struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	User  string
	Group string
	Size  uint64
	Mtime time.Time
	Atime time.Time
	Ctime time.Time
	Inode uint64
	// DeviceMajor/DeviceMinor are meaningful only for KindDev and
	// KindChardev.
	DeviceMajor uint32
	DeviceMinor uint32
}

// Node is a single directory entry. It is created at source-enumeration
// time, mutated exactly once by the archiver engine to attach its
// content list or subtree id, then frozen inside a Tree.
type Node struct {
	Name     string
	Kind     Kind
	Meta     Metadata
	Target   string // symlink target, KindSymlink only
	Content  []ident.Id // ordered chunk ids, KindFile only
	Subtree  ident.Id   // KindDir only, set once by the engine
}

// NewDirNode builds a synthetic directory node with default metadata,
// used by the archiver for intermediate directories the source never
// delivered explicitly.
func NewDirNode(name string) *Node {
	return &Node{Name: name, Kind: KindDir, Meta: Metadata{Mode: 0040755}}
}

// SetContent attaches a file's chunk ids. Panics if called on a non-file
// node — a programmer error, not a runtime condition.
func (n *Node) SetContent(ids []ident.Id) {
	if n.Kind != KindFile {
		panic("tree: SetContent on non-file node " + n.Name)
	}
	n.Content = ids
}

// SetSubtree attaches a directory's serialized subtree id.
func (n *Node) SetSubtree(id ident.Id) {
	if n.Kind != KindDir {
		panic("tree: SetSubtree on non-dir node " + n.Name)
	}
	n.Subtree = id
}

// IsDir reports whether the node represents a directory.
func (n *Node) IsDir() bool { return n.Kind == KindDir }

// IsFile reports whether the node represents a regular file.
func (n *Node) IsFile() bool { return n.Kind == KindFile }
