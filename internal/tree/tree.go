package tree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

// Tree is an ordered list of Nodes, canonically sorted by name.
//
// Canonical encoding (mirrors the sorted-uvarint scheme a Merkle
// directory object uses elsewhere in this tree, generalized from a
// three-kind blob/tree/submodule scheme to this archiver's richer
// Node kinds):
//
//	uvarint(count)
//	for each entry, in sorted order:
//	  uvarint(kind)
//	  uvarint(len(name)); name bytes
//	  uvarint(mode)
//	  uvarint(uid); uvarint(gid)
//	  uvarint(size)
//	  int64(mtime unix nanos)
//	  kind-specific payload:
//	    File: uvarint(len(content)); content ids, 32 bytes each
//	    Dir:  32 bytes, the subtree id
//	    other: nothing
//	  uvarint(len(target)); target bytes (every kind; empty except
//	  for symlinks)
//
// This is deliberately a full round trip, not just a digest: the
// Parent Cursor (internal/archiver/parent.go) reloads a prior
// snapshot's trees from these bytes and needs the real content id
// list back, not a folded hash of it, to decide which files it can
// skip re-reading.
type Tree struct {
	Nodes []*Node
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{}
}

// Add appends node; entries are sorted by name when the tree is
// serialized, not on insertion.
func (t *Tree) Add(node *Node) {
	t.Nodes = append(t.Nodes, node)
}

// sortEntries sorts in place by name; called at serialize time so
// intake order never matters (spec: "no ordering requirement on
// children at intake; the serialized Tree is canonical").
func (t *Tree) sortEntries() {
	sort.Slice(t.Nodes, func(i, j int) bool {
		return t.Nodes[i].Name < t.Nodes[j].Name
	})
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// CanonicalBytes returns the canonical serialization of t. Returns an
// error if two entries share a name — the one invariant this layer
// enforces (spec §3: "child names unique within a tree").
func (t *Tree) CanonicalBytes() ([]byte, error) {
	t.sortEntries()

	seen := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("tree: empty node name")
		}
		if seen[n.Name] {
			return nil, fmt.Errorf("tree: duplicate name %q", n.Name)
		}
		seen[n.Name] = true
	}

	var buf bytes.Buffer
	putUvarint(&buf, uint64(len(t.Nodes)))

	for _, n := range t.Nodes {
		putUvarint(&buf, uint64(n.Kind))
		putUvarint(&buf, uint64(len(n.Name)))
		buf.WriteString(n.Name)
		putUvarint(&buf, uint64(n.Meta.Mode))
		putUvarint(&buf, uint64(n.Meta.UID))
		putUvarint(&buf, uint64(n.Meta.GID))
		putUvarint(&buf, n.Meta.Size)
		var mtimeBuf [8]byte
		binary.BigEndian.PutUint64(mtimeBuf[:], uint64(n.Meta.Mtime.UnixNano()))
		buf.Write(mtimeBuf[:])

		switch n.Kind {
		case KindFile:
			putUvarint(&buf, uint64(len(n.Content)))
			for _, id := range n.Content {
				buf.Write(id.Bytes())
			}
		case KindDir:
			buf.Write(n.Subtree.Bytes())
		}

		putUvarint(&buf, uint64(len(n.Target)))
		buf.WriteString(n.Target)
	}

	return buf.Bytes(), nil
}

// Serialize returns the canonical bytes and their Id. Two Trees with
// identical children (name + kind + metadata subset + payload)
// produce the same Id (spec §4.3).
func (t *Tree) Serialize() ([]byte, ident.Id, error) {
	b, err := t.CanonicalBytes()
	if err != nil {
		return nil, ident.Id{}, err
	}
	return b, ident.Of(b), nil
}

// Parse reconstructs a Tree from bytes produced by CanonicalBytes. It
// is the Parent Cursor's read path: a previous snapshot's tree blobs
// are fetched by id and parsed back into Nodes so the cursor can
// compare them against the current traversal (spec.md §4.4).
func Parse(data []byte) (*Tree, error) {
	r := bytes.NewReader(data)

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("tree: read count: %w", err)
	}

	t := &Tree{Nodes: make([]*Node, 0, count)}
	for i := uint64(0); i < count; i++ {
		n, err := parseNode(r)
		if err != nil {
			return nil, fmt.Errorf("tree: parse node %d: %w", i, err)
		}
		t.Nodes = append(t.Nodes, n)
	}
	return t, nil
}

func parseNode(r *bytes.Reader) (*Node, error) {
	kind, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("kind: %w", err)
	}

	nameLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("name length: %w", err)
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}

	mode, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("mode: %w", err)
	}
	uid, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("uid: %w", err)
	}
	gid, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("gid: %w", err)
	}
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}

	var mtimeBuf [8]byte
	if _, err := io.ReadFull(r, mtimeBuf[:]); err != nil {
		return nil, fmt.Errorf("mtime: %w", err)
	}
	mtime := time.Unix(0, int64(binary.BigEndian.Uint64(mtimeBuf[:])))

	n := &Node{
		Name: string(nameBuf),
		Kind: Kind(kind),
		Meta: Metadata{Mode: uint32(mode), UID: uint32(uid), GID: uint32(gid), Size: size, Mtime: mtime},
	}

	switch n.Kind {
	case KindFile:
		contentLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("content length: %w", err)
		}
		n.Content = make([]ident.Id, contentLen)
		for i := range n.Content {
			var idBuf [ident.Size]byte
			if _, err := io.ReadFull(r, idBuf[:]); err != nil {
				return nil, fmt.Errorf("content id %d: %w", i, err)
			}
			n.Content[i] = ident.Id(idBuf)
		}
	case KindDir:
		var idBuf [ident.Size]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, fmt.Errorf("subtree id: %w", err)
		}
		n.Subtree = ident.Id(idBuf)
	}

	targetLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("target length: %w", err)
	}
	targetBuf := make([]byte, targetLen)
	if _, err := io.ReadFull(r, targetBuf); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	n.Target = string(targetBuf)

	return n, nil
}

// Find returns the node named name, if present.
func (t *Tree) Find(name string) (*Node, bool) {
	for _, n := range t.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}
