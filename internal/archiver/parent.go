package archiver

import (
	"fmt"

	"github.com/nilsson-dev/vaultic/internal/ident"
	"github.com/nilsson-dev/vaultic/internal/index"
	"github.com/nilsson-dev/vaultic/internal/pack"
	"github.com/nilsson-dev/vaultic/internal/tree"
)

// ParentResult is the outcome of comparing an incoming node against its
// opposite number in the parent snapshot's tree (spec.md §4.4).
type ParentResult int

const (
	// NotFound means the parent tree has no child of this name.
	NotFound ParentResult = iota
	// NotMatched means a child exists but its attributes disagree.
	NotMatched
	// Matched means a child exists and the equality policy considers
	// it indicative of unchanged content.
	Matched
)

// EqualityPolicy controls which metadata fields the Parent Cursor
// treats as significant when deciding whether a node is unchanged
// (spec.md §4.4's two configurable switches).
type EqualityPolicy struct {
	IgnoreCtime bool
	IgnoreInode bool
}

// Cursor navigates the parent snapshot's tree in lockstep with the
// current traversal, answering "is this entry unchanged?" without
// loading the whole parent tree up front: subtrees are fetched lazily,
// by id, only along the path the current traversal actually visits.
type Cursor struct {
	be     pack.Backend
	loc    *index.Index
	policy EqualityPolicy

	tree *tree.Tree // nil when there is no parent at this position
}

// NewRootCursor returns the cursor for the top of a backup, rooted at
// rootTree. A nil/zero rootTree (no parent snapshot, or it had no
// tree) makes every call report NotFound, per spec.md §4.4: "when no
// parent is configured, every call returns NotFound."
func NewRootCursor(be pack.Backend, loc *index.Index, rootTree ident.Id, policy EqualityPolicy) (*Cursor, error) {
	if rootTree.IsZero() {
		return &Cursor{be: be, loc: loc, policy: policy}, nil
	}
	t, err := loadTree(be, loc, rootTree)
	if err != nil {
		return nil, fmt.Errorf("archiver: load parent root tree %s: %w", rootTree, err)
	}
	return &Cursor{be: be, loc: loc, policy: policy, tree: t}, nil
}

func loadTree(be pack.Backend, loc *index.Index, id ident.Id) (*tree.Tree, error) {
	data, err := pack.ReadBlob(be, loc, pack.Tree, id)
	if err != nil {
		return nil, err
	}
	return tree.Parse(data)
}

// IsParent compares node against this cursor's tree, returning the
// matching parent node when one is found.
func (c *Cursor) IsParent(node *tree.Node) (ParentResult, *tree.Node) {
	if c.tree == nil {
		return NotFound, nil
	}
	p, ok := c.tree.Find(node.Name)
	if !ok {
		return NotFound, nil
	}
	if !c.sameKind(node, p) {
		return NotMatched, p
	}
	if node.Kind == tree.KindDir {
		// Directory equality is decided downstream by the engine,
		// comparing freshly serialized subtree ids (spec.md §4.4: "for
		// directories the cursor's job is subtree lookup only").
		return Matched, p
	}
	if c.metaMatches(node, p) {
		return Matched, p
	}
	return NotMatched, p
}

func (c *Cursor) sameKind(a, b *tree.Node) bool {
	return a.Kind == b.Kind
}

// metaMatches implements the file equality policy: size and mtime are
// always compared; ctime and inode are compared unless the
// corresponding switch says to ignore them.
func (c *Cursor) metaMatches(a, b *tree.Node) bool {
	if a.Meta.Size != b.Meta.Size {
		return false
	}
	if !a.Meta.Mtime.Equal(b.Meta.Mtime) {
		return false
	}
	if !c.policy.IgnoreCtime && !a.Meta.Ctime.Equal(b.Meta.Ctime) {
		return false
	}
	if !c.policy.IgnoreInode && a.Meta.Inode != b.Meta.Inode {
		return false
	}
	return true
}

// SubParent advances the cursor into node, which must be the directory
// just matched or looked up by IsParent. If node has no counterpart in
// the parent tree, the returned cursor reports NotFound for everything
// beneath it — descent continues, it just never matches.
func (c *Cursor) SubParent(node *tree.Node) (*Cursor, error) {
	if c.tree == nil {
		return &Cursor{be: c.be, loc: c.loc, policy: c.policy}, nil
	}
	p, ok := c.tree.Find(node.Name)
	if !ok || p.Kind != tree.KindDir || p.Subtree.IsZero() {
		return &Cursor{be: c.be, loc: c.loc, policy: c.policy}, nil
	}
	sub, err := loadTree(c.be, c.loc, p.Subtree)
	if err != nil {
		return nil, fmt.Errorf("archiver: load parent subtree %q: %w", node.Name, err)
	}
	return &Cursor{be: c.be, loc: c.loc, policy: c.policy, tree: sub}, nil
}
