package source

import (
	"time"

	"github.com/nilsson-dev/vaultic/internal/tree"
)

// StdinNode returns the synthetic File node a stdin backup is recorded
// under, named filename (spec.md §6's `stdin_filename` switch). Size
// and mtime are unknown up front; the archiver fills in Size once
// BackupReader has consumed the stream.
func StdinNode(filename string) *tree.Node {
	return &tree.Node{
		Name: filename,
		Kind: tree.KindFile,
		Meta: tree.Metadata{
			Mode:  0o100644,
			Mtime: time.Now(),
		},
	}
}
