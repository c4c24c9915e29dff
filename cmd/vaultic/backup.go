package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nilsson-dev/vaultic/internal/archiver"
	"github.com/nilsson-dev/vaultic/internal/backend"
	"github.com/nilsson-dev/vaultic/internal/config"
	"github.com/nilsson-dev/vaultic/internal/ident"
	"github.com/nilsson-dev/vaultic/internal/index"
	"github.com/nilsson-dev/vaultic/internal/snapshot"
	"github.com/nilsson-dev/vaultic/internal/source"
)

var backupCmd = &cobra.Command{
	Use:   "backup [paths...]",
	Short: "Create a new snapshot of one or more paths",
	Args:  cobra.ArbitraryArgs,
	Run:   runBackup,
}

var (
	backupHost        string
	backupTags        []string
	backupParent      string
	backupForce       bool
	backupDryRun      bool
	backupIgnoreCtime bool
	backupIgnoreInode bool
	backupAsPath      string
	backupStdin       bool
	backupStdinName   string
	backupVerbose     bool
	backupDeleteNever bool
	backupDeleteAfter time.Duration
)

func init() {
	f := backupCmd.Flags()
	f.StringVar(&backupHost, "host", "", "hostname recorded in the snapshot (default: os.Hostname)")
	f.StringSliceVar(&backupTags, "tag", nil, "tag to attach to the snapshot (repeatable)")
	f.StringVar(&backupParent, "parent", "", "parent snapshot id to diff against")
	f.BoolVar(&backupForce, "force", false, "ignore any parent snapshot; back up everything fresh")
	f.BoolVar(&backupDryRun, "dry-run", false, "compute what would be written without writing it")
	f.BoolVar(&backupIgnoreCtime, "ignore-ctime", false, "don't treat a ctime change alone as a modification")
	f.BoolVar(&backupIgnoreInode, "ignore-inode", false, "don't treat an inode-number change alone as a modification")
	f.StringVar(&backupAsPath, "as-path", "", "record the snapshot under this path instead of the real one")
	f.BoolVar(&backupStdin, "stdin", false, "read file content from stdin instead of a filesystem path")
	f.StringVar(&backupStdinName, "stdin-filename", "stdin", "name to record the stdin entry under")
	f.BoolVar(&backupVerbose, "verbose", false, "print per-entry debug detail")
	f.BoolVar(&backupDeleteNever, "delete-never", false, "mark the snapshot as never eligible for pruning")
	f.DurationVar(&backupDeleteAfter, "delete-after", 0, "mark the snapshot eligible for pruning after this duration")
}

func runBackup(cmd *cobra.Command, args []string) {
	if repoFlag == "" {
		log.Fatal("backup: --repo is required")
	}
	if !backupStdin && len(args) == 0 {
		log.Fatal("backup: at least one path is required, or pass --stdin")
	}

	be := backend.NewDryRunBackend(openBackend(repoFlag), backupDryRun)

	cfg, err := loadRepositoryConfig(be)
	if err != nil {
		log.Fatalf("backup: %v", err)
	}

	idx, err := index.Open(indexPath(repoFlag))
	if err != nil {
		log.Fatalf("backup: open index: %v", err)
	}
	defer idx.Close()
	idx.SetDryRun(backupDryRun)

	host, err := hostOrDefault(backupHost)
	if err != nil {
		log.Fatalf("backup: %v", err)
	}

	paths := args
	if backupAsPath != "" {
		paths = []string{backupAsPath}
	}

	var parentID *ident.Id
	var parentTree ident.Id
	if !backupForce && backupParent != "" {
		id, err := ident.Parse(backupParent)
		if err != nil {
			log.Fatalf("backup: --parent: %v", err)
		}
		parentSnap, err := loadSnapshot(be, id)
		if err != nil {
			log.Fatalf("backup: load parent snapshot: %v", err)
		}
		parentID = &id
		parentTree = parentSnap.Tree
	}

	rc := config.RunConfig{
		IgnoreCtime:   backupIgnoreCtime,
		IgnoreInode:   backupIgnoreInode,
		Force:         backupForce,
		Parent:        backupParent,
		DryRun:        backupDryRun,
		Tags:          backupTags,
		AsPath:        backupAsPath,
		Host:          host,
		StdinFilename: backupStdinName,
	}
	switch {
	case backupDeleteNever:
		rc.DeleteMode = config.DeleteModeNever
	case backupDeleteAfter > 0:
		rc.DeleteMode = config.DeleteModeAfter
		rc.DeleteAfter = backupDeleteAfter
	}

	snap := snapshot.New(paths, rc.Host, parentID)
	snap.Username = currentUsername()
	snap.Tags = rc.Tags
	snap.Delete = deletePolicy(rc)
	snap.Summary.Command = strings.Join(append([]string{"vaultic", "backup"}, os.Args[2:]...), " ")

	logger := stdLogger{verbose: backupVerbose}

	archCfg := archiver.Config{
		Poly: cfg.Polynomial(),
		Policy: archiver.EqualityPolicy{
			IgnoreCtime: rc.IgnoreCtime,
			IgnoreInode: rc.IgnoreInode,
		},
	}

	pb := backend.AsPackBackend(be)
	a, err := archiver.New(pb, be, idx, parentTree, snap, archCfg, logger)
	if err != nil {
		log.Fatalf("backup: %v", err)
	}

	if backupStdin {
		node := source.StdinNode(backupStdinName)
		if err := a.BackupReader(os.Stdin, node); err != nil {
			log.Fatalf("backup: %v", err)
		}
	} else {
		for i, p := range args {
			var asPath []string
			if backupAsPath != "" {
				asPath = []string{backupAsPath}
				if len(args) > 1 {
					asPath = append(asPath, fmt.Sprintf("%d", i))
				}
			}
			src := source.NewLocalSource(p, asPath)
			walkErr := src.Walk(logger, func(e source.Entry) error {
				return a.AddEntry(e.Path, e.RealPath, e.Node)
			})
			if walkErr != nil {
				log.Fatalf("backup: walk %s: %v", p, walkErr)
			}
		}
	}

	result, err := a.FinalizeSnapshot()
	if err != nil {
		log.Fatalf("backup: finalize: %v", err)
	}

	printSummary(result)
}

// deletePolicy resolves a RunConfig's delete switches into the
// manifest's DeletePolicy, turning a relative DeleteAfter duration into
// an absolute instant measured from now (spec.md §6: "delete_after
// (duration)" as a config switch, §3: "delete ... After(instant)" as
// the manifest field it produces).
func deletePolicy(rc config.RunConfig) snapshot.DeletePolicy {
	switch rc.DeleteMode {
	case config.DeleteModeNever:
		return snapshot.DeletePolicy{Kind: snapshot.DeleteNever}
	case config.DeleteModeAfter:
		return snapshot.DeletePolicy{Kind: snapshot.DeleteAfter, After: time.Now().Add(rc.DeleteAfter)}
	default:
		return snapshot.DeletePolicy{Kind: snapshot.DeleteNotSet}
	}
}

func loadRepositoryConfig(be backend.Backend) (*config.RepositoryConfig, error) {
	if cached, err := config.LoadLocalCache(configCachePath(repoFlag)); err == nil && cached != nil {
		return cached, nil
	}
	data, err := be.ReadFull(backend.Config, ident.Zero)
	if err != nil {
		return nil, fmt.Errorf("read repository config (did you run 'vaultic init'?): %w", err)
	}
	cfg, err := config.Load(data)
	if err != nil {
		return nil, err
	}
	_ = config.SaveLocalCache(configCachePath(repoFlag), cfg)
	return cfg, nil
}

func loadSnapshot(be backend.Backend, id ident.Id) (*snapshot.Snapshot, error) {
	data, err := be.ReadFull(backend.Snapshot, id)
	if err != nil {
		return nil, err
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", id, err)
	}
	return &snap, nil
}

func printSummary(snap *snapshot.Snapshot) {
	s := snap.Summary
	fmt.Printf("snapshot %s saved\n", snap.Id)
	fmt.Printf("  files: %d new, %d changed, %d unmodified\n", s.FilesNew, s.FilesChanged, s.FilesUnmodified)
	fmt.Printf("  dirs:  %d new, %d changed, %d unmodified\n", s.DirsNew, s.DirsChanged, s.DirsUnmodified)
	fmt.Printf("  added: %d bytes (%d packed) in %.2fs\n", s.DataAdded, s.DataAddedPacked, s.BackupDuration)
}
