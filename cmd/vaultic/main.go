// Command vaultic is the command-line front door for the snapshot
// archiver: it wires configuration, a source, a backend and the
// archiver engine together for a single backup run.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const vaulticVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "vaultic",
	Short: "Incremental, deduplicated snapshot archiver",
	Long:  "vaultic walks a directory, splits file content into content-defined chunks, deduplicates against a prior snapshot, and writes a new snapshot manifest to a repository.",
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("vaultic version %s\n", vaulticVersion)
			return
		}
		cmd.Help()
	},
}

var version bool

func init() {
	rootCmd.Flags().BoolVar(&version, "version", false, "print the version and exit")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "repository location: a local path, or an http(s) URL for the REST backend")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(backupCmd)
}

var repoFlag string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
