package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/nilsson-dev/vaultic/internal/backend"
	"github.com/nilsson-dev/vaultic/internal/config"
	"github.com/nilsson-dev/vaultic/internal/ident"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new repository at --repo",
	Run:   runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	if repoFlag == "" {
		log.Fatal("init: --repo is required")
	}
	be := openBackend(repoFlag)
	if err := be.Create(); err != nil {
		log.Fatalf("init: %v", err)
	}

	cfg, err := config.NewRepositoryConfig()
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := be.WriteBytes(backend.Config, ident.Zero, data); err != nil {
		log.Fatalf("init: write config: %v", err)
	}
	if err := config.SaveLocalCache(configCachePath(repoFlag), cfg); err != nil {
		log.Fatalf("init: cache config: %v", err)
	}

	fmt.Printf("repository initialized at %s\n", be.Location())
}
