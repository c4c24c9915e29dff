package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/nilsson-dev/vaultic/internal/backend"
)

// openBackend picks the REST backend for http(s) URLs and the local
// filesystem backend for everything else, mirroring how the teacher's
// portal/remote commands distinguish a local path from a remote URL.
func openBackend(location string) backend.Backend {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return backend.NewRestBackend(location)
	}
	return backend.NewLocalBackend(location)
}

func indexPath(location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return filepath.Join(".", ".vaultic-index.db")
	}
	return filepath.Join(location, ".vaultic-index.db")
}

func configCachePath(location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return filepath.Join(".", ".vaultic-config.json")
	}
	return filepath.Join(location, ".vaultic-config.json")
}

func hostOrDefault(host string) (string, error) {
	if host != "" {
		return host, nil
	}
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("determine hostname: %w", err)
	}
	return name, nil
}

// currentUsername returns the invoking OS user's name for the
// snapshot's optional Username field, or "" if it can't be determined
// (the field is omitempty; an absent username isn't fatal to a backup).
func currentUsername() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
