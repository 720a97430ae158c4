package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigFilename is looked up in the working directory when no
// explicit path is given.
const DefaultConfigFilename = "stella.toml"

// ResolveConfigPath picks the config file to load: the explicit flag, then
// STELLA_CONFIG, then ./stella.toml if present. An empty result means
// defaults and environment only.
func ResolveConfigPath(flag string) (string, error) {
	for _, candidate := range []string{flag, os.Getenv("STELLA_CONFIG")} {
		if strings.TrimSpace(candidate) != "" {
			return absPath(candidate)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	path := filepath.Join(cwd, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", nil
}

func absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Clean(filepath.Join(cwd, path)), nil
}
