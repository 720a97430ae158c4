// Package cli provides the stella command-line interface.
package cli

import (
	"os"
)

// Run executes the root command and exits non-zero on failure.
func Run() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
