// Package project locates the root of a FastReact project.
package project

import (
	"os"
	"path/filepath"
)

// markers identify a project root, most specific first.
var markers = []string{
	"feature_list.json",
	"app_spec.md",
	".fastreact-agent",
	filepath.Join("agent", "prompts"),
}

// DetectRoot walks up from startDir to the nearest directory holding a
// project marker. Returns the empty string when none is found.
func DetectRoot(startDir string) string {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return ""
		}
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}

	for {
		if IsRoot(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // Reached root
		}
		dir = parent
	}
	return ""
}

// IsRoot reports whether dir itself carries a project marker.
func IsRoot(dir string) bool {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}

// Resolve returns explicit when set, otherwise the detected root, otherwise
// startDir itself so a brand-new project can be initialized in place.
func Resolve(explicit, startDir string) (string, error) {
	if explicit != "" {
		return filepath.Abs(explicit)
	}
	if root := DetectRoot(startDir); root != "" {
		return root, nil
	}
	if startDir == "" {
		return os.Getwd()
	}
	return filepath.Abs(startDir)
}
