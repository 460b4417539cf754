package main

import (
	"testing"
)

// withProject points the global flags at a fresh project directory and
// isolates config lookup from the developer's environment.
func withProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	for _, env := range configEnvVars {
		t.Setenv(env, "")
	}

	oldProject, oldOutput, oldVerbose, oldDryRun := projectDir, output, verbose, dryRun
	projectDir, output, verbose, dryRun = dir, "", false, false
	t.Cleanup(func() {
		projectDir, output, verbose, dryRun = oldProject, oldOutput, oldVerbose, oldDryRun
	})
	return dir
}
