package safety

// Policy holds the fixed sets the validator consults. Names are compared
// case-sensitively.
type Policy struct {
	// AllowedCommands is the set of executables permitted to run at all.
	AllowedCommands map[string]bool

	// DisposableDirs may be the target of a recursive or forced rm.
	DisposableDirs map[string]bool

	// DevProcesses are the process names pkill may target.
	DevProcesses []string

	// Downloaders fetch remote content.
	Downloaders map[string]bool

	// Interpreters execute code they are given.
	Interpreters map[string]bool
}

var defaultAllowedCommands = []string{
	// File and directory inspection / manipulation
	"ls", "cat", "head", "tail", "wc", "grep", "find",
	"cp", "mv", "rm", "rmdir", "mkdir", "touch", "chmod",
	"sort", "uniq", "diff", "tree", "du", "stat", "sed", "tr", "cut",
	// Version control
	"git",
	// Package managers, runtimes, type-checkers
	"npm", "npx", "pnpm", "yarn", "node",
	"python", "python3", "uv", "uvx", "pip", "modal",
	"tsc", "eslint", "prettier", "vite", "vitest",
	// Network
	"curl", "wget",
	// Shell utilities
	"echo", "printf", "which", "pwd", "cd", "export", "sleep", "true", "test",
	// Process tools
	"pkill", "kill", "ps", "lsof",
}

var defaultDisposableDirs = []string{
	"node_modules", "dist", "build", ".next", ".vite", ".turbo",
	"coverage", "__pycache__", ".pytest_cache", ".venv", ".cache",
}

var defaultDevProcesses = []string{
	"node", "npm", "npx", "pnpm", "vite", "next", "tsc", "modal", "uvicorn",
}

var defaultInterpreters = []string{
	"python", "python3", "node", "bash", "sh", "zsh", "perl", "ruby", "deno", "bun",
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		AllowedCommands: toSet(defaultAllowedCommands),
		DisposableDirs:  toSet(defaultDisposableDirs),
		DevProcesses:    append([]string(nil), defaultDevProcesses...),
		Downloaders:     toSet([]string{"curl", "wget"}),
		Interpreters:    toSet(defaultInterpreters),
	}
}

// WithExtraCommands returns a copy of p whose allowlist also contains names.
// The structural rules are unaffected.
func (p Policy) WithExtraCommands(names ...string) Policy {
	allowed := make(map[string]bool, len(p.AllowedCommands)+len(names))
	for k, v := range p.AllowedCommands {
		allowed[k] = v
	}
	for _, n := range names {
		if n != "" {
			allowed[n] = true
		}
	}
	p.AllowedCommands = allowed
	return p
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
