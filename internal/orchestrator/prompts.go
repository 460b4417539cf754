package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ferdousbhai/create-fastreact/embedded"
)

const (
	// projectPromptsDir holds per-project prompt overrides.
	projectPromptsDir = "agent/prompts"

	systemPromptName = "system"

	appSpecFile = "app_spec.md"
)

// Prompts resolves prompt templates, preferring the project's own copies
// under agent/prompts/ over the defaults built into the binary.
type Prompts struct {
	ProjectDir string
	// Defaults is consulted when the project has no override. Nil means no
	// fallback.
	Defaults fs.FS
}

// NewPrompts returns a loader backed by the embedded defaults.
func NewPrompts(projectDir string) *Prompts {
	sub, err := fs.Sub(embedded.PromptsFS, "prompts")
	if err != nil {
		// The embed pattern guarantees the directory.
		panic(err)
	}
	return &Prompts{ProjectDir: projectDir, Defaults: sub}
}

// Load returns the named template. A missing or blank template is a
// precondition failure.
func (p *Prompts) Load(name string) (string, error) {
	file := name + ".md"
	data, err := os.ReadFile(filepath.Join(p.ProjectDir, projectPromptsDir, file))
	if errors.Is(err, os.ErrNotExist) && p.Defaults != nil {
		data, err = fs.ReadFile(p.Defaults, file)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: could not load %s prompt", ErrPrecondition, name)
		}
		return "", fmt.Errorf("read %s prompt: %w", name, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: %s prompt is empty", ErrPrecondition, name)
	}
	return string(data), nil
}

// Compose builds the full prompt for a session: the system preamble, a rule,
// the mode's template and, for ledger-building modes, the app instructions.
func (p *Prompts) Compose(mode Mode, instructions string) (string, error) {
	tmpl, err := p.Load(mode.promptName())
	if err != nil {
		return "", err
	}
	prompt := tmpl
	if mode.AllowsAdditions() {
		prompt = fmt.Sprintf("%s\n\n## App Instructions\n\n%s", tmpl, instructions)
	}

	system, err := p.Load(systemPromptName)
	if errors.Is(err, ErrPrecondition) {
		return prompt, nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n\n---\n\n%s", system, prompt), nil
}

// ResolveInstructions returns the app instructions for a run. Instructions
// given on the command line are written to app_spec.md; otherwise an
// existing app_spec.md is read. The second result reports whether the file
// was created.
func ResolveInstructions(projectDir, cliInstructions string) (string, bool, error) {
	path := filepath.Join(projectDir, appSpecFile)
	if strings.TrimSpace(cliInstructions) != "" {
		content := fmt.Sprintf("# App Specification\n\n%s\n", cliInstructions)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", false, fmt.Errorf("write %s: %w", appSpecFile, err)
		}
		return cliInstructions, true, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", appSpecFile, err)
	}
	return string(data), false, nil
}
