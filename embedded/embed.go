// Package embedded provides the default session prompts embedded in the
// fastreact-agent binary. A project overrides any of them by placing a file
// with the same name under agent/prompts/.
package embedded

import "embed"

// PromptsFS contains the default prompt templates, one markdown file per
// prompt name.
//
//go:embed prompts/*.md
var PromptsFS embed.FS
