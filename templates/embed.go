// Package templates embeds the default workspace files and phase prompts.
package templates

import "embed"

//go:embed config.yaml recipe.toml plan.example.yaml phases
var FS embed.FS
