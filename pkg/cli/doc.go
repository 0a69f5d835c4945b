// Package cli holds the pieces shared by the explainer commands.
//
// It covers:
//   - the config file with kubectl-style named contexts
//   - the ~/.explainer directory layout
//   - output formatting (YAML, JSON, raw) and request files
//   - terminal styles for the interactive session
//
// Example:
//
//	cfg, err := cli.LoadConfig("")
//	ctx, err := cfg.ResolveContext("")
//	key := ctx.ResolvedAPIKey()
package cli
