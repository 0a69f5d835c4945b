package cli

import (
	"os"
	"path/filepath"
)

// Paths locates the explainer's files under the user's home directory.
type Paths struct {
	HomeDir string
}

// NewPaths returns Paths for the current user.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns ~/.explainer.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns ~/.explainer/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// DataDir returns ~/.explainer/data.
func (p *Paths) DataDir() string {
	return filepath.Join(p.BaseDir(), "data")
}

// HistoryDir returns the directory of the history database.
func (p *Paths) HistoryDir() string {
	return filepath.Join(p.DataDir(), "history")
}

// ExportDir returns the default directory for exported files.
func (p *Paths) ExportDir() string {
	return filepath.Join(p.BaseDir(), "exports")
}

// EnsureDataDir creates the data directory if it does not exist.
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir(), 0o755)
}
