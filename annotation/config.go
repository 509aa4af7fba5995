package annotation

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// AppIdentifier names the per-user application data directory.
	AppIdentifier = "com.soundanno.app"

	DirName    = "sound-annotation"
	LabelsFile = "labels.jsonl"
)

// Config holds the resolved save location. It is built once at startup
// and handed to every operation.
type Config struct {
	SaveRootDir string
}

func NewConfig(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("%w: application data directory is empty", ErrInvalidInput)
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return Config{SaveRootDir: filepath.Join(abs, DirName)}, nil
}

// DefaultDataDir returns the OS-provided per-user application data
// directory for this tool.
func DefaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(base, AppIdentifier), nil
}

func (c Config) LabelsPath() string {
	return filepath.Join(c.SaveRootDir, LabelsFile)
}

// MediaPath returns the location of a stored copy. Names containing path
// separators are rejected so callers cannot escape the save directory.
func (c Config) MediaPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid media name %q", ErrInvalidInput, name)
	}
	return filepath.Join(c.SaveRootDir, name), nil
}
