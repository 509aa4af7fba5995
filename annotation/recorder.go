package annotation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Recorder persists annotations into the save directory.
type Recorder struct {
	config Config
	newID  func() (uuid.UUID, error)

	// serializes appends to the labels log
	appendMu sync.Mutex
}

type RecorderOption func(*Recorder)

// WithIDGenerator replaces the random UUID source.
func WithIDGenerator(gen func() (uuid.UUID, error)) RecorderOption {
	return func(r *Recorder) {
		r.newID = gen
	}
}

func NewRecorder(cfg Config, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		config: cfg,
		newID:  uuid.NewRandom,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Config() Config {
	return r.config
}

// EnsureDir creates the save directory and any missing ancestors.
// Calling it on an existing directory is a no-op.
func (r *Recorder) EnsureDir() error {
	if err := os.MkdirAll(r.config.SaveRootDir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create save directory: %w", ErrStorage, err)
	}
	return nil
}

// Annotate copies the source file into the save directory under a fresh
// name and appends a label for it to the log.
//
// The copy happens before the log write. A failed copy leaves the log
// untouched and a failed log write removes the copy, so every line in the
// log refers to a file that exists.
func (r *Recorder) Annotate(ctx context.Context, data AnnotationData) (Label, error) {
	if data.FilePath == "" {
		return Label{}, fmt.Errorf("%w: file path is empty", ErrInvalidInput)
	}

	ext, err := Extension(data.FilePath)
	if err != nil {
		return Label{}, err
	}

	if err := ctx.Err(); err != nil {
		return Label{}, err
	}

	id, err := r.newID()
	if err != nil {
		return Label{}, fmt.Errorf("failed to generate file id: %w", err)
	}

	label := Label{
		File:   id.String() + "." + ext,
		Entire: data.Entire,
		Point:  data.Point,
	}

	if err := r.EnsureDir(); err != nil {
		return Label{}, err
	}

	dst := filepath.Join(r.config.SaveRootDir, label.File)
	if err := copyFile(data.FilePath, dst); err != nil {
		return Label{}, err
	}

	if err := r.appendLabel(label); err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			slog.Error("Failed to remove copy after log write failure", "error", rmErr, "file", dst)
		}
		return Label{}, err
	}

	slog.Info("Recorded annotation",
		"source", data.FilePath,
		"file", label.File,
		"entire", label.Entire,
		"point", label.Point)

	return label, nil
}

// Extension returns the lowercased extension of path without the dot.
// Names without a dot after the first character have no extension.
func Extension(path string) (string, error) {
	base := filepath.Base(path)
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return "", fmt.Errorf("%w: %s", ErrMissingExtension, path)
	}
	return strings.ToLower(base[i+1:]), nil
}

// copyFile writes src into a temporary file next to dst and renames it
// into place once the bytes are on disk.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return fmt.Errorf("%w: failed to open source: %w", ErrStorage, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: failed to stat source: %w", ErrStorage, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: source is a directory: %s", ErrInvalidInput, src)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temporary file: %w", ErrStorage, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, in); err != nil {
		cleanup()
		return fmt.Errorf("%w: failed to copy file: %w", ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: failed to sync copy: %w", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to close copy: %w", ErrStorage, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to move copy into place: %w", ErrStorage, err)
	}

	slog.Debug("Copied media file", "source", src, "destination", dst, "bytes", info.Size())
	return nil
}
