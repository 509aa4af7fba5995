package library

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// SupportedExtensions lists the audio formats offered for annotation.
var SupportedExtensions = []string{".mp3", ".wav", ".ogg"}

func IsSupported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// Scan walks root recursively and returns every supported audio file in
// lexical order.
func Scan(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

// Checker reports whether a file still has to be looked at.
type Checker interface {
	NeedsProcessing(ctx context.Context, file string) (bool, error)
}

// Queue hands out scanned files that the checker has not seen yet.
type Queue struct {
	mu      sync.Mutex
	files   []string
	checker Checker
}

func NewQueue(files []string, checker Checker) *Queue {
	return &Queue{files: slices.Clone(files), checker: checker}
}

// Next pops files until one needs processing. ok is false once the queue
// is drained.
func (q *Queue) Next(ctx context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.files) > 0 {
		file := q.files[0]
		need, err := q.checker.NeedsProcessing(ctx, file)
		if err != nil {
			return "", false, err
		}
		q.files = q.files[1:]
		if need {
			return file, true, nil
		}
	}
	return "", false, nil
}

// Pending drains the queue and returns every file that needs processing.
func (q *Queue) Pending(ctx context.Context) ([]string, error) {
	pending := make([]string, 0)
	for {
		file, ok, err := q.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return pending, nil
		}
		pending = append(pending, file)
	}
}

func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.files)
}
