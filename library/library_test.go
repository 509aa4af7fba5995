package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setChecker map[string]bool

func (s setChecker) NeedsProcessing(ctx context.Context, file string) (bool, error) {
	return !s[file], nil
}

type failingChecker struct{}

func (failingChecker) NeedsProcessing(ctx context.Context, file string) (bool, error) {
	return false, errors.New("db closed")
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, nil, 0644))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.WAV"))
	touch(t, filepath.Join(root, "a.mp3"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "sub", "deep", "c.ogg"))
	touch(t, filepath.Join(root, "sub", "d.flac"))

	files, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.mp3"),
		filepath.Join(root, "b.WAV"),
		filepath.Join(root, "sub", "deep", "c.ogg"),
	}, files)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestQueueSkipsSeenFiles(t *testing.T) {
	q := NewQueue([]string{"a.wav", "b.wav", "c.wav"}, setChecker{"a.wav": true, "c.wav": true})
	ctx := context.Background()

	file, ok, err := q.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b.wav", file)
	assert.Equal(t, 1, q.Remaining())

	_, ok, err = q.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, q.Remaining())
}

func TestQueuePending(t *testing.T) {
	q := NewQueue([]string{"a.wav", "b.wav", "c.wav"}, setChecker{"b.wav": true})
	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.wav", "c.wav"}, pending)
}

func TestQueueCheckerError(t *testing.T) {
	q := NewQueue([]string{"a.wav"}, failingChecker{})
	_, _, err := q.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, q.Remaining(), "file stays queued when the check fails")
}
