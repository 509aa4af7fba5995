package annotation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLauncher struct {
	paths []string
	err   error
}

func (f *fakeLauncher) Launch(ctx context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	return nil
}

func TestOpenSaveRootDirMissingDirectory(t *testing.T) {
	cfg, err := NewConfig(t.TempDir())
	require.NoError(t, err)
	launcher := &fakeLauncher{}

	path, err := NewOpener(cfg, launcher).OpenSaveRootDir(context.Background())
	require.NoError(t, err, "a missing directory is handed to the browser as-is")
	assert.Equal(t, cfg.SaveRootDir, path)
	assert.Equal(t, []string{cfg.SaveRootDir}, launcher.paths)
	assert.NoDirExists(t, cfg.SaveRootDir)
}

func TestOpenSaveRootDirRepeated(t *testing.T) {
	cfg, err := NewConfig(t.TempDir())
	require.NoError(t, err)
	launcher := &fakeLauncher{}
	opener := NewOpener(cfg, launcher)

	for i := 0; i < 3; i++ {
		_, err := opener.OpenSaveRootDir(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, launcher.paths, 3)
}

func TestOpenSaveRootDirLaunchFailure(t *testing.T) {
	cfg, err := NewConfig(t.TempDir())
	require.NoError(t, err)
	launcher := &fakeLauncher{err: errors.Join(ErrLaunch, errors.New("exec: not found"))}

	_, err = NewOpener(cfg, launcher).OpenSaveRootDir(context.Background())
	require.ErrorIs(t, err, ErrLaunch)
	assert.Equal(t, "launch", Kind(err))
}

func TestSystemLauncherCommand(t *testing.T) {
	tests := map[string]string{
		"windows": "explorer",
		"darwin":  "open",
		"linux":   "xdg-open",
		"freebsd": "xdg-open",
	}
	for goos, want := range tests {
		cmd := SystemLauncher{GOOS: goos}.Command("/data/sound-annotation")
		assert.Equal(t, []string{want, "/data/sound-annotation"}, cmd.Args, goos)
	}
}

func TestSystemLauncherStartFailure(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	err := SystemLauncher{GOOS: "linux"}.Launch(context.Background(), "/nowhere")
	assert.ErrorIs(t, err, ErrLaunch)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "storage", Kind(ErrStorage))
	assert.Equal(t, "internal", Kind(errors.New("boom")))
}
