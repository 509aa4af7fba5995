package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// Launcher hands a directory to something that can show it to the user.
type Launcher interface {
	Launch(ctx context.Context, path string) error
}

// SystemLauncher starts the platform's graphical file browser.
type SystemLauncher struct {
	// GOOS overrides runtime.GOOS when set.
	GOOS string
}

func (l SystemLauncher) Command(path string) *exec.Cmd {
	goos := l.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	switch goos {
	case "windows":
		return exec.Command("explorer", path)
	case "darwin":
		return exec.Command("open", path)
	default:
		return exec.Command("xdg-open", path)
	}
}

// Launch starts the browser and returns without waiting for it to exit.
// The process is not tied to ctx; closing the request must not close the
// window.
func (l SystemLauncher) Launch(ctx context.Context, path string) error {
	cmd := l.Command(path)

	slog.Debug("Starting file browser", "command", cmd.String())

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	go func() {
		// explorer.exe exits 1 on success, so the status is only logged
		if err := cmd.Wait(); err != nil {
			slog.Debug("File browser exited", "error", err, "path", path)
		}
	}()

	return nil
}

// Opener shows the save directory in the file browser.
type Opener struct {
	config   Config
	launcher Launcher
}

func NewOpener(cfg Config, launcher Launcher) *Opener {
	if launcher == nil {
		launcher = SystemLauncher{}
	}
	return &Opener{config: cfg, launcher: launcher}
}

// OpenSaveRootDir launches the file browser on the save directory and
// returns the path it was given. The directory is not checked for
// existence first; on a fresh install the browser decides what to show.
func (o *Opener) OpenSaveRootDir(ctx context.Context) (string, error) {
	dir := o.config.SaveRootDir
	if err := o.launcher.Launch(ctx, dir); err != nil {
		return "", err
	}
	slog.Info("Opened save directory", "path", dir)
	return dir, nil
}
