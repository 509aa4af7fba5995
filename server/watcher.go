package annoserv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bosley/soundanno/annotation"
	"github.com/fsnotify/fsnotify"
)

// labelTail reads the labels log from where it last stopped.
type labelTail struct {
	path   string
	mu     sync.Mutex
	offset int64
}

func newLabelTail(path string) *labelTail {
	return &labelTail{path: path}
}

// seekEnd skips everything already in the log.
func (t *labelTail) seekEnd() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, err := os.Stat(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		t.offset = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat labels log: %w", err)
	}
	t.offset = info.Size()
	return nil
}

// readNew returns labels from complete lines written since the last call.
// A trailing partial line is left for the next call.
func (t *labelTail) readNew() ([]annotation.Label, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		t.offset = 0
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open labels log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat labels log: %w", err)
	}
	if info.Size() < t.offset {
		slog.Warn("Labels log shrank, reading from the start", "path", t.path, "size", info.Size(), "offset", t.offset)
		t.offset = 0
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek labels log: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels log: %w", err)
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, nil
	}
	complete := data[:end+1]
	t.offset += int64(len(complete))

	return annotation.ReadLabelsFrom(bytes.NewReader(complete))
}

// startWatching prepares the save directory and begins watching it. New
// labels are broadcast from the watch loop until ctx is done.
func (s *Server) startWatching(ctx context.Context) error {
	if err := s.recorder.EnsureDir(); err != nil {
		return err
	}
	if err := s.tail.seekEnd(); err != nil {
		return err
	}
	if err := s.watcher.Add(s.config.Annotation.SaveRootDir); err != nil {
		return fmt.Errorf("failed to watch save directory: %w", err)
	}

	slog.Info("Started watching save directory", "path", s.config.Annotation.SaveRootDir)

	go s.watchFiles(ctx)
	return nil
}

func (s *Server) watchFiles(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if err := s.handleFSEvent(event); err != nil {
				slog.Error("Failed to handle file system event",
					"error", err,
					"event", event)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (s *Server) handleFSEvent(event fsnotify.Event) error {
	// Skip in-flight copies
	if strings.HasSuffix(event.Name, ".tmp") {
		return nil
	}
	if filepath.Base(event.Name) != annotation.LabelsFile {
		if event.Has(fsnotify.Create) {
			slog.Debug("New file in save directory", "file", filepath.Base(event.Name))
		}
		return nil
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return nil
	}

	labels, err := s.tail.readNew()
	if err != nil {
		return err
	}

	for _, label := range labels {
		data, err := json.Marshal(WebSocketMessage{
			Type:      MessageLabel,
			Timestamp: time.Now(),
			Payload:   label,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		s.subscribers.Broadcast(data)
	}

	if len(labels) > 0 {
		slog.Debug("Broadcast new labels", "count", len(labels), "subscribers", s.subscribers.Len())
	}
	return nil
}
