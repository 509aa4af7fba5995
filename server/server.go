package annoserv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bosley/soundanno/annotation"
	"github.com/bosley/soundanno/progress"
	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
)

const DefaultAddr = "127.0.0.1:8645"

// Configuration for the bridge service
type Config struct {
	// Address the HTTP bridge listens on
	Addr string

	// Shared secret the front-end must present; empty disables the check
	Token string

	// Resolved save location
	Annotation annotation.Config

	// Path to the progress database
	ProgressDB string

	// Overrides the system file browser, mainly for tests
	Launcher annotation.Launcher
}

// Server exposes the annotation operations to the front-end.
type Server struct {
	config Config

	recorder *annotation.Recorder
	opener   *annotation.Opener
	progress *progress.Store

	// File system watcher
	watcher *fsnotify.Watcher
	tail    *labelTail

	subscribers *SubscriberList

	// HTTP/Websocket
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a new Server instance
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Annotation.SaveRootDir == "" {
		return nil, fmt.Errorf("save directory is not configured")
	}
	if cfg.ProgressDB == "" {
		return nil, fmt.Errorf("progress database path is not configured")
	}

	store, err := progress.Open(cfg.ProgressDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress store: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &Server{
		config:      cfg,
		recorder:    annotation.NewRecorder(cfg.Annotation),
		opener:      annotation.NewOpener(cfg.Annotation, cfg.Launcher),
		progress:    store,
		watcher:     watcher,
		tail:        newLabelTail(cfg.Annotation.LabelsPath()),
		subscribers: NewSubscriberList(),
		upgrader: websocket.Upgrader{
			CheckOrigin: checkLocalOrigin,
		},
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start runs the watcher and serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startWatching(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	slog.Info("Bridge listening", "address", listener.Addr().String(), "saveDir", s.config.Annotation.SaveRootDir)

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	return nil
}

// Stop gracefully shuts down the bridge
func (s *Server) Stop(ctx context.Context) error {
	s.subscribers.CloseAll()

	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	if err := s.watcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close file watcher: %w", err))
	}
	if err := s.progress.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close progress store: %w", err))
	}
	return errors.Join(errs...)
}

// checkLocalOrigin accepts requests without an Origin header (the desktop
// shell) and browser origins served from the loopback interface.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || host == "tauri.localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
