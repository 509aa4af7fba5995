package annoserv

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bosley/soundanno/annotation"
	"github.com/bosley/soundanno/audio"
	"github.com/bosley/soundanno/library"
	"github.com/bosley/soundanno/progress"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxBodyBytes = 1 << 20

	TokenHeader = "X-Annotation-Token"
)

type wsConnection struct {
	id        uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	server    *Server
	closeOnce sync.Once
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Handler returns the bridge's router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(logRequests)
	if s.config.Token != "" {
		router.Use(s.requireToken)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/open-save-root-dir", s.handleOpenSaveRootDir).Methods("POST")
	api.HandleFunc("/annotate", s.handleAnnotate).Methods("POST")
	api.HandleFunc("/labels", s.handleListLabels).Methods("GET")
	api.HandleFunc("/media/{file}/info", s.handleMediaInfo).Methods("GET")
	api.HandleFunc("/media/{file}/clip", s.handleMediaClip).Methods("GET")
	api.HandleFunc("/progress", s.handleInsertProgress).Methods("POST")
	api.HandleFunc("/progress/last", s.handleLastProgress).Methods("GET")
	api.HandleFunc("/progress/needed", s.handleNeedsProcessing).Methods("GET")
	api.HandleFunc("/library", s.handleLibrary).Methods("GET")

	router.HandleFunc("/ws", s.handleWebSocket)

	return router
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// requireToken checks the shared secret. Browsers cannot set headers on a
// websocket handshake, so a token query parameter is accepted as well.
func (s *Server) requireToken(next http.Handler) http.Handler {
	want := []byte(s.config.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(TokenHeader)
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			slog.Warn("Invalid token received", "remoteAddr", r.RemoteAddr, "path", r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: apiError{Kind: "unauthorized", Message: "invalid token"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func statusForKind(kind string) int {
	switch kind {
	case "invalid_input":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	kind := annotation.Kind(err)
	status := statusForKind(kind)
	if status >= 500 {
		slog.Error("Operation failed", "op", op, "kind", kind, "error", err)
	} else {
		slog.Debug("Operation rejected", "op", op, "kind", kind, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: apiError{Kind: kind, Message: err.Error()}})
}

func writeKind(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Kind: kind, Message: message}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %w", annotation.ErrInvalidInput, err)
	}
	return nil
}

func (s *Server) handleOpenSaveRootDir(w http.ResponseWriter, r *http.Request) {
	path, err := s.opener.OpenSaveRootDir(r.Context())
	if err != nil {
		writeError(w, "open-save-root-dir", err)
		return
	}
	writeJSON(w, http.StatusOK, openResponse{Path: path})
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	var data annotation.AnnotationData
	if err := decodeBody(w, r, &data); err != nil {
		writeError(w, "annotate", err)
		return
	}

	label, err := s.recorder.Annotate(r.Context(), data)
	if err != nil {
		writeError(w, "annotate", err)
		return
	}
	writeJSON(w, http.StatusCreated, annotateResponse{Label: label})
}

func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.recorder.Labels()
	if err != nil {
		writeError(w, "labels", err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (s *Server) mediaPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	file := mux.Vars(r)["file"]
	path, err := s.config.Annotation.MediaPath(file)
	if err != nil {
		writeError(w, "media", err)
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeKind(w, http.StatusNotFound, "not_found", "media file not found: "+file)
		} else {
			writeError(w, "media", fmt.Errorf("%w: %w", annotation.ErrStorage, err))
		}
		return "", false
	}
	if ext, _ := annotation.Extension(file); ext != "wav" {
		writeKind(w, http.StatusUnsupportedMediaType, "unsupported_media", "only WAV files can be decoded")
		return "", false
	}
	return path, true
}

func (s *Server) handleMediaInfo(w http.ResponseWriter, r *http.Request) {
	path, ok := s.mediaPath(w, r)
	if !ok {
		return
	}

	info, err := audio.Probe(path)
	if err != nil {
		if errors.Is(err, audio.ErrUnsupportedFormat) {
			writeKind(w, http.StatusUnsupportedMediaType, "unsupported_media", err.Error())
			return
		}
		writeError(w, "media-info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleMediaClip streams the entire or point range of a label as WAV.
func (s *Server) handleMediaClip(w http.ResponseWriter, r *http.Request) {
	path, ok := s.mediaPath(w, r)
	if !ok {
		return
	}

	file := mux.Vars(r)["file"]
	label, found, err := s.recorder.FindLabel(file)
	if err != nil {
		writeError(w, "media-clip", err)
		return
	}
	if !found {
		writeKind(w, http.StatusNotFound, "not_found", "no label for "+file)
		return
	}

	rangeName := r.URL.Query().Get("range")
	rng, ok := label.RangeByName(rangeName)
	if !ok {
		writeKind(w, http.StatusBadRequest, "invalid_input", "range must be entire or point")
		return
	}

	clip, err := audio.ReadRange(path, rng)
	if err != nil {
		if errors.Is(err, audio.ErrUnsupportedFormat) {
			writeKind(w, http.StatusUnsupportedMediaType, "unsupported_media", err.Error())
			return
		}
		writeError(w, "media-clip", err)
		return
	}

	var buf bytes.Buffer
	if err := audio.WriteWav(&buf, clip); err != nil {
		writeError(w, "media-clip", err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleInsertProgress(w http.ResponseWriter, r *http.Request) {
	var entry progress.Entry
	if err := decodeBody(w, r, &entry); err != nil {
		writeError(w, "progress", err)
		return
	}

	stored, err := s.progress.Insert(r.Context(), entry)
	if err != nil {
		if errors.Is(err, progress.ErrInvalidEntry) {
			writeKind(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		writeError(w, "progress", err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleLastProgress(w http.ResponseWriter, r *http.Request) {
	last, err := s.progress.Last(r.Context())
	if err != nil {
		writeError(w, "progress-last", err)
		return
	}
	if last == nil {
		writeKind(w, http.StatusNotFound, "not_found", "no file has been processed yet")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleNeedsProcessing(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		writeKind(w, http.StatusBadRequest, "invalid_input", "file is required")
		return
	}

	needed, err := s.progress.NeedsProcessing(r.Context(), file)
	if err != nil {
		writeError(w, "progress-needed", err)
		return
	}
	writeJSON(w, http.StatusOK, neededResponse{File: file, Needed: needed})
}

// handleLibrary lists the supported audio files under dir that have no
// progress entry yet.
func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		writeKind(w, http.StatusBadRequest, "invalid_input", "dir is required")
		return
	}

	files, err := library.Scan(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeKind(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, "library", err)
		return
	}

	pending, err := library.NewQueue(files, s.progress).Pending(r.Context())
	if err != nil {
		writeError(w, "library", err)
		return
	}
	writeJSON(w, http.StatusOK, libraryResponse{Dir: dir, Files: pending})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := &wsConnection{
		id:     uuid.New(),
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.subscribers.Add(wsConn)
	slog.Debug("Subscriber connected", "subscriberID", wsConn.id, "remoteAddr", r.RemoteAddr)

	hello, err := json.Marshal(WebSocketMessage{
		Type:      MessageHello,
		ClientID:  wsConn.id.String(),
		Timestamp: time.Now(),
	})
	if err == nil {
		wsConn.send <- hello
	}

	go wsConn.writePump()
	go wsConn.readPump()
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.server.subscribers.Remove(c.id)
		c.close()
		c.conn.Close()
		slog.Debug("Subscriber disconnected", "subscriberID", c.id)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
