// Package transport is the HTTP surface: it upgrades /canvas to a
// WebSocket and serves static files everywhere else, rejecting path
// traversal via canonicalize-and-prefix-check. Session lifecycle
// (read/write pumps, JSON framing) lives in the session package; this
// package only wires connections to session.Handler instances.
package transport

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cpsdqs/place/internal/audit"
	"github.com/cpsdqs/place/internal/auth"
	"github.com/cpsdqs/place/internal/session"
)

// ErrStaticDirUnreadable signals a fatal startup condition: an
// unreadable static directory is an error at initialization, not a
// per-request 404.
var ErrStaticDirUnreadable = errors.New("static directory is not readable")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the /canvas upgrade and static file serving together.
type Server struct {
	engine    session.EngineHandle
	authStore *auth.Store
	auditLog  *audit.Store
	staticDir string

	nextID atomic.Uint64
}

// New validates staticDir and returns a ready-to-serve Server.
func New(staticDir string, eng session.EngineHandle, authStore *auth.Store, auditLog *audit.Store) (*Server, error) {
	abs, err := filepath.Abs(staticDir)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.Join(ErrStaticDirUnreadable, err)
	}
	if _, err := os.Stat(resolved); err != nil {
		return nil, errors.Join(ErrStaticDirUnreadable, err)
	}
	return &Server{engine: eng, authStore: authStore, auditLog: auditLog, staticDir: resolved}, nil
}

// Handler returns the composed http.Handler: /canvas upgrades to a
// session, everything else is served as a static file.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/canvas", s.handleCanvas)
	mux.HandleFunc("/", s.handleStatic)
	return mux
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("transport: upgrade failed: %v", err)
		return
	}

	id := s.nextID.Add(1)
	label := uuid.New().String()
	handler := session.New(id, label, conn, s.engine, s.authStore, s.auditLog)

	log.Printf("transport: connection %d (%s) opened", id, label)
	go handler.Serve()
}

// handleStatic serves files under staticDir, mapping "/" to index.html
// and rejecting any path that, once resolved, would escape staticDir.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	reqPath := r.URL.Path
	if reqPath == "/" {
		reqPath = "/index.html"
	}

	cleaned := filepath.Clean(strings.TrimPrefix(reqPath, "/"))
	candidate := filepath.Join(s.staticDir, cleaned)

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if resolved != s.staticDir && !strings.HasPrefix(resolved, s.staticDir+string(filepath.Separator)) {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	switch filepath.Ext(resolved) {
	case ".html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case ".css":
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
	case ".js":
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	}

	http.ServeFile(w, r, resolved)
}
