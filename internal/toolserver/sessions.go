package toolserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/logger"
)

// SessionHeader carries the MCP session id on every request after initialize.
const SessionHeader = "Mcp-Session-Id"

// mcpSession pairs one MCP server instance with its HTTP transport.
// sessionTransport is the streamable HTTP transport of one session.
type sessionTransport interface {
	http.Handler
	Shutdown(ctx context.Context) error
}

type mcpSession struct {
	id        string
	transport sessionTransport
	lastSeen  atomic.Int64 // unix nanos
	inflight  atomic.Int32
}

func (s *mcpSession) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// serve hands one request to the transport, counting it as in flight.
func (s *mcpSession) serve(w http.ResponseWriter, req *http.Request) {
	s.touch()
	s.inflight.Add(1)
	defer func() {
		s.inflight.Add(-1)
		s.touch()
	}()
	s.transport.ServeHTTP(w, req)
}

// sessionRegistry gives every MCP client its own server instance. A session
// is created by the first POST without a session id, registered under the id
// the transport assigns, and removed on DELETE, idle expiry or shutdown.
type sessionRegistry struct {
	newServer   func() *server.MCPServer
	maxSessions int
	logger      *logger.Logger

	mu       sync.Mutex
	sessions map[string]*mcpSession
}

func newSessionRegistry(newServer func() *server.MCPServer, maxSessions int, log *logger.Logger) *sessionRegistry {
	return &sessionRegistry{
		newServer:   newServer,
		maxSessions: maxSessions,
		logger:      log.WithFields(zap.String("component", "mcp-sessions")),
		sessions:    make(map[string]*mcpSession),
	}
}

// ServeHTTP routes /mcp traffic to the owning session.
func (r *sessionRegistry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := req.Header.Get(SessionHeader)
	if id == "" {
		if req.Method != http.MethodPost {
			writeRPCError(w, http.StatusBadRequest, "Bad Request: "+SessionHeader+" header is required")
			return
		}
		r.create(w, req)
		return
	}

	sess := r.get(id)
	if sess == nil {
		writeRPCError(w, http.StatusNotFound, "Session not found")
		return
	}
	sess.serve(w, req)

	if req.Method == http.MethodDelete {
		r.remove(id, "client closed")
	}
}

// create serves the initialize request on a fresh server and registers the
// session as soon as the transport writes its id header.
func (r *sessionRegistry) create(w http.ResponseWriter, req *http.Request) {
	if r.Len() >= r.maxSessions {
		writeRPCError(w, http.StatusServiceUnavailable, "Too many MCP sessions")
		return
	}

	sess := &mcpSession{
		transport: server.NewStreamableHTTPServer(r.newServer(), server.WithEndpointPath("/mcp")),
	}

	cw := &captureWriter{ResponseWriter: w, onHeader: func(h http.Header) {
		if id := h.Get(SessionHeader); id != "" {
			sess.id = id
			r.register(sess)
		}
	}}
	sess.serve(cw, req)

	if sess.id == "" {
		_ = sess.transport.Shutdown(context.Background())
	}
}

func (r *sessionRegistry) register(sess *mcpSession) {
	r.mu.Lock()
	r.sessions[sess.id] = sess
	n := len(r.sessions)
	r.mu.Unlock()
	r.logger.WithSessionID(sess.id).Info("MCP session opened", zap.Int("sessions", n))
}

func (r *sessionRegistry) get(id string) *mcpSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

func (r *sessionRegistry) remove(id, reason string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := sess.transport.Shutdown(context.Background()); err != nil {
		r.logger.Warn("failed to shut down MCP session", zap.Error(err))
	}
	r.logger.WithSessionID(id).Info("MCP session closed", zap.String("reason", reason), zap.Int("sessions", n))
}

// Len returns the number of open sessions.
func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// sweep closes sessions with no request in flight that were last seen before
// now-idle.
func (r *sessionRegistry) sweep(now time.Time, idle time.Duration) int {
	cutoff := now.Add(-idle).UnixNano()
	var expired []string
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.inflight.Load() == 0 && s.lastSeen.Load() < cutoff {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()
	for _, id := range expired {
		r.remove(id, "idle")
	}
	return len(expired)
}

// closeAll tears down every session.
func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.remove(id, "shutdown")
	}
}

// captureWriter calls onHeader once, right before the status line is written.
type captureWriter struct {
	http.ResponseWriter
	onHeader func(http.Header)
	once     sync.Once
}

func (w *captureWriter) WriteHeader(code int) {
	w.once.Do(func() { w.onHeader(w.Header()) })
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.once.Do(func() { w.onHeader(w.Header()) })
	return w.ResponseWriter.Write(b)
}

// Flush keeps SSE responses streaming through the wrapper.
func (w *captureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeRPCError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error":   map[string]any{"code": -32000, "message": msg},
	})
}
