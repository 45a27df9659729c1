// Package server provides the HTTP and WebSocket wiring for the broker:
// the login endpoint for the client role, and the per-connection session
// handlers that authenticate, register with the connection registry, and
// drive the receive loops for the device and client channels.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	// gorilla/websocket is the most popular WebSocket library for Go.
	// It provides a complete implementation of the WebSocket protocol
	// with support for reading/writing messages, ping/pong, and close
	// handling.
	"github.com/gorilla/websocket"

	"github.com/doorward/broker/internal/auth"
	"github.com/doorward/broker/internal/protocol"
	"github.com/doorward/broker/internal/registry"
	"github.com/doorward/broker/internal/storage"
)

// Config holds the collaborators and settings for a Server.
type Config struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:8090").
	Addr string

	// Registry is the shared connection registry. Required.
	Registry *registry.Registry

	// Sessions is the client-role session store. Required.
	Sessions *auth.Store

	// DeviceCredential is the static credential the device role must
	// present as HTTP Basic auth on the upgrade request.
	DeviceCredential auth.Credential

	// Audit receives audit events. May be nil.
	Audit registry.Auditor

	// TLSCert and TLSKey, when both set, switch the server to wss/https.
	TLSCert string
	TLSKey  string
}

// Server accepts device and client connections, gates them through their
// respective admission policies, and runs their session handlers.
type Server struct {
	config   Config
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// New creates a Server. Call Start or StartAsync to begin accepting
// connections.
func New(config Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			// The broker is origin-agnostic: admission is decided by
			// credentials and session cookies, not by origin.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/ws/device", s.handleDeviceWS)
	mux.HandleFunc("/ws/client", s.handleClientWS)

	// Health check endpoint for monitoring
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Start begins listening for connections. This method blocks, so call it
// in a goroutine if you need to do other work. It returns
// http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	mux := s.createMux()

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: mux,
	}
	srv := s.httpServer
	s.mu.Unlock()

	if s.config.TLSCert != "" && s.config.TLSKey != "" {
		log.Printf("server: listening on %s (TLS enabled)", s.config.Addr)
		return srv.ListenAndServeTLS(s.config.TLSCert, s.config.TLSKey)
	}

	log.Printf("server: listening on %s", s.config.Addr)
	return srv.ListenAndServe()
}

// StartAsync starts the server in a goroutine and returns any startup
// errors. The returned channel receives nil if the listener was created
// successfully, or an error if not (e.g., port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	mux := s.createMux()

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
		close(errCh)
		return errCh
	}

	s.mu.Lock()
	s.httpServer = &http.Server{Handler: mux}
	srv := s.httpServer
	s.mu.Unlock()

	go func() {
		log.Printf("server: listening on %s", ln.Addr())
		errCh <- nil
		close(errCh)

		var serveErr error
		if s.config.TLSCert != "" && s.config.TLSKey != "" {
			serveErr = srv.ServeTLS(ln, s.config.TLSCert, s.config.TLSKey)
		} else {
			serveErr = srv.Serve(ln)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Printf("server: serve error: %v", serveErr)
		}
	}()

	return errCh
}

// Stop shuts the server down: every registered connection is signaled to
// close, then the HTTP server stops accepting new ones.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	srv := s.httpServer
	s.mu.Unlock()

	s.config.Registry.CloseAll()

	if srv != nil {
		return srv.Close()
	}
	return nil
}

// rejectUpgrade completes the WebSocket handshake and immediately closes
// it with a policy-violation code. Authentication failures are fatal to
// the connection attempt; completing the handshake first lets the peer
// observe the close code instead of a bare HTTP error.
func (s *Server) rejectUpgrade(w http.ResponseWriter, r *http.Request, reason string) {
	s.recordAudit(storage.EventAuthRejected, "", reason)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Handshake itself failed; nothing more to say to the peer.
		log.Printf("server: upgrade failed during rejection: %v", err)
		return
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	ws.WriteMessage(websocket.CloseMessage, msg)
	ws.Close()
}

// sendErrorFrame queues the standard structured error frame on a
// connection after a failed parse. The connection stays open.
func sendErrorFrame(conn *registry.Conn, verr *protocol.ValidationError) {
	data, err := json.Marshal(protocol.NewErrorFrame(verr))
	if err != nil {
		log.Printf("server: failed to marshal error frame: %v", err)
		return
	}
	if !conn.Send(data) {
		log.Printf("server: dropped error frame for %s", conn.ID())
	}
}

// recordAudit writes an audit event if auditing is enabled.
func (s *Server) recordAudit(kind, connID, detail string) {
	if s.config.Audit == nil {
		return
	}
	if err := s.config.Audit.Record(kind, connID, detail); err != nil {
		log.Printf("server: audit record failed: %v", err)
	}
}
