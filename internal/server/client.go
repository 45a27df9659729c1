package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/doorward/broker/internal/protocol"
	"github.com/doorward/broker/internal/registry"
)

// handleClientWS handles the client-role WebSocket endpoint. Clients
// authenticate with the session cookie issued by /login, then may request
// history snapshots and relay commands to the device.
func (s *Server) handleClientWS(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		log.Printf("server: client without session cookie from %s", r.RemoteAddr)
		s.rejectUpgrade(w, r, "authentication required")
		return
	}
	username, ok := s.config.Sessions.Check(cookie.Value)
	if !ok {
		log.Printf("server: client with invalid session from %s", r.RemoteAddr)
		s.rejectUpgrade(w, r, "authentication failed")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: client upgrade failed: %v", err)
		return
	}

	conn := registry.NewConn(registry.RoleClient, ws)
	go conn.WritePump()
	conn.ConfigureRead()

	log.Printf("server: client %s authenticated as %s", conn.ID(), username)

	s.config.Registry.ConnectClient(conn)
	defer func() {
		conn.Close()
		s.config.Registry.DisconnectClient(conn)
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("server: client %s read ended: %v", conn.ID(), err)
			return
		}

		req, verr := protocol.ParseClientRequest(data)
		if verr != nil {
			log.Printf("server: client %s sent malformed request: %v", conn.ID(), verr)
			sendErrorFrame(conn, verr)
			continue
		}

		switch req := req.(type) {
		case protocol.RequestHistory:
			entries := s.config.Registry.RecentHistory(req.MaxEntries)
			reply, err := json.Marshal(protocol.ResponseHistory{History: entries})
			if err != nil {
				log.Printf("server: failed to marshal history reply: %v", err)
				continue
			}
			if !conn.Send(reply) {
				// Queue full means the client cannot keep up; drop it.
				log.Printf("server: client %s send queue full, dropping", conn.ID())
				return
			}
		case protocol.SendCommand:
			s.config.Registry.SendDeviceCommand(req.Command)
		default:
			log.Printf("server: client %s sent unhandled request type %T", conn.ID(), req)
		}
	}
}
