package server

import (
	"log"
	"net/http"

	"github.com/doorward/broker/internal/protocol"
	"github.com/doorward/broker/internal/registry"
)

// handleDeviceWS handles the device-role WebSocket endpoint. The device
// authenticates with HTTP Basic credentials on the upgrade request, then
// streams status reports that are fanned out to every client.
func (s *Server) handleDeviceWS(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok || !s.config.DeviceCredential.Match(username, password) {
		log.Printf("server: device auth rejected from %s", r.RemoteAddr)
		s.rejectUpgrade(w, r, "authentication failed")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: device upgrade failed: %v", err)
		return
	}

	conn := registry.NewConn(registry.RoleDevice, ws)
	go conn.WritePump()
	conn.ConfigureRead()

	s.config.Registry.ConnectDevice(conn)
	defer func() {
		conn.Close()
		s.config.Registry.DisconnectDevice(conn)
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("server: device %s read ended: %v", conn.ID(), err)
			return
		}

		status, verr := protocol.ParseDeviceStatus(data)
		if verr != nil {
			// Malformed input is reported back but never tears down
			// the session.
			log.Printf("server: device %s sent malformed status: %v", conn.ID(), verr)
			sendErrorFrame(conn, verr)
			continue
		}

		s.config.Registry.BroadcastDeviceStatus(status)
	}
}
