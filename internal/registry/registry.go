package registry

import (
	"log"
	"sync"
	"time"

	"github.com/doorward/broker/internal/protocol"
	"github.com/doorward/broker/internal/storage"
)

// DefaultHistoryCapacity bounds the history ring when no capacity is
// configured.
const DefaultHistoryCapacity = 1024

// Auditor receives audit events from the registry. storage.AuditStore
// implements it; a nil Auditor disables auditing.
type Auditor interface {
	Record(kind, connID, detail string) error
}

// Config holds construction options for the Registry.
type Config struct {
	// HistoryCapacity is the fixed size of the history ring.
	// Default: DefaultHistoryCapacity.
	HistoryCapacity int

	// Audit receives audit events. May be nil.
	Audit Auditor

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time
}

// Registry is the single point of mutation for the broker's shared state.
// One mutex serializes the device slot, the client set, and the history
// ring; every operation below takes it. Delivery to peers is decoupled
// through each connection's buffered send channel, so no slow or failed
// peer can stall an operation.
type Registry struct {
	mu sync.Mutex

	// device is the single device slot. A new device connection replaces
	// the previous value without closing it; the replaced connection's
	// handler keeps running until its own transport reports disconnect.
	device *Conn

	// clients is the set of observing client connections.
	clients map[*Conn]bool

	// history is a fixed-capacity ring: entries[head] is the oldest of
	// count entries.
	history []protocol.HistoryEntry
	head    int
	count   int

	audit   Auditor
	timeNow func() time.Time
}

// New creates a Registry. The history starts with a disconnected entry so
// clients always have at least one status to show.
func New(config Config) *Registry {
	if config.HistoryCapacity <= 0 {
		config.HistoryCapacity = DefaultHistoryCapacity
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	r := &Registry{
		clients: make(map[*Conn]bool),
		history: make([]protocol.HistoryEntry, config.HistoryCapacity),
		audit:   config.Audit,
		timeNow: config.TimeNow,
	}
	r.mu.Lock()
	r.appendHistory(protocol.Disconnected())
	r.mu.Unlock()
	return r
}

// ConnectDevice registers conn as the device slot, replacing any prior
// value, and broadcasts a connected status to all clients. The replaced
// connection is deliberately not closed here: its handler keeps running
// until its own transport disconnects, and its eventual DisconnectDevice
// call is a guarded no-op.
func (r *Registry) ConnectDevice(conn *Conn) {
	r.mu.Lock()
	if r.device != nil {
		log.Printf("registry: device %s replaced by %s", r.device.id, conn.id)
	}
	r.device = conn
	r.mu.Unlock()

	log.Printf("registry: device %s connected", conn.id)
	r.recordAudit(storage.EventDeviceConnected, conn.id, "")
	r.BroadcastDeviceStatus(protocol.Connected())
}

// DisconnectDevice clears the device slot and broadcasts a disconnected
// status. The slot is only cleared if conn still owns it; a stale
// disconnect from a connection that was already replaced does nothing, so
// a replacement device is never knocked out by its predecessor's cleanup.
func (r *Registry) DisconnectDevice(conn *Conn) {
	r.mu.Lock()
	if r.device != conn {
		r.mu.Unlock()
		log.Printf("registry: stale disconnect from replaced device %s ignored", conn.id)
		return
	}
	r.device = nil
	r.mu.Unlock()

	log.Printf("registry: device %s disconnected", conn.id)
	r.recordAudit(storage.EventDeviceDisconnected, conn.id, "")
	r.BroadcastDeviceStatus(protocol.Disconnected())
}

// ConnectClient adds conn to the client set.
func (r *Registry) ConnectClient(conn *Conn) {
	r.mu.Lock()
	r.clients[conn] = true
	total := len(r.clients)
	r.mu.Unlock()

	log.Printf("registry: client %s connected (%d total)", conn.id, total)
	r.recordAudit(storage.EventClientConnected, conn.id, "")
}

// DisconnectClient removes conn from the client set. Removing an absent
// connection is a no-op, so the broadcast path kicking a client and the
// client's own handler exiting can both call this safely.
func (r *Registry) DisconnectClient(conn *Conn) {
	r.mu.Lock()
	if !r.clients[conn] {
		r.mu.Unlock()
		return
	}
	delete(r.clients, conn)
	remaining := len(r.clients)
	r.mu.Unlock()

	log.Printf("registry: client %s disconnected (%d remaining)", conn.id, remaining)
	r.recordAudit(storage.EventClientDisconnected, conn.id, "")
}

// BroadcastDeviceStatus appends the status to history and delivers it to
// every registered client. The status is serialized once; delivery to each
// client is independent. A client that is shutting down or whose buffer is
// full is kicked (its own cleanup path runs via Close) and never blocks or
// aborts delivery to the others.
func (r *Registry) BroadcastDeviceStatus(status protocol.DeviceStatus) {
	data := protocol.MustMarshal(status)

	// Queueing is non-blocking, so the lock is held through the fan-out.
	// That keeps delivery order identical to history order even when
	// broadcasts race. The per-client write pumps do the actual sends
	// concurrently.
	r.mu.Lock()
	r.appendHistory(status)
	for client := range r.clients {
		if !client.Send(data) {
			log.Printf("registry: client %s not accepting broadcasts, kicking", client.id)
			client.Close()
		}
	}
	r.mu.Unlock()

	r.recordAudit(storage.EventStatusBroadcast, "", string(data))
}

// SendDeviceCommand relays a command to the device and then broadcasts a
// last_command status derived from it. With no device connected this is a
// logged no-op: nothing is broadcast and nothing is appended to history.
func (r *Registry) SendDeviceCommand(cmd protocol.DeviceCommand) {
	r.mu.Lock()
	device := r.device
	r.mu.Unlock()

	if device == nil {
		log.Printf("registry: no active device to send command to")
		return
	}

	data := protocol.MustMarshal(cmd)
	if !device.Send(data) {
		log.Printf("registry: device %s not accepting commands, kicking", device.id)
		device.Close()
		return
	}

	r.recordAudit(storage.EventCommandRelayed, device.id, string(data))
	r.BroadcastDeviceStatus(protocol.LastCommand(cmd))
}

// RecentHistory returns the last max entries in chronological (ascending)
// order. If max exceeds the history length the full history is returned;
// max <= 0 returns an empty slice. The result is a copy.
func (r *Registry) RecentHistory(max int) []protocol.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max <= 0 {
		return []protocol.HistoryEntry{}
	}
	n := r.count
	if max < n {
		n = max
	}

	out := make([]protocol.HistoryEntry, n)
	for i := 0; i < n; i++ {
		// Walk backwards from the newest entry.
		idx := (r.head + r.count - n + i) % len(r.history)
		out[i] = r.history[idx]
	}
	return out
}

// DeviceConnected reports whether a device currently occupies the slot.
func (r *Registry) DeviceConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device != nil
}

// ClientCount returns the number of registered clients.
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CloseAll signals every registered connection to shut down. Used during
// server shutdown; the session handlers deregister as their read loops
// observe the close.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device != nil {
		r.device.Close()
	}
	for client := range r.clients {
		client.Close()
	}
}

// appendHistory records a message with the current timestamp, dropping the
// oldest entry once the ring is full. Caller must hold r.mu.
func (r *Registry) appendHistory(msg protocol.DeviceMessage) {
	entry := protocol.HistoryEntry{At: r.timeNow(), Message: msg}
	if r.count < len(r.history) {
		r.history[(r.head+r.count)%len(r.history)] = entry
		r.count++
		return
	}
	// Ring full: overwrite the oldest slot and advance the head.
	r.history[r.head] = entry
	r.head = (r.head + 1) % len(r.history)
}

// recordAudit writes an audit event if auditing is enabled. Audit failures
// are logged, never propagated: the broker keeps relaying even if the
// audit database is unavailable.
func (r *Registry) recordAudit(kind, connID, detail string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(kind, connID, detail); err != nil {
		log.Printf("registry: audit record failed: %v", err)
	}
}
