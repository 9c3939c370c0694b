// Package registry holds the single-writer mapping from connection id to
// send-handle that the tick engine broadcasts through.
package registry

import "sync"

// Sender is the minimal send-handle contract a session exposes to the
// registry: push one outbound frame, report transport failure. It never
// owns the session itself.
type Sender interface {
	Send(frame []byte) error
}

// Client is one registered connection.
type Client struct {
	ID    uint64
	Label string
	Send  Sender
}

// Registry maps connection id to Client. Inserts and removes happen only
// from the tick engine; the mutex exists so the admin read path
// (list-clients), which runs on a session goroutine, stays coherent, not because the
// engine itself needs fine-grained locking under its single-writer
// discipline.
type Registry struct {
	mu      sync.Mutex
	clients map[uint64]Client
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[uint64]Client)}
}

// Join registers or replaces the client entry for id.
func (r *Registry) Join(id uint64, label string, send Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[id] = Client{ID: id, Label: label, Send: send}
}

// Remove unregisters id. Idempotent if absent.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// Broadcast sends frame to every registered client. Send errors are
// returned to the caller keyed by client id for logging; the client
// remains registered until its own Remove arrives.
func (r *Registry) Broadcast(frame []byte) map[uint64]error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs map[uint64]error
	for id, c := range r.clients {
		if err := c.Send.Send(frame); err != nil {
			if errs == nil {
				errs = make(map[uint64]error)
			}
			errs[id] = err
		}
	}
	return errs
}

// List returns a snapshot of currently registered clients, for the
// list-clients admin command.
func (r *Registry) List() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len reports the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
