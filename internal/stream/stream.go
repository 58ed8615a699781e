// Package stream fans live booking snapshots out over websockets, so
// the client sees the quote move the moment a selection changes.
package stream

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-booking/internal/wizard"
)

// Subscriber is one connected client watching a booking session.
type Subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Subscriber) Send(snap wizard.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(snap)
}

// Registry holds the subscribers per booking session. It implements the
// wizard's Notifier, so every state change is pushed without the wizard
// knowing about websockets.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{subs: make(map[string]map[*Subscriber]struct{}), logger: logger}
}

func (r *Registry) Add(sessionID string, conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{conn: conn}
	r.mu.Lock()
	set, ok := r.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		r.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()
	return sub
}

func (r *Registry) Remove(sessionID string, sub *Subscriber) {
	r.mu.Lock()
	if set, ok := r.subs[sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, sessionID)
		}
	}
	r.mu.Unlock()
	_ = sub.conn.Close()
}

// Publish sends the snapshot to every subscriber of the session. A
// subscriber whose write fails is dropped.
func (r *Registry) Publish(sessionID string, snap wizard.Snapshot) {
	r.mu.RLock()
	subs := make([]*Subscriber, 0, len(r.subs[sessionID]))
	for sub := range r.subs[sessionID] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(snap); err != nil {
			r.logger.Debug("stream send failed, dropping subscriber",
				"session_id", sessionID, "error", err)
			r.Remove(sessionID, sub)
		}
	}
}
