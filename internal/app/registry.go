package app

import (
	"context"
	"sync"

	"github.com/dkeye/Tree/internal/core"
	"github.com/dkeye/Tree/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session *core.ClientSession
	Cancel  context.CancelFunc
}

// Registry holds the live sessions. Only the hub loop writes to it;
// the lock is there for readers such as the stats endpoint.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) Bind(sess *core.ClientSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID)).Str("client", string(sess.ClientID)).Msg("bound session")
}

// Unbind removes sid and returns what was bound to it.
func (r *Registry) Unbind(sid core.SessionID) (*core.ClientSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return e.Session, true
}

func (r *Registry) Get(sid core.SessionID) (*core.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Sessions returns a point in time copy of every live session.
func (r *Registry) Sessions() []*core.ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.ClientSession, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CountClient counts live sessions announcing id.
func (r *Registry) CountClient(id domain.ClientID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.sessions {
		if e.Session.ClientID == id {
			n++
		}
	}
	return n
}

// Cancel stops the pumps of sid, if it is bound.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
