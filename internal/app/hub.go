package app

import (
	"context"
	"errors"

	"github.com/dkeye/Tree/internal/core"
	"github.com/dkeye/Tree/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrHubClosed      = errors.New("hub closed")
	ErrUnknownSession = errors.New("unknown session")
)

const defaultQueueSize = 256

type HubOptions struct {
	Policy  Policy
	Metrics *Metrics

	// RejectFeedback makes a rate limited sender receive message-rejected.
	// Off by default: rejected messages are dropped silently.
	RejectFeedback bool
	// SharedCooldown makes every session announcing the same ClientID share
	// one cooldown. Off by default: each connection cools down on its own.
	SharedCooldown bool
	QueueSize      int
}

// Hub is the connection hub. Every connect, disconnect, placement and
// message is handled by a single loop goroutine, one at a time, so the
// order clients observe equals the order the hub admitted events.
type Hub struct {
	store          *core.Store
	registry       *Registry
	policy         Policy
	metrics        *Metrics
	rejectFeedback bool
	sharedCooldown bool

	events chan func()
	done   chan struct{}
}

func NewHub(store *core.Store, opts HubOptions) *Hub {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Hub{
		store:          store,
		registry:       NewRegistry(),
		policy:         opts.Policy,
		metrics:        opts.Metrics,
		rejectFeedback: opts.RejectFeedback,
		sharedCooldown: opts.SharedCooldown,
		events:         make(chan func(), size),
		done:           make(chan struct{}),
	}
}

// Run processes events until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Str("module", "app.hub").Msg("hub loop started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Str("module", "app.hub").Msg("hub loop stopped")
			return
		case ev := <-h.events:
			ev()
		}
	}
}

// submit hands fn to the loop and waits until it ran.
func (h *Hub) submit(fn func()) error {
	finished := make(chan struct{})
	select {
	case h.events <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubClosed
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// OnConnect registers a session and sends it the current decorations.
// cancel, if set, is called when the hub drops the session on its own.
func (h *Hub) OnConnect(sid core.SessionID, clientID domain.ClientID, conn core.SignalConnection, cancel context.CancelFunc) error {
	return h.submit(func() {
		sess := core.NewClientSession(sid, clientID, conn)
		h.registry.Bind(sess, cancel)
		h.metrics.ClientConnected()

		snap := h.store.Snapshot()
		frame, err := Encode(EventInitState, snap)
		if err != nil {
			log.Error().Err(err).Str("module", "app.hub").Msg("encode init state")
			return
		}
		if err := conn.TrySend(frame); err != nil {
			h.handleFault(sess, err)
			return
		}
		log.Info().Str("module", "app.hub").Str("sid", string(sid)).Str("client", string(clientID)).Int("decorations", len(snap)).Msg("client connected")
	})
}

// OnPlacementRequest places a decoration and broadcasts it to everyone,
// the sender included.
func (h *Hub) OnPlacementRequest(sid core.SessionID, in domain.PlacementInput) error {
	var result error
	err := h.submit(func() {
		if _, ok := h.registry.Get(sid); !ok {
			result = ErrUnknownSession
			return
		}
		d := h.store.PlaceDecoration(in)
		h.metrics.DecorationPlaced(h.store.Len())
		h.broadcast(EventDecorationAdded, d)
	})
	if err != nil {
		return err
	}
	return result
}

// OnMessageRequest runs the sender's cooldown check and broadcasts the
// admitted message. A rejected message reaches nobody, unless reject
// feedback is on, in which case only the sender hears about it. The
// returned error lets callers tell the two apart.
func (h *Hub) OnMessageRequest(sid core.SessionID, text string) error {
	var result error
	err := h.submit(func() {
		sess, ok := h.registry.Get(sid)
		if !ok {
			result = ErrUnknownSession
			return
		}
		msg, err := h.store.AdmitMessage(h.cooldownKey(sess), text)
		if err != nil {
			result = err
			h.metrics.MessageRateLimited()
			log.Debug().Str("module", "app.hub").Str("sid", string(sid)).Str("client", string(sess.ClientID)).Msg("message rate limited")
			var rl *domain.RateLimitError
			if h.rejectFeedback && errors.As(err, &rl) {
				h.sendTo(sess, EventMessageRejected, RejectedPayload{
					Reason:       "rate_limited",
					RetryAfterMs: rl.Remaining.Milliseconds(),
				})
			}
			return
		}
		h.metrics.MessageAdmitted()
		h.broadcast(EventMessageReceived, msg)
		log.Info().Str("module", "app.hub").Str("client", string(sess.ClientID)).Str("text", msg.Text).Msg("message")
	})
	if err != nil {
		return err
	}
	return result
}

// OnDisconnect forgets the session. Nothing is broadcast.
func (h *Hub) OnDisconnect(sid core.SessionID) error {
	return h.submit(func() {
		if h.removeSession(sid) {
			log.Info().Str("module", "app.hub").Str("sid", string(sid)).Msg("client disconnected")
		}
	})
}

type Stats struct {
	Clients     int `json:"clients"`
	Decorations int `json:"decorations"`
	Capacity    int `json:"capacity"`
}

// Stats is safe to call from any goroutine.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:     h.registry.Count(),
		Decorations: h.store.Len(),
		Capacity:    h.store.Capacity(),
	}
}

// Snapshot is safe to call from any goroutine.
func (h *Hub) Snapshot() []domain.Decoration {
	return h.store.Snapshot()
}

// cooldownKey is the key the store tracks a sender's cooldown under: the
// session itself, or its ClientID when cooldowns are shared.
func (h *Hub) cooldownKey(sess *core.ClientSession) domain.ClientID {
	if h.sharedCooldown {
		return sess.ClientID
	}
	return domain.ClientID(sess.ID)
}

func (h *Hub) broadcast(eventType string, payload any) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("type", eventType).Msg("encode broadcast")
		return
	}
	res := fanOut(h.registry.Sessions(), frame)
	// Faults are handled after the fan-out so a kick never cuts it short.
	for _, f := range res.Dropped {
		h.handleFault(f.Session, f.Err)
	}
	h.metrics.Broadcast(res.SentTo, len(res.Dropped))
	log.Debug().Str("module", "app.hub").Str("type", eventType).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
}

// fanOut offers frame to every session and never stops at a failed send.
func fanOut(sessions []*core.ClientSession, frame core.Frame) PublishResult {
	var res PublishResult
	for _, sess := range sessions {
		if err := sess.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, DeliveryFault{Session: sess, Err: err})
			continue
		}
		res.SentTo++
	}
	return res
}

func (h *Hub) sendTo(sess *core.ClientSession, eventType string, payload any) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("type", eventType).Msg("encode")
		return
	}
	if err := sess.Conn.TrySend(frame); err != nil {
		h.handleFault(sess, err)
	}
}

func (h *Hub) handleFault(sess *core.ClientSession, err error) {
	h.metrics.DeliveryFault()
	log.Warn().Err(err).Str("module", "app.hub").Str("sid", string(sess.ID)).Msg("delivery fault")
	if h.policy == nil {
		return
	}
	switch h.policy.OnDeliveryFault(sess, err) {
	case KickMember:
		h.kick(sess)
	case NoAction:
	}
}

func (h *Hub) kick(sess *core.ClientSession) {
	h.registry.Cancel(sess.ID)
	h.removeSession(sess.ID)
	sess.Conn.Close()
	log.Info().Str("module", "app.hub").Str("sid", string(sess.ID)).Msg("session kicked")
}

func (h *Hub) removeSession(sid core.SessionID) bool {
	sess, ok := h.registry.Unbind(sid)
	if !ok {
		return false
	}
	h.metrics.ClientDisconnected()
	if !h.sharedCooldown {
		h.store.Forget(domain.ClientID(sess.ID))
	} else if h.registry.CountClient(sess.ClientID) == 0 {
		h.store.Forget(sess.ClientID)
	}
	return true
}

func (h *Hub) closeAll() {
	for _, sess := range h.registry.Sessions() {
		h.registry.Cancel(sess.ID)
		h.removeSession(sess.ID)
		sess.Conn.Close()
	}
}
