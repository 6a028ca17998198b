package core

import (
	"math/rand"
	"sync"
	"time"

	"github.com/dkeye/Tree/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store owns the canonical decoration list and the per-client message
// cooldowns. Nothing else writes either of them.
type Store struct {
	mu          sync.RWMutex
	decorations []domain.Decoration
	capacity    int
	cooldown    *Cooldown

	now     func() time.Time
	random  func() float64
	newID   func() string
	onEvict func(domain.Decoration)
}

type StoreOption func(*Store)

// WithCapacity bounds the decoration list. Values below 1 are ignored.
func WithCapacity(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func WithCooldown(d time.Duration) StoreOption {
	return func(s *Store) { s.cooldown = NewCooldown(d) }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithRandom sets the source of uniform values in [0, 1).
func WithRandom(f func() float64) StoreOption {
	return func(s *Store) { s.random = f }
}

func WithIDGenerator(f func() string) StoreOption {
	return func(s *Store) { s.newID = f }
}

// WithEvictHook is called, under the store lock, for every evicted entry.
func WithEvictHook(f func(domain.Decoration)) StoreOption {
	return func(s *Store) { s.onEvict = f }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		capacity: domain.DefaultMaxDecorations,
		cooldown: NewCooldown(domain.DefaultMessageCooldown),
		now:      time.Now,
		random:   rand.Float64,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.decorations = make([]domain.Decoration, 0, s.capacity)
	return s
}

// Snapshot returns a copy of the decorations, oldest first.
func (s *Store) Snapshot() []domain.Decoration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Decoration, len(s.decorations))
	copy(out, s.decorations)
	return out
}

func (s *Store) PlaceDecoration(in domain.PlacementInput) domain.Decoration {
	d := domain.Decoration{
		ID:     s.newID(),
		Symbol: in.Symbol,
		X:      in.X,
		Y:      in.Y,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.decorations = append(s.decorations, d)
	for len(s.decorations) > s.capacity {
		evicted := s.decorations[0]
		// Shift in place so the backing array stays at capacity.
		copy(s.decorations, s.decorations[1:])
		s.decorations = s.decorations[:len(s.decorations)-1]
		if s.onEvict != nil {
			s.onEvict(evicted)
		}
		log.Debug().Str("module", "core.store").Str("id", evicted.ID).Msg("decoration evicted")
	}
	return d
}

// AdmitMessage builds a message for clientID unless that client is still
// cooling down, in which case a *domain.RateLimitError is returned and
// nothing changes. The message itself is not kept.
func (s *Store) AdmitMessage(clientID domain.ClientID, rawText string) (domain.TransientMessage, error) {
	now := s.now()
	if ok, left := s.cooldown.Allow(clientID, now); !ok {
		return domain.TransientMessage{}, &domain.RateLimitError{ClientID: clientID, Remaining: left}
	}
	return domain.TransientMessage{
		ID:        s.newID(),
		Text:      domain.TruncateText(rawText),
		X:         domain.MessageMinX + s.random()*(domain.MessageMaxX-domain.MessageMinX),
		Timestamp: now.UnixMilli(),
	}, nil
}

// Remaining is the cooldown clientID still has to wait.
func (s *Store) Remaining(clientID domain.ClientID) time.Duration {
	return s.cooldown.Remaining(clientID, s.now())
}

// Forget drops the cooldown entry of a client that is gone.
func (s *Store) Forget(clientID domain.ClientID) {
	s.cooldown.Forget(clientID)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.decorations)
}

func (s *Store) Capacity() int { return s.capacity }
