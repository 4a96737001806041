package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrFinished = errors.New("session already finished")
)

// Feed samples messages for new sessions and releases them. *feed.Feed
// satisfies it.
type Feed interface {
	Sample(n int) ([]news.Message, error)
	Release(ctx context.Context, s *session.Session) (news.Message, error)
	RetryAfter(s session.Session) time.Duration
}

// Attacher seeds an AI's fair value when it joins a session and drops it
// when the session ends. *cpservice.Service satisfies it.
type Attacher interface {
	Attach(ctx context.Context, id trader.ID, sid session.ID, initialPrice decimal.Decimal) (trader.AI, error)
	Detach(ctx context.Context, id trader.ID, sid session.ID) error
}

// Store persists sessions. All sessions passed to one call are written
// atomically. A nil Store keeps everything in memory.
type Store interface {
	SaveSessions(ctx context.Context, sessions ...session.Session) error
}

// Service owns session lifecycle. Every mutation runs under one lock and is
// computed on a copy, persisted, then committed, so readers never observe a
// half-applied change.
type Service struct {
	cfg   Config
	feed  Feed
	ais   Attacher
	store Store

	mu       sync.Mutex
	sessions map[session.ID]*session.Session
	active   map[trader.ID]session.ID
	latest   map[trader.ID]session.ID
}

// NewService creates a session Service. store may be nil.
func NewService(cfg Config, feed Feed, ais Attacher, store Store) *Service {
	if !cfg.InitialPrice.IsPositive() {
		cfg.InitialPrice = DefaultConfig().InitialPrice
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}
	if cfg.Now == nil {
		cfg.Now = DefaultConfig().Now
	}
	return &Service{
		cfg:      cfg,
		feed:     feed,
		ais:      ais,
		store:    store,
		sessions: make(map[session.ID]*session.Session),
		active:   make(map[trader.ID]session.ID),
		latest:   make(map[trader.ID]session.ID),
	}
}

func (s *Service) newSession(initialPrice decimal.Decimal) (session.Session, error) {
	msgs, err := s.feed.Sample(s.cfg.PoolSize)
	if err != nil {
		return session.Session{}, err
	}
	sess := session.Session{
		ID:           session.NewID(),
		InitialPrice: initialPrice,
		Active:       true,
		CreatedAt:    s.cfg.Now(),
		Messages:     make([]news.Release, len(msgs)),
	}
	for i, m := range msgs {
		sess.Messages[i] = news.Release{Message: m}
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, sessions ...session.Session) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveSessions(ctx, sessions...); err != nil {
		return fmt.Errorf("persist sessions: %w", err)
	}
	return nil
}

func (s *Service) commitLocked(sess session.Session) {
	c := sess.Clone()
	s.sessions[c.ID] = &c
	for _, p := range c.Players {
		if c.Active {
			s.active[p] = c.ID
		} else if s.active[p] == c.ID {
			delete(s.active, p)
		}
	}
}

func (s *Service) finished(sess session.Session) session.Session {
	out := sess.Clone()
	out.Active = false
	out.FinishedAt = s.cfg.Now()
	price := out.Settle()
	out.SettlementPrice = &price
	return out
}

// attach seeds every AI of sess. On failure the AIs attached so far are
// detached again and nothing else has changed.
func (s *Service) attach(ctx context.Context, sess session.Session) error {
	for i, id := range sess.AIs {
		if _, err := s.ais.Attach(ctx, id, sess.ID, sess.InitialPrice); err != nil {
			s.detach(session.Session{ID: sess.ID, AIs: sess.AIs[:i]})
			return fmt.Errorf("attach ai %s: %w", id, err)
		}
	}
	return nil
}

// detach drops the AI state of a session that is over or never started.
// Failures only leak state, so they are logged.
func (s *Service) detach(sess session.Session) {
	for _, id := range sess.AIs {
		if err := s.ais.Detach(context.Background(), id, sess.ID); err != nil {
			log.Warn().Err(err).Str("session", string(sess.ID)).Str("ai", string(id)).Msg("detach ai")
		}
	}
}

// Create opens a session without players. A non-positive initialPrice uses
// the configured default. If the pool is too small nothing is created.
func (s *Service) Create(ctx context.Context, initialPrice decimal.Decimal) (session.Session, error) {
	if !initialPrice.IsPositive() {
		initialPrice = s.cfg.InitialPrice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.newSession(initialPrice)
	if err != nil {
		return session.Session{}, err
	}
	if err := s.save(ctx, sess); err != nil {
		return session.Session{}, err
	}
	s.commitLocked(sess)
	return sess.Clone(), nil
}

// Start finishes the player's active session, if any, and opens a new one
// with the given AIs attached. The swap is a single critical section: a
// player never ends up with two active sessions.
func (s *Service) Start(ctx context.Context, player trader.ID, ais []trader.ID) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.newSession(s.cfg.InitialPrice)
	if err != nil {
		return session.Session{}, err
	}
	next.Players = []trader.ID{player}
	next.AIs = append([]trader.ID(nil), ais...)

	if err := s.attach(ctx, next); err != nil {
		return session.Session{}, err
	}

	writes := []session.Session{}
	if prevID, ok := s.active[player]; ok {
		writes = append(writes, s.finished(*s.sessions[prevID]))
	}
	writes = append(writes, next)

	if err := s.save(ctx, writes...); err != nil {
		s.detach(next)
		return session.Session{}, err
	}
	for _, w := range writes {
		s.commitLocked(w)
		if !w.Active {
			s.detach(w)
			log.Info().
				Str("session", string(w.ID)).
				Str("settlement", w.SettlementPrice.String()).
				Msg("session finished")
		}
	}
	s.latest[player] = next.ID

	log.Info().
		Str("session", string(next.ID)).
		Str("player", string(player)).
		Int("ais", len(next.AIs)).
		Str("initial_price", next.InitialPrice.String()).
		Msg("session started")
	return next.Clone(), nil
}

// Finish closes a session and computes its settlement price.
func (s *Service) Finish(ctx context.Context, sid session.ID) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[sid]
	if !ok {
		return session.Session{}, ErrNotFound
	}
	if !cur.Active {
		return session.Session{}, ErrFinished
	}

	done := s.finished(*cur)
	if err := s.save(ctx, done); err != nil {
		return session.Session{}, err
	}
	s.commitLocked(done)
	s.detach(done)

	log.Info().
		Str("session", string(sid)).
		Str("settlement", done.SettlementPrice.String()).
		Msg("session finished")
	return done.Clone(), nil
}

// Release releases the next message of a session. Pacing and exhaustion
// rules are the feed's.
func (s *Service) Release(ctx context.Context, sid session.ID) (news.Message, session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[sid]
	if !ok {
		return news.Message{}, session.Session{}, ErrNotFound
	}

	next := cur.Clone()
	msg, err := s.feed.Release(ctx, &next)
	if err != nil {
		return news.Message{}, session.Session{}, err
	}
	s.commitLocked(next)
	return msg, next.Clone(), nil
}

// RetryAfter returns how long until a session may release again.
func (s *Service) RetryAfter(sid session.ID) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[sid]
	if !ok {
		return 0
	}
	return s.feed.RetryAfter(*cur)
}

// Get returns a session by ID.
func (s *Service) Get(sid session.ID) (session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[sid]
	if !ok {
		return session.Session{}, false
	}
	return cur.Clone(), true
}

// Active returns the player's active session.
func (s *Service) Active(player trader.ID) (session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid, ok := s.active[player]
	if !ok {
		return session.Session{}, false
	}
	return s.sessions[sid].Clone(), true
}

// Latest returns the player's most recently created session, active or not.
func (s *Service) Latest(player trader.ID) (session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid, ok := s.latest[player]
	if !ok {
		return session.Session{}, false
	}
	return s.sessions[sid].Clone(), true
}

// All returns every session, oldest first.
func (s *Service) All() []session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Load installs previously persisted sessions without writing them back.
func (s *Service) Load(sessions []session.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range sessions {
		s.commitLocked(sess)
		for _, p := range sess.Players {
			s.latest[p] = sess.ID
		}
	}
}
