package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	cpservice "github.com/zappabad/bargetrader/internal/counterparty/service"
	"github.com/zappabad/bargetrader/internal/ledger"
	"github.com/zappabad/bargetrader/internal/market"
	marketservice "github.com/zappabad/bargetrader/internal/market/service"
	marketview "github.com/zappabad/bargetrader/internal/market/view"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/news/feed"
	"github.com/zappabad/bargetrader/internal/news/importer"
	newsview "github.com/zappabad/bargetrader/internal/news/view"
	"github.com/zappabad/bargetrader/internal/session"
	sessionservice "github.com/zappabad/bargetrader/internal/session/service"
	"github.com/zappabad/bargetrader/internal/trader"
)

var (
	ErrUnknownPlayer = marketservice.ErrUnknownPlayer
	ErrUnknownAI     = cpservice.ErrUnknownAI
	ErrNoSession     = feed.ErrNoSession
	ErrInvalidName   = errors.New("player name is required")
)

// Store is everything the game persists. *sqlstore.Store satisfies it.
type Store interface {
	ledger.Sink
	feed.Sink
	sessionservice.Store
	marketservice.HumanStore

	SaveAI(ctx context.Context, a trader.AI) error
	Humans(ctx context.Context) ([]trader.Human, error)
	AIs(ctx context.Context) ([]trader.AI, error)
	Messages(ctx context.Context) ([]news.Message, error)
	Sessions(ctx context.Context) ([]session.Session, error)
	Trades(ctx context.Context) ([]ledger.Trade, error)
}

// Game owns all the game subsystems and manages their lifecycle.
type Game struct {
	Roster   *trader.Roster
	Ledger   *ledger.Ledger
	Feed     *feed.Feed
	AIs      *cpservice.Service
	Sessions *sessionservice.Service
	Market   *marketservice.MarketService
	News     *newsview.NewsView

	cfg    Config
	store  Store
	events *dispatcher

	// serializes player registration
	mu sync.Mutex
}

// New creates a Game, hydrating it from store when one is given. store may
// be nil for an in-memory game.
func New(ctx context.Context, cfg Config, store Store) (*Game, error) {
	def := DefaultConfig()
	if cfg.RoundLength <= 0 {
		cfg.RoundLength = def.RoundLength
	}
	if cfg.NewsTapeSize <= 0 {
		cfg.NewsTapeSize = def.NewsTapeSize
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if cfg.ExternalEventBuffer <= 0 {
		cfg.ExternalEventBuffer = def.ExternalEventBuffer
	}

	// typed nils would defeat the nil checks downstream
	var (
		tradeSink ledger.Sink
		feedSink  feed.Sink
		sessStore sessionservice.Store
		humans    marketservice.HumanStore
	)
	if store != nil {
		tradeSink, feedSink, sessStore, humans = store, store, store, store
	}

	g := &Game{
		Roster: trader.NewRoster(),
		Ledger: ledger.New(cfg.Ledger, tradeSink),
		Feed:   feed.New(cfg.Feed, feedSink),
		News:   newsview.NewNewsView(cfg.NewsTapeSize),
		cfg:    cfg,
		store:  store,
	}
	g.AIs = cpservice.NewService(cfg.Counterparty, g.Ledger)
	g.Sessions = sessionservice.NewService(cfg.Session, g.Feed, g.AIs, sessStore)
	g.Market = marketservice.NewMarketService(cfg.Market, g.Roster, g.AIs, g.Sessions, humans)
	g.events = newDispatcher(cfg)

	if err := g.hydrate(ctx); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (g *Game) hydrate(ctx context.Context) error {
	if g.store != nil {
		msgs, err := g.store.Messages(ctx)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		g.Feed.Load(msgs)

		ais, err := g.store.AIs(ctx)
		if err != nil {
			return fmt.Errorf("load ais: %w", err)
		}
		for _, a := range ais {
			if _, err := g.Roster.AddAI(a); err != nil {
				return fmt.Errorf("load ai %s: %w", a.Name, err)
			}
		}

		humans, err := g.store.Humans(ctx)
		if err != nil {
			return fmt.Errorf("load players: %w", err)
		}
		for _, h := range humans {
			if _, err := g.Roster.AddHuman(h); err != nil {
				return fmt.Errorf("load player %s: %w", h.Name, err)
			}
		}

		trades, err := g.store.Trades(ctx)
		if err != nil {
			return fmt.Errorf("load trades: %w", err)
		}
		g.Ledger.Load(trades)
	}

	if err := g.seedAIs(ctx); err != nil {
		return err
	}
	for _, a := range g.Roster.AIs() {
		g.AIs.Register(a)
	}

	if g.store != nil {
		sessions, err := g.store.Sessions(ctx)
		if err != nil {
			return fmt.Errorf("load sessions: %w", err)
		}
		g.Sessions.Load(sessions)
		if err := g.replay(ctx, g.Sessions.All()); err != nil {
			return err
		}
	}

	if g.cfg.SeedNews && g.Feed.Len() == 0 {
		if _, err := g.Feed.Import(ctx, importer.Seed()); err != nil {
			return fmt.Errorf("seed news: %w", err)
		}
	}

	log.Info().
		Int("players", len(g.Roster.Humans())).
		Int("ais", len(g.Roster.AIs())).
		Int("messages", g.Feed.Len()).
		Int("trades", g.Ledger.Len()).
		Msg("game ready")
	return nil
}

func (g *Game) seedAIs(ctx context.Context) error {
	for _, a := range g.cfg.AIs {
		if strings.TrimSpace(a.Name) == "" {
			continue
		}
		if g.hasAI(a.Name) {
			continue
		}
		added, err := g.Roster.AddAI(trader.AI{ID: a.ID, Name: a.Name, Style: a.Style})
		if err != nil {
			return fmt.Errorf("add ai %s: %w", a.Name, err)
		}
		if g.store != nil {
			if err := g.store.SaveAI(ctx, added); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Game) hasAI(name string) bool {
	for _, a := range g.Roster.AIs() {
		if strings.EqualFold(a.Name, name) {
			return true
		}
	}
	return false
}

// replay refills the news view from every session, oldest first, and
// rebuilds the AI valuations of active sessions from their released news.
func (g *Game) replay(ctx context.Context, sessions []session.Session) error {
	for _, sess := range sessions {
		released := sess.Released()
		for _, r := range released {
			g.News.Apply(newsview.Entry{SessionID: sess.ID, Message: r.Message, ReleasedAt: r.ReleasedAt})
		}
		if !sess.Active {
			continue
		}
		for _, id := range sess.AIs {
			if _, err := g.AIs.Attach(ctx, id, sess.ID, sess.InitialPrice); err != nil {
				return fmt.Errorf("attach ai %s: %w", id, err)
			}
			for _, r := range released {
				if _, err := g.AIs.Apply(ctx, id, sess.ID, r.Message); err != nil {
					return fmt.Errorf("replay ai %s: %w", id, err)
				}
			}
		}
	}
	return nil
}

// Join returns the player with the given name, registering it first if
// needed. created reports whether a new player was made.
func (g *Game) Join(ctx context.Context, name string) (h trader.Human, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return trader.Human{}, false, ErrInvalidName
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if h, ok := g.Roster.HumanByName(name); ok {
		return h, false, nil
	}

	h = trader.Human{ID: trader.NewID(), Name: name}
	if g.store != nil {
		if err := g.store.SaveHuman(ctx, h); err != nil {
			return trader.Human{}, false, fmt.Errorf("persist player: %w", err)
		}
	}
	h, err = g.Roster.AddHuman(h)
	if err != nil {
		return trader.Human{}, false, err
	}

	log.Info().Str("player", string(h.ID)).Str("name", h.Name).Msg("player registered")
	return h, true, nil
}

// Player returns a registered player.
func (g *Game) Player(id trader.ID) (trader.Human, error) {
	h, ok := g.Roster.Human(id)
	if !ok {
		return trader.Human{}, ErrUnknownPlayer
	}
	return h, nil
}

// Name resolves a participant ID to its display name.
func (g *Game) Name(id trader.ID) string {
	return g.Roster.Name(id)
}

// Book returns every AI's quote as seen by the player's active session.
// AIs come back without quotes when the player is idle.
func (g *Game) Book(player trader.ID) []marketview.Quote {
	return g.Market.Book(player)
}

// Commodity returns the traded instrument.
func (g *Game) Commodity() market.Commodity {
	return g.Market.Commodity()
}

// RoundLength is the length of a round on the player's clock.
func (g *Game) RoundLength() time.Duration {
	return g.cfg.RoundLength
}

// StartSession finishes the player's active session, if any, and starts a
// new one against every AI on the roster.
func (g *Game) StartSession(ctx context.Context, player trader.ID) (session.Session, error) {
	if _, err := g.Player(player); err != nil {
		return session.Session{}, err
	}

	prev, hadPrev := g.Sessions.Active(player)
	sess, err := g.Sessions.Start(ctx, player, g.Roster.AIIDs())
	if err != nil {
		return session.Session{}, err
	}

	if hadPrev {
		if done, ok := g.Sessions.Get(prev.ID); ok {
			g.events.publish(Event{Type: EventSessionFinished, Player: player, SessionID: done.ID, Settlement: done.SettlementPrice})
		}
	}
	if err := g.setSession(ctx, player, string(sess.ID)); err != nil {
		return sess, err
	}
	g.events.publish(Event{Type: EventSessionStarted, Player: player, SessionID: sess.ID})
	g.events.publish(Event{Type: EventQuotesUpdated, Player: player, SessionID: sess.ID, Quotes: g.Book(player)})
	return sess, nil
}

// FinishSession closes the player's active session.
func (g *Game) FinishSession(ctx context.Context, player trader.ID) (session.Session, error) {
	if _, err := g.Player(player); err != nil {
		return session.Session{}, err
	}
	cur, ok := g.Sessions.Active(player)
	if !ok {
		return session.Session{}, ErrNoSession
	}
	done, err := g.Sessions.Finish(ctx, cur.ID)
	if err != nil {
		return session.Session{}, err
	}
	if err := g.setSession(ctx, player, ""); err != nil {
		return done, err
	}
	g.events.publish(Event{Type: EventSessionFinished, Player: player, SessionID: done.ID, Settlement: done.SettlementPrice})
	return done, nil
}

func (g *Game) setSession(ctx context.Context, player trader.ID, sid string) error {
	h, err := g.Roster.UpdateHuman(player, func(h *trader.Human) { h.SessionID = sid })
	if err != nil {
		return err
	}
	return g.saveHuman(ctx, h)
}

func (g *Game) saveHuman(ctx context.Context, h trader.Human) error {
	if g.store == nil {
		return nil
	}
	if err := g.store.SaveHuman(ctx, h); err != nil {
		return fmt.Errorf("persist player: %w", err)
	}
	return nil
}

// Released is the outcome of releasing a message: the message, the session
// after the release and any trades the AIs made in response.
type Released struct {
	Message news.Message
	Session session.Session
	Trades  []ledger.Trade
}

// NextMessage releases the next message of the player's active session,
// moves every AI of the session and lets them trade against the player's
// standing quote.
func (g *Game) NextMessage(ctx context.Context, player trader.ID) (Released, error) {
	if _, err := g.Player(player); err != nil {
		return Released{}, err
	}
	cur, ok := g.Sessions.Active(player)
	if !ok {
		return Released{}, ErrNoSession
	}

	msg, sess, err := g.Sessions.Release(ctx, cur.ID)
	if err != nil {
		return Released{}, err
	}
	// The release is committed, so an AI that cannot take the message
	// keeps its old valuation while the others move.
	for _, id := range sess.AIs {
		if _, err := g.AIs.Apply(ctx, id, sess.ID, msg); err != nil {
			log.Error().Err(err).
				Str("session", string(sess.ID)).
				Str("ai", string(id)).
				Str("message", string(msg.ID)).
				Msg("apply message to ai")
		}
	}

	at := releasedAt(sess, msg.ID)
	g.News.Apply(newsview.Entry{SessionID: sess.ID, Message: msg, ReleasedAt: at})
	m := msg
	g.events.publish(Event{Type: EventNewsReleased, Player: player, SessionID: sess.ID, Message: &m, Time: at})
	g.events.publish(Event{Type: EventQuotesUpdated, Player: player, SessionID: sess.ID, Quotes: g.Book(player)})

	trades, err := g.respond(ctx, player)
	out := Released{Message: msg, Session: sess, Trades: trades}
	return out, err
}

func releasedAt(sess session.Session, id news.MessageID) time.Time {
	for _, r := range sess.Messages {
		if r.Message.ID == id {
			return r.ReleasedAt
		}
	}
	return time.Time{}
}

// RetryAfter returns how long the player must wait before the next release.
func (g *Game) RetryAfter(player trader.ID) time.Duration {
	cur, ok := g.Sessions.Active(player)
	if !ok {
		return 0
	}
	return g.Sessions.RetryAfter(cur.ID)
}

// QuoteResult is the outcome of a quote update.
type QuoteResult struct {
	Human  trader.Human
	Trades []ledger.Trade
}

// UpdateQuote validates and applies a bid/offer update, then lets the AIs
// trade against the new quote.
func (g *Game) UpdateQuote(ctx context.Context, player trader.ID, u market.QuoteUpdate) (QuoteResult, error) {
	h, err := g.Market.UpdateQuote(ctx, player, u)
	if err != nil {
		return QuoteResult{}, err
	}
	hc := h
	g.events.publish(Event{Type: EventPlayerQuote, Player: player, SessionID: session.ID(h.SessionID), Human: &hc})

	trades, err := g.respond(ctx, player)
	if err != nil {
		return QuoteResult{Human: h, Trades: trades}, err
	}
	if len(trades) > 0 {
		h, _ = g.Roster.Human(player)
	}
	return QuoteResult{Human: h, Trades: trades}, nil
}

func (g *Game) respond(ctx context.Context, player trader.ID) ([]ledger.Trade, error) {
	trades, err := g.Market.Respond(ctx, player)
	for i := range trades {
		t := trades[i]
		g.events.publish(Event{Type: EventTrade, Player: player, SessionID: t.SessionID, Trade: &t})
	}
	if len(trades) > 0 {
		if _, serr := g.Sync(ctx, player); serr != nil && err == nil {
			err = serr
		}
	}
	return trades, err
}

// Execute trades the player against an AI's current quote. side is the
// player's side; expected, when set, must match the AI's quote.
func (g *Game) Execute(ctx context.Context, player, ai trader.ID, side market.Side, expected *decimal.Decimal) (ledger.Trade, error) {
	if _, ok := g.Roster.AI(ai); !ok {
		return ledger.Trade{}, ErrUnknownAI
	}
	t, err := g.Market.Execute(ctx, player, ai, side, expected)
	if err != nil {
		return ledger.Trade{}, err
	}
	tc := t
	g.events.publish(Event{Type: EventTrade, Player: player, SessionID: t.SessionID, Trade: &tc})
	if _, err := g.Sync(ctx, player); err != nil {
		return t, err
	}
	return t, nil
}

// Sync recomputes the player's position and cash flow across all sessions
// from the ledger and stores them on the player.
func (g *Game) Sync(ctx context.Context, player trader.ID) (trader.Human, error) {
	cur, err := g.Player(player)
	if err != nil {
		return trader.Human{}, err
	}
	snap := g.Ledger.Account(cur).Snapshot("")
	h, err := g.Roster.UpdateHuman(player, func(h *trader.Human) {
		h.Position = snap.Position
		h.CashFlow = snap.CashFlow
	})
	if err != nil {
		return trader.Human{}, ErrUnknownPlayer
	}
	return h, g.saveHuman(ctx, h)
}

// Summary is the player's standing in their most recently created session.
// A player without sessions gets zeros.
func (g *Game) Summary(player trader.ID) (session.Summary, error) {
	h, err := g.Player(player)
	if err != nil {
		return session.Summary{}, err
	}
	out := session.Summary{CashFlow: decimal.Zero}
	latest, ok := g.Sessions.Latest(player)
	if !ok {
		return out, nil
	}
	snap := g.Ledger.Account(h).Snapshot(latest.ID)
	out.Position = snap.Position
	out.CashFlow = snap.CashFlow
	out.BuyTradesCount = snap.Buys
	out.SellTradesCount = snap.Sells
	return out, nil
}

// Trades returns the trades of the player's most recent session.
func (g *Game) Trades(player trader.ID) ([]ledger.Trade, error) {
	if _, err := g.Player(player); err != nil {
		return nil, err
	}
	latest, ok := g.Sessions.Latest(player)
	if !ok {
		return nil, nil
	}
	return g.Ledger.Trades(latest.ID), nil
}

// ImportNews adds messages to the pool.
func (g *Game) ImportNews(ctx context.Context, msgs []news.Message) ([]news.Message, error) {
	out, err := g.Feed.Import(ctx, msgs)
	if err != nil {
		return nil, err
	}
	log.Info().Int("count", len(out)).Int("pool", g.Feed.Len()).Msg("news imported")
	return out, nil
}

// State is everything a player's terminal shows.
type State struct {
	Player     trader.Human
	Session    *session.Session
	EndsAt     time.Time
	RetryAfter time.Duration
	Book       []marketview.Quote
	News       []news.Release
	Trades     []ledger.Trade
	Summary    session.Summary
}

// State returns the player's current view of the game.
func (g *Game) State(player trader.ID) (State, error) {
	h, err := g.Player(player)
	if err != nil {
		return State{}, err
	}
	st := State{Player: h, Book: g.Book(player)}
	st.Summary, _ = g.Summary(player)

	if latest, ok := g.Sessions.Latest(player); ok {
		s := latest
		st.Session = &s
		st.EndsAt = s.CreatedAt.Add(g.cfg.RoundLength)
		st.News = g.releasedNews(s)
		st.Trades = g.Ledger.Trades(s.ID)
		if s.Active {
			st.RetryAfter = g.Sessions.RetryAfter(s.ID)
		}
	}
	return st, nil
}

// releasedNews reads a session's released messages from the news view,
// falling back to the session record once the view has rotated them out.
func (g *Game) releasedNews(s session.Session) []news.Release {
	released := s.Released()
	entries := g.News.Session(s.ID, len(s.Messages))
	if len(entries) < len(released) {
		return released
	}
	out := make([]news.Release, len(entries))
	for i, e := range entries {
		out[i] = news.Release{Message: e.Message, ReleasedAt: e.ReleasedAt}
	}
	return out
}

// Events returns the external events channel for subscribers.
func (g *Game) Events() <-chan Event {
	return g.events.external
}

// DroppedEvents returns the count of dropped external events.
func (g *Game) DroppedEvents() int64 {
	return g.events.droppedEvents.Load()
}

// Close shuts down all game subsystems. The store is left open.
func (g *Game) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.events != nil {
		g.events.close()
	}
	if g.AIs != nil {
		g.AIs.Close()
	}
}
