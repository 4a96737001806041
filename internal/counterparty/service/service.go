package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/counterparty/core"
	"github.com/zappabad/bargetrader/internal/ledger"
	"github.com/zappabad/bargetrader/internal/market"
	marketview "github.com/zappabad/bargetrader/internal/market/view"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

var (
	ErrUnknownAI  = errors.New("unknown ai participant")
	ErrNotQuoting = errors.New("ai is not quoting")
	ErrStaleQuote = market.ErrStaleQuote
)

// Recorder records trades. *ledger.Ledger satisfies it.
type Recorder interface {
	RecordTrade(ctx context.Context, buyer, seller trader.ID, price decimal.Decimal, qty int64, sid session.ID) (ledger.Trade, error)
}

// command types
type cmdType int

const (
	cmdAttach cmdType = iota
	cmdApply
	cmdDecide
	cmdExecute
	cmdDetach
)

type command struct {
	ctx      context.Context
	typ      cmdType
	price    decimal.Decimal  // attach
	msg      news.Message     // apply
	human    trader.Human     // decide, execute
	active   bool             // decide
	side     market.Side      // execute, the human's side
	expected *decimal.Decimal // execute
	sid      session.ID
	respCh   chan<- response
}

type response struct {
	ai       trader.AI
	decision core.Decision
	trade    *ledger.Trade
	err      error
}

// Result is the outcome of asking an AI to trade against a player's quote.
type Result struct {
	Decision core.Decision
	Trade    *ledger.Trade
}

// worker owns one AI. Only its goroutine touches ai and sessions. Each
// session the AI takes part in has its own valuation.
type worker struct {
	ai       trader.AI
	sessions map[session.ID]*trader.AI
	cmdCh    chan command
}

// state returns the AI as seen by session sid, without quotes when the AI
// is not attached to it.
func (w *worker) state(sid session.ID) trader.AI {
	if st, ok := w.sessions[sid]; ok {
		return st.Clone()
	}
	return w.ai.Clone()
}

// Service serializes every mutation of an AI through that AI's own command
// loop. Different AIs proceed in parallel.
type Service struct {
	cfg    Config
	engine *core.Engine
	rec    Recorder
	book   *marketview.QuoteBook

	mu      sync.RWMutex
	workers map[trader.ID]*worker

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewService creates a counterparty Service recording trades through rec.
func NewService(cfg Config, rec Recorder) *Service {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultConfig().CommandBuffer
	}
	return &Service{
		cfg:     cfg,
		engine:  core.NewEngine(cfg.Adjustment, cfg.Uncertainty),
		rec:     rec,
		book:    marketview.NewQuoteBook(),
		workers: make(map[trader.ID]*worker),
		closed:  make(chan struct{}),
	}
}

// Register starts the command loop for ai. Registering an ID twice is a no-op.
func (s *Service) Register(ai trader.AI) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workers[ai.ID]; ok {
		return
	}
	identity := trader.AI{ID: ai.ID, Name: ai.Name, Style: ai.Style}
	w := &worker{
		ai:       identity,
		sessions: make(map[session.ID]*trader.AI),
		cmdCh:    make(chan command, s.cfg.CommandBuffer),
	}
	s.workers[ai.ID] = w
	s.book.Register(identity)

	s.wg.Add(1)
	go s.run(w)
}

func (s *Service) run(w *worker) {
	defer s.wg.Done()

	for {
		select {
		case <-s.closed:
			return
		case cmd := <-w.cmdCh:
			s.process(w, cmd)
		}
	}
}

func (s *Service) process(w *worker, cmd command) {
	var resp response

	switch cmd.typ {
	case cmdAttach:
		st := w.ai.Clone()
		s.engine.Attach(&st, cmd.price)
		w.sessions[cmd.sid] = &st
		s.book.Apply(cmd.sid, st)

	case cmdApply:
		st, ok := w.sessions[cmd.sid]
		if !ok {
			resp.err = core.ErrNotAttached
			break
		}
		before := *st.FairValue
		fv, err := s.engine.ApplyMessage(st, cmd.msg)
		if err == nil {
			s.book.Apply(cmd.sid, *st)
			log.Debug().
				Str("ai", w.ai.Name).
				Str("session", string(cmd.sid)).
				Str("from", before.String()).
				Str("to", fv.String()).
				Msg("fair value updated")
		}
		resp.err = err

	case cmdDecide:
		resp.decision = s.engine.DecideTrade(w.state(cmd.sid), cmd.human, cmd.active)
		if resp.decision.Outcome == core.OutcomeTrade {
			buyer, seller := w.ai.ID, cmd.human.ID
			if resp.decision.Side == market.SideSell {
				buyer, seller = seller, buyer
			}
			t, err := s.rec.RecordTrade(cmd.ctx, buyer, seller, resp.decision.Price, 0, cmd.sid)
			if err != nil {
				resp.err = err
			} else {
				resp.trade = &t
			}
		}

	case cmdExecute:
		resp.trade, resp.err = s.execute(w, cmd)

	case cmdDetach:
		delete(w.sessions, cmd.sid)
		s.book.Remove(cmd.sid, w.ai.ID)
	}

	resp.ai = w.state(cmd.sid)
	if cmd.respCh != nil {
		cmd.respCh <- resp
	}
}

// execute fills the player against the AI's own quote: a buying player lifts
// the offer, a selling player hits the bid.
func (s *Service) execute(w *worker, cmd command) (*ledger.Trade, error) {
	st := w.state(cmd.sid)
	quote := st.Offer
	buyer, seller := cmd.human.ID, w.ai.ID
	if cmd.side == market.SideSell {
		quote = st.Bid
		buyer, seller = seller, buyer
	}
	if quote == nil {
		return nil, ErrNotQuoting
	}
	price := quote.Round(2)
	if cmd.expected != nil && !cmd.expected.Round(2).Equal(price) {
		return nil, ErrStaleQuote
	}
	t, err := s.rec.RecordTrade(cmd.ctx, buyer, seller, price, 0, cmd.sid)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) send(ctx context.Context, id trader.ID, cmd command) (response, error) {
	if err := ctx.Err(); err != nil {
		return response{}, err
	}

	s.mu.RLock()
	w, ok := s.workers[id]
	s.mu.RUnlock()
	if !ok {
		return response{}, ErrUnknownAI
	}

	respCh := make(chan response, 1)
	cmd.ctx = ctx
	cmd.respCh = respCh

	select {
	case <-s.closed:
		return response{}, context.Canceled
	case <-ctx.Done():
		return response{}, ctx.Err()
	case w.cmdCh <- cmd:
	}

	select {
	case <-s.closed:
		return response{}, context.Canceled
	case <-ctx.Done():
		return response{}, ctx.Err()
	case resp := <-respCh:
		return resp, resp.err
	}
}

// Attach seeds the AI's fair value in session sid with the session's
// initial price. Other sessions keep their own valuations.
func (s *Service) Attach(ctx context.Context, id trader.ID, sid session.ID, initialPrice decimal.Decimal) (trader.AI, error) {
	resp, err := s.send(ctx, id, command{typ: cmdAttach, sid: sid, price: initialPrice})
	return resp.ai, err
}

// Apply moves the AI's fair value in session sid in response to a released
// message.
func (s *Service) Apply(ctx context.Context, id trader.ID, sid session.ID, msg news.Message) (trader.AI, error) {
	resp, err := s.send(ctx, id, command{typ: cmdApply, sid: sid, msg: msg})
	return resp.ai, err
}

// Detach drops the AI's state in session sid.
func (s *Service) Detach(ctx context.Context, id trader.ID, sid session.ID) error {
	_, err := s.send(ctx, id, command{typ: cmdDetach, sid: sid})
	return err
}

// Decide lets the AI trade against the player's quote if it is marketable.
// The trade, if any, is recorded before Decide returns.
func (s *Service) Decide(ctx context.Context, id trader.ID, h trader.Human, active bool, sid session.ID) (Result, error) {
	resp, err := s.send(ctx, id, command{typ: cmdDecide, human: h, active: active, sid: sid})
	if err != nil {
		return Result{}, err
	}
	return Result{Decision: resp.decision, Trade: resp.trade}, nil
}

// Execute trades the player against the AI's current quote. side is the
// player's side. A non-nil expected price must match the quote to the cent.
func (s *Service) Execute(ctx context.Context, id trader.ID, h trader.Human, side market.Side, expected *decimal.Decimal, sid session.ID) (ledger.Trade, error) {
	resp, err := s.send(ctx, id, command{typ: cmdExecute, human: h, side: side, expected: expected, sid: sid})
	if err != nil {
		return ledger.Trade{}, err
	}
	return *resp.trade, nil
}

// Quotes returns every AI as seen by session sid.
func (s *Service) Quotes(sid session.ID) marketview.Quotes {
	return s.book.Session(sid)
}

// Quote returns the latest published quote of one AI in session sid.
func (s *Service) Quote(sid session.ID, id trader.ID) (marketview.Quote, bool) {
	return s.book.Session(sid).Get(id)
}

// Close shuts down every AI loop and waits for them to finish.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
}
