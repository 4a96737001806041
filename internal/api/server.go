// Package api exposes the game over HTTP/JSON and streams game events over
// a websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/game"
	"github.com/zappabad/bargetrader/internal/ledger"
	"github.com/zappabad/bargetrader/internal/market"
	marketview "github.com/zappabad/bargetrader/internal/market/view"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/news/feed"
	"github.com/zappabad/bargetrader/internal/news/importer"
	"github.com/zappabad/bargetrader/internal/session"
	sessionservice "github.com/zappabad/bargetrader/internal/session/service"
	"github.com/zappabad/bargetrader/internal/trader"
)

const (
	// PlayerHeader carries the caller's player ID.
	PlayerHeader = "X-Player-ID"
	// AsyncHeader marks a background poll from the player's client.
	AsyncHeader = "X-Requested-With"
	asyncValue  = "XMLHttpRequest"
)

// Game is the part of *game.Game the API drives.
type Game interface {
	Join(ctx context.Context, name string) (trader.Human, bool, error)
	Player(id trader.ID) (trader.Human, error)
	Name(id trader.ID) string
	Book(player trader.ID) []marketview.Quote
	RoundLength() time.Duration
	StartSession(ctx context.Context, player trader.ID) (session.Session, error)
	FinishSession(ctx context.Context, player trader.ID) (session.Session, error)
	NextMessage(ctx context.Context, player trader.ID) (game.Released, error)
	UpdateQuote(ctx context.Context, player trader.ID, u market.QuoteUpdate) (game.QuoteResult, error)
	Execute(ctx context.Context, player, ai trader.ID, side market.Side, expected *decimal.Decimal) (ledger.Trade, error)
	Summary(player trader.ID) (session.Summary, error)
	Trades(player trader.ID) ([]ledger.Trade, error)
	State(player trader.ID) (game.State, error)
	ImportNews(ctx context.Context, msgs []news.Message) ([]news.Message, error)
	Events() <-chan game.Event
}

type Server struct {
	cfg      Config
	game     Game
	events   *hub[EventJSON]
	upgrader websocket.Upgrader
}

func NewServer(cfg Config, g Game) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:      cfg,
		game:     g,
		events:   newHub[EventJSON](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Run broadcasts game events to websocket clients until ctx is done or the
// game's event channel closes.
func (s *Server) Run(ctx context.Context) {
	defer s.events.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.game.Events():
			if !ok {
				return
			}
			player := string(ev.Player)
			s.events.Broadcast(ToEvent(ev, s.game), func(sub string) bool {
				return player == "" || sub == player
			})
		}
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/players", s.withCORS(s.withAuth(http.HandlerFunc(s.handleJoin))))
	mux.Handle("/players/ai", s.withCORS(s.withAuth(http.HandlerFunc(s.handleAIs))))
	mux.Handle("/messages/import", s.withCORS(s.withAuth(http.HandlerFunc(s.handleImport))))

	mux.Handle("/sessions", s.withCORS(s.withAuth(s.withPlayer(s.handleStart))))
	mux.Handle("/sessions/finish", s.withCORS(s.withAuth(s.withPlayer(s.handleFinish))))
	mux.Handle("/update_bid_offer/", s.withCORS(s.withAuth(s.withPlayer(s.handleUpdateQuote))))
	mux.Handle("/create_trade/", s.withCORS(s.withAuth(s.withPlayer(s.handleCreateTrade))))
	mux.Handle("/get_next_message/", s.withCORS(s.withAuth(s.withPlayer(s.handleNextMessage))))
	mux.Handle("/player_summary/", s.withCORS(s.withAuth(s.withPlayer(s.handleSummary))))
	mux.Handle("/trades", s.withCORS(s.withAuth(s.withPlayer(s.handleTrades))))
	mux.Handle("/state", s.withCORS(s.withAuth(s.withPlayer(s.handleState))))
	mux.Handle("/ws", s.withCORS(s.withAuth(s.withPlayer(s.handleStream))))
	return mux
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+PlayerHeader+", "+AsyncHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			writeError(w, http.StatusUnauthorized, errors.New("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type playerHandler func(w http.ResponseWriter, r *http.Request, p trader.Human)

// withPlayer resolves the caller from the player header, or ?player= for
// websocket clients that cannot set headers.
func (s *Server) withPlayer(next playerHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(PlayerHeader)
		if id == "" {
			id = r.URL.Query().Get("player")
		}
		if id == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing player identity"))
			return
		}
		p, err := s.game.Player(trader.ID(id))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r, p)
	})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	h, created, err := s.game.Join(r.Context(), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := ToPlayer(h)
	out.Created = created
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, out)
}

func (s *Server) handleAIs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	// quotes belong to the caller's session; anonymous callers get the roster
	id := r.Header.Get(PlayerHeader)
	if id == "" {
		id = r.URL.Query().Get("player")
	}
	writeJSON(w, http.StatusOK, ToAIs(s.game.Book(trader.ID(id))))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxImportBytes)
	var msgs []news.Message
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var recs []importRecord
		if err := json.NewDecoder(body).Decode(&recs); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
			return
		}
		for i, rec := range recs {
			m, err := importer.Record{
				Content:     rec.Content,
				ImpactType:  rec.ImpactType,
				ImpactValue: rec.ImpactValue.String(),
			}.Message()
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("record %d: %w", i+1, err))
				return
			}
			msgs = append(msgs, m)
		}
	} else {
		var err error
		if msgs, err = importer.ReadCSV(body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	out, err := s.game.ImportNews(r.Context(), msgs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ImportResponse{Imported: len(out)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, p trader.Human) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess, err := s.game.StartSession(r.Context(), p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ToSession(sess, s.game.RoundLength()))
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request, p trader.Human) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess, err := s.game.FinishSession(r.Context(), p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToSession(sess, s.game.RoundLength()))
}

func (s *Server) handleUpdateQuote(w http.ResponseWriter, r *http.Request, p trader.Human) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	fields, err := readFields(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, QuoteResponse{Status: "error", Errors: []string{err.Error()}})
		return
	}
	var u market.QuoteUpdate
	var errs []string
	sides := []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"bid", &u.Bid},
		{"offer", &u.Offer},
	}
	for _, side := range sides {
		v, err := optionalDecimal(fields[side.name])
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: enter a number.", side.name))
			continue
		}
		*side.dst = v
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, QuoteResponse{Status: "error", Errors: errs})
		return
	}

	res, err := s.game.UpdateQuote(r.Context(), p.ID, u)
	var verr *market.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, QuoteResponse{Status: "error", Errors: verr.Errors})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		Status:     "success",
		Bid:        u.Bid,
		Offer:      u.Offer,
		PlayerName: res.Human.Name,
		Trades:     ToTrades(res.Trades, s.game),
	})
}

func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request, p trader.Human) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	fields, err := readFields(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, TradeResponse{Status: "error", Message: err.Error()})
		return
	}
	if strings.TrimSpace(fields["price"]) == "" {
		writeJSON(w, http.StatusBadRequest, TradeResponse{Status: "error", Message: "Price not provided."})
		return
	}
	price, err := optionalDecimal(fields["price"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, TradeResponse{Status: "error", Message: "Invalid price value."})
		return
	}
	side := market.SideBuy
	if fields["action"] != "" {
		var ok bool
		if side, ok = market.ParseSide(fields["action"]); !ok {
			writeJSON(w, http.StatusBadRequest, TradeResponse{Status: "error", Message: "Invalid action."})
			return
		}
	}

	t, err := s.game.Execute(r.Context(), p.ID, trader.ID(fields["ai_player_id"]), side, price)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, code, TradeResponse{Status: "error", Message: err.Error()})
		return
	}
	tj := ToTrade(t, s.game)
	writeJSON(w, http.StatusOK, TradeResponse{Status: "success", Trade: &tj})
}

func (s *Server) handleNextMessage(w http.ResponseWriter, r *http.Request, p trader.Human) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get(AsyncHeader) != asyncValue {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}

	rel, err := s.game.NextMessage(r.Context(), p.ID)
	var soon *feed.TooSoonError
	if errors.As(err, &soon) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(soon.Wait.Seconds()))))
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReleaseResponse{
		MessageJSON: ToMessage(rel.Message, time.Time{}),
		Trades:      ToTrades(rel.Trades, s.game),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, p trader.Human) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sum, err := s.game.Summary(p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToSummary(sum))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request, p trader.Human) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	trades, err := s.game.Trades(p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToTrades(trades, s.game))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, p trader.Human) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st, err := s.game.State(p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToState(st, s.game.RoundLength(), s.game))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, p trader.Human) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.events.Subscribe(string(p.ID), s.cfg.SubscriberBuffer)
	defer s.events.Unsubscribe(sub)

	// detect the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// fail maps err to a status and writes it. Unexpected errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, code, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrValidation),
		errors.Is(err, feed.ErrTooSoon),
		errors.Is(err, game.ErrInvalidName),
		errors.Is(err, ledger.ErrSelfTrade),
		errors.Is(err, feed.ErrInsufficientData):
		return http.StatusBadRequest
	case errors.Is(err, feed.ErrNoSession),
		errors.Is(err, feed.ErrExhausted),
		errors.Is(err, game.ErrUnknownAI),
		errors.Is(err, sessionservice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrUnknownPlayer):
		return http.StatusUnauthorized
	case errors.Is(err, market.ErrStaleQuote),
		errors.Is(err, sessionservice.ErrFinished),
		errors.Is(err, trader.ErrDuplicateName):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(r *http.Request, dst interface{}) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return json.NewDecoder(r.Body).Decode(dst)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	if req, ok := dst.(*joinRequest); ok {
		req.Name = r.PostForm.Get("name")
	}
	return nil
}

// readFields accepts a JSON object of strings or numbers, or form fields.
func readFields(r *http.Request) (map[string]string, error) {
	out := make(map[string]string)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
		for k, v := range raw {
			var str string
			if err := json.Unmarshal(v, &str); err == nil {
				out[k] = str
				continue
			}
			if string(v) != "null" {
				out[k] = string(v)
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}

func optionalDecimal(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
