package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/internal/market"
)

// Config holds configuration for the remote client.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	// AuthToken is sent as a bearer token when set.
	AuthToken string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// EventBuffer is the size of the channel returned by Events.
	EventBuffer int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:8080",
		Timeout:     10 * time.Second,
		EventBuffer: 64,
	}
}

// Client talks to a game server over HTTP and its websocket event stream.
type Client struct {
	cfg  Config
	http *resty.Client

	mu     sync.RWMutex
	player string
}

func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	hc := resty.New()
	hc.SetBaseURL(cfg.BaseURL)
	hc.SetTimeout(cfg.Timeout)
	hc.SetHeader("Accept", "application/json")
	if cfg.AuthToken != "" {
		hc.SetAuthToken(cfg.AuthToken)
	}
	return &Client{cfg: cfg, http: hc}
}

// Player returns the joined player's ID, empty before Join.
func (c *Client) Player() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player
}

func (c *Client) Join(ctx context.Context, name string) (api.PlayerJSON, error) {
	var out api.PlayerJSON
	if err := c.do(ctx, http.MethodPost, "/players", map[string]string{"name": name}, &out, nil); err != nil {
		return api.PlayerJSON{}, err
	}
	c.mu.Lock()
	c.player = out.ID
	c.mu.Unlock()
	return out, nil
}

// AIs lists the counterparties and their current quotes.
func (c *Client) AIs(ctx context.Context) ([]api.AIJSON, error) {
	var out []api.AIJSON
	err := c.do(ctx, http.MethodGet, "/players/ai", nil, &out, nil)
	return out, err
}

func (c *Client) StartSession(ctx context.Context) (api.SessionJSON, error) {
	var out api.SessionJSON
	err := c.playerDo(ctx, http.MethodPost, "/sessions", nil, &out, nil)
	return out, err
}

func (c *Client) FinishSession(ctx context.Context) (api.SessionJSON, error) {
	var out api.SessionJSON
	err := c.playerDo(ctx, http.MethodPost, "/sessions/finish", nil, &out, nil)
	return out, err
}

func (c *Client) NextMessage(ctx context.Context) (api.ReleaseResponse, error) {
	var out api.ReleaseResponse
	err := c.playerDo(ctx, http.MethodGet, "/get_next_message/", nil, &out, map[string]string{api.AsyncHeader: "XMLHttpRequest"})
	return out, err
}

func (c *Client) UpdateQuote(ctx context.Context, bid, offer *decimal.Decimal) (api.QuoteResponse, error) {
	body := make(map[string]string)
	if bid != nil {
		body["bid"] = bid.String()
	}
	if offer != nil {
		body["offer"] = offer.String()
	}
	var out api.QuoteResponse
	err := c.playerDo(ctx, http.MethodPost, "/update_bid_offer/", body, &out, nil)
	return out, err
}

func (c *Client) CreateTrade(ctx context.Context, ai string, side market.Side, price decimal.Decimal) (api.TradeResponse, error) {
	body := map[string]string{
		"ai_player_id": ai,
		"action":       side.String(),
		"price":        price.String(),
	}
	var out api.TradeResponse
	err := c.playerDo(ctx, http.MethodPost, "/create_trade/", body, &out, nil)
	return out, err
}

// Summary returns the player's standing in their latest session.
func (c *Client) Summary(ctx context.Context) (api.SummaryJSON, error) {
	var out api.SummaryJSON
	err := c.playerDo(ctx, http.MethodGet, "/player_summary/", nil, &out, nil)
	return out, err
}

func (c *Client) State(ctx context.Context) (api.StateJSON, error) {
	var out api.StateJSON
	err := c.playerDo(ctx, http.MethodGet, "/state", nil, &out, nil)
	return out, err
}

// ImportCSV uploads a message file to the server's pool.
func (c *Client) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	var out api.ImportResponse
	err := c.do(ctx, http.MethodPost, "/messages/import", r, &out, map[string]string{"Content-Type": "text/csv"})
	return out.Imported, err
}

// Events dials the websocket stream. The channel closes when ctx is done or
// the connection drops.
func (c *Client) Events(ctx context.Context) (<-chan api.EventJSON, error) {
	player := c.Player()
	if player == "" {
		return nil, ErrNotJoined
	}
	u, err := url.Parse(c.cfg.BaseURL + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("player", player)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial events: %w", err)
	}

	out := make(chan api.EventJSON, c.cfg.EventBuffer)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var ev api.EventJSON
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("event stream closed")
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) playerDo(ctx context.Context, method, path string, body, out interface{}, header map[string]string) error {
	if c.Player() == "" {
		return ErrNotJoined
	}
	return c.do(ctx, method, path, body, out, header)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, header map[string]string) error {
	req := c.http.R().SetContext(ctx)
	if p := c.Player(); p != "" {
		req.SetHeader(api.PlayerHeader, p)
	}
	for k, v := range header {
		req.SetHeader(k, v)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func decodeError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode()}
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		e.Message = body.Error
		if e.Message == "" {
			e.Message = body.Message
		}
		e.Errors = body.Errors
	} else {
		e.Message = strings.TrimSpace(resp.String())
	}
	if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}
