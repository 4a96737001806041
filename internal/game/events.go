package game

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/ledger"
	marketview "github.com/zappabad/bargetrader/internal/market/view"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

// EventType is the kind of a game event.
type EventType uint8

const (
	EventSessionStarted EventType = iota
	EventSessionFinished
	EventNewsReleased
	EventQuotesUpdated
	EventPlayerQuote
	EventTrade
)

func (t EventType) String() string {
	switch t {
	case EventSessionStarted:
		return "session_started"
	case EventSessionFinished:
		return "session_finished"
	case EventNewsReleased:
		return "news_released"
	case EventQuotesUpdated:
		return "quotes_updated"
	case EventPlayerQuote:
		return "player_quote"
	case EventTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Event is something that happened in the game. Only the fields relevant to
// Type are set.
type Event struct {
	Type      EventType
	Time      time.Time
	Player    trader.ID
	SessionID session.ID

	Message    *news.Message
	Trade      *ledger.Trade
	Quotes     []marketview.Quote
	Human      *trader.Human
	Settlement *decimal.Decimal
}

// dispatcher fans game events out to one external channel.
type dispatcher struct {
	cfg Config

	internal      chan Event
	external      chan Event
	droppedEvents atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newDispatcher(cfg Config) *dispatcher {
	d := &dispatcher{
		cfg:      cfg,
		internal: make(chan Event, cfg.EventBuffer),
		external: make(chan Event, cfg.ExternalEventBuffer),
		closed:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	defer close(d.external)

	for {
		select {
		case <-d.closed:
			return
		case ev := <-d.internal:
			if d.cfg.DropExternalEvents {
				select {
				case d.external <- ev:
				default:
					d.droppedEvents.Add(1)
				}
			} else {
				select {
				case d.external <- ev:
				case <-d.closed:
					return
				}
			}
		}
	}
}

func (d *dispatcher) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case d.internal <- ev:
	case <-d.closed:
	}
}

func (d *dispatcher) close() {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	d.wg.Wait()
}
