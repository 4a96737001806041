package panels

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/tui/styles"
)

// Candle aggregates trade prices, in cents, over one period.
type Candle struct {
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
	Start  time.Time
}

// ChartPanel draws the session's trade prices as candles.
type ChartPanel struct {
	candles []Candle
	period  time.Duration
	seen    map[string]struct{}

	focused bool
	width   int
	height  int

	maxCandles int
}

// NewChartPanel creates a chart with one candle per period.
func NewChartPanel(period time.Duration) *ChartPanel {
	if period <= 0 {
		period = 20 * time.Second
	}
	return &ChartPanel{
		period:     period,
		seen:       make(map[string]struct{}),
		maxCandles: 50,
	}
}

func (p *ChartPanel) Init() tea.Cmd {
	return nil
}

func (p *ChartPanel) Update(msg tea.Msg) (*ChartPanel, tea.Cmd) {
	return p, nil
}

func (p *ChartPanel) View() string {
	var content strings.Builder

	chartHeight := p.height - 6
	if chartHeight < 5 {
		chartHeight = 5
	}

	if len(p.candles) == 0 {
		content.WriteString(styles.MutedStyle.Render("No trades this round..."))
	} else {
		content.WriteString(p.renderChart(p.width-4, chartHeight))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle(fmt.Sprintf("Trade Prices (%s)", p.period), p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

func (p *ChartPanel) renderChart(width, height int) string {
	// 9 chars of price axis and a separator, two chars per candle
	columns := (width - 10) / 2
	if columns < 1 {
		columns = 1
	}
	shown := p.candles
	if len(shown) > columns {
		shown = shown[len(shown)-columns:]
	}

	lo, hi := shown[0].Low, shown[0].High
	for _, c := range shown {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	pad := (hi - lo) / 10
	if pad < 10 {
		pad = 10
	}
	lo -= pad
	hi += pad

	rows := height - 2
	if rows < 3 {
		rows = 3
	}

	var out strings.Builder
	for row := 0; row < rows; row++ {
		price := rowPrice(row, lo, hi, rows)
		out.WriteString(styles.ChartAxisStyle.Render(fmt.Sprintf("%8s │", formatCents(price))))
		for _, c := range shown {
			style := styles.CandleUpStyle
			if c.Close < c.Open {
				style = styles.CandleDownStyle
			}
			out.WriteString(style.Render(string(candleRune(c, row, lo, hi, rows))))
			out.WriteString(" ")
		}
		out.WriteString("\n")
	}

	out.WriteString(styles.ChartAxisStyle.Render("─────────┴" + strings.Repeat("──", len(shown))))
	out.WriteString("\n")
	out.WriteString(strings.Repeat(" ", 10))
	for i, c := range shown {
		if i == 0 || i == len(shown)-1 || i%5 == 0 {
			out.WriteString(styles.ChartLabelStyle.Render(c.Start.Local().Format("05")))
		} else {
			out.WriteString("  ")
		}
	}
	return out.String()
}

func rowPrice(row int, lo, hi int64, rows int) int64 {
	if rows <= 1 {
		return lo
	}
	ratio := float64(row) / float64(rows-1)
	return hi - int64(ratio*float64(hi-lo))
}

func candleRune(c Candle, row int, lo, hi int64, rows int) rune {
	price := rowPrice(row, lo, hi, rows)
	top, bottom := c.Open, c.Close
	if c.Close > c.Open {
		top, bottom = c.Close, c.Open
	}
	tol := (hi - lo) / int64(rows*2)
	if tol < 1 {
		tol = 1
	}

	switch {
	case price <= top+tol && price >= bottom-tol:
		return '┃'
	case price <= c.High+tol && price > top:
		return '│'
	case price >= c.Low-tol && price < bottom:
		return '│'
	}
	return ' '
}

func formatCents(c int64) string {
	return decimal.New(c, -2).StringFixed(2)
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// AddTrades folds trades into candles. Trades already charted are skipped.
func (p *ChartPanel) AddTrades(trades ...api.TradeJSON) {
	for _, t := range trades {
		if _, ok := p.seen[t.ID]; ok {
			continue
		}
		p.seen[t.ID] = struct{}{}
		p.add(t.CreatedAt, toCents(t.Price), t.Quantity)
	}
}

func (p *ChartPanel) add(at time.Time, price, qty int64) {
	start := at.Truncate(p.period)
	if n := len(p.candles); n > 0 && p.candles[n-1].Start.Equal(start) {
		c := &p.candles[n-1]
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		c.Volume += qty
		return
	}
	p.candles = append(p.candles, Candle{Open: price, High: price, Low: price, Close: price, Volume: qty, Start: start})
	if len(p.candles) > p.maxCandles {
		p.candles = p.candles[len(p.candles)-p.maxCandles:]
	}
}

// Candles returns a copy of the chart data.
func (p *ChartPanel) Candles() []Candle {
	out := make([]Candle, len(p.candles))
	copy(out, p.candles)
	return out
}

// Reset clears the chart for a new session.
func (p *ChartPanel) Reset() {
	p.candles = nil
	p.seen = make(map[string]struct{})
}

func (p *ChartPanel) SetFocus(focused bool) {
	p.focused = focused
}

func (p *ChartPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}
