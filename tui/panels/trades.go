package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/api"
	ledgerview "github.com/zappabad/bargetrader/internal/ledger/view"
	"github.com/zappabad/bargetrader/tui/styles"
)

// TradesPanel is the player's trade tape with running standing.
type TradesPanel struct {
	player string
	tape   *ledgerview.TradeTape[api.TradeJSON]
	seen   map[string]struct{}

	summary api.SummaryJSON

	scrollOffset int
	focused      bool
	width        int
	height       int
}

// NewTradesPanel creates a tape for the named player keeping the last
// capacity trades.
func NewTradesPanel(player string, capacity int) *TradesPanel {
	return &TradesPanel{
		player: player,
		tape:   ledgerview.NewTradeTape[api.TradeJSON](capacity),
		seen:   make(map[string]struct{}),
	}
}

func (p *TradesPanel) Init() tea.Cmd {
	return nil
}

func (p *TradesPanel) Update(msg tea.Msg) (*TradesPanel, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok || !p.focused {
		return p, nil
	}
	switch {
	case key.Matches(km, key.NewBinding(key.WithKeys("up", "k"))):
		p.scrollOffset++
	case key.Matches(km, key.NewBinding(key.WithKeys("down", "j"))):
		if p.scrollOffset > 0 {
			p.scrollOffset--
		}
	}
	return p, nil
}

func (p *TradesPanel) View() string {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %d/%d",
		styles.LabelStyle.Render("Position"), styles.SignedStyle(decimal.NewFromInt(p.summary.Position)).Render(fmt.Sprintf("%d", p.summary.Position)),
		styles.LabelStyle.Render("Cash"), styles.SignedStyle(p.summary.CashFlow).Render(p.summary.CashFlow.StringFixed(2)),
		styles.LabelStyle.Render("Buys/Sells"), p.summary.BuyTradesCount, p.summary.SellTradesCount))
	content.WriteString("\n\n")
	content.WriteString(styles.HeaderStyle.Render(fmt.Sprintf("%-8s %-5s %7s %9s %-8s", "Time", "Side", "Qty", "Price", "With")))

	rows := p.height - 7
	if rows < 1 {
		rows = 1
	}
	trades := p.tape.Last(rows + p.scrollOffset)
	if len(trades) > rows {
		trades = trades[:rows]
	}
	if len(trades) == 0 {
		content.WriteString("\n")
		content.WriteString(styles.MutedStyle.Render("No trades yet."))
	}
	for i := len(trades) - 1; i >= 0; i-- {
		content.WriteString("\n")
		content.WriteString(p.renderTrade(trades[i]))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle("Trades", p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

func (p *TradesPanel) renderTrade(t api.TradeJSON) string {
	side, with, style := "BUY", t.Seller.Name, styles.BuyStyle
	if t.Seller.Name == p.player {
		side, with, style = "SELL", t.Buyer.Name, styles.SellStyle
	}
	return fmt.Sprintf("%s %s %7d %9s %-8s",
		styles.TimeStyle.Render(t.CreatedAt.Local().Format("15:04:05")),
		style.Render(fmt.Sprintf("%-5s", side)),
		t.Quantity,
		t.Price.StringFixed(2),
		with)
}

func (p *TradesPanel) SetFocus(focused bool) {
	p.focused = focused
}

func (p *TradesPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// AddTrades appends trades not seen before, in order.
func (p *TradesPanel) AddTrades(trades ...api.TradeJSON) {
	for _, t := range trades {
		if _, ok := p.seen[t.ID]; ok {
			continue
		}
		p.seen[t.ID] = struct{}{}
		p.tape.Append(t)
	}
}

// Reset clears the tape for a new session.
func (p *TradesPanel) Reset() {
	p.tape.Clear()
	p.seen = make(map[string]struct{})
	p.summary = api.SummaryJSON{}
	p.scrollOffset = 0
}

func (p *TradesPanel) SetSummary(s api.SummaryJSON) {
	p.summary = s
}

// Len returns the number of trades on the tape.
func (p *TradesPanel) Len() int {
	return p.tape.Count()
}
