package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/internal/market"
	"github.com/zappabad/bargetrader/tui/styles"
)

var (
	buyKey  = key.NewBinding(key.WithKeys("b"))
	sellKey = key.NewBinding(key.WithKeys("s"))
)

// QuoteBoardPanel lists the AI counterparties and their quotes. The selected
// AI can be traded with directly.
type QuoteBoardPanel struct {
	ais           []api.AIJSON
	selectedIndex int
	focused       bool
	width         int
	height        int
}

// NewQuoteBoardPanel creates an empty quote board.
func NewQuoteBoardPanel() *QuoteBoardPanel {
	return &QuoteBoardPanel{}
}

func (p *QuoteBoardPanel) Init() tea.Cmd {
	return nil
}

// Update moves the selection and turns b/s into trade requests against the
// selected AI.
func (p *QuoteBoardPanel) Update(msg tea.Msg) (*QuoteBoardPanel, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok || !p.focused {
		return p, nil
	}
	switch {
	case key.Matches(km, key.NewBinding(key.WithKeys("up", "k"))):
		if p.selectedIndex > 0 {
			p.selectedIndex--
		}
	case key.Matches(km, key.NewBinding(key.WithKeys("down", "j"))):
		if p.selectedIndex < len(p.ais)-1 {
			p.selectedIndex++
		}
	case key.Matches(km, buyKey):
		return p, p.request(market.SideBuy)
	case key.Matches(km, sellKey):
		return p, p.request(market.SideSell)
	}
	return p, nil
}

func (p *QuoteBoardPanel) request(side market.Side) tea.Cmd {
	ai, ok := p.Selected()
	if !ok {
		return nil
	}
	// buying lifts the AI's offer, selling hits its bid
	price := ai.Offer
	if side == market.SideSell {
		price = ai.Bid
	}
	if price == nil {
		return nil
	}
	req := TradeRequestMsg{AI: ai, Side: side, Price: *price}
	return func() tea.Msg { return req }
}

func (p *QuoteBoardPanel) View() string {
	var content strings.Builder

	header := fmt.Sprintf("%-8s %-13s %9s %9s", "Trader", "Style", "Bid", "Offer")
	content.WriteString(styles.HeaderStyle.Render(header))
	content.WriteString("\n")

	for i, ai := range p.ais {
		row := fmt.Sprintf("%-8s %-13s ", ai.Name, ai.Style)
		bid := styles.BuyStyle.Render(fmt.Sprintf("%9s", styles.FormatPrice(ai.Bid)))
		offer := styles.SellStyle.Render(fmt.Sprintf("%9s", styles.FormatPrice(ai.Offer)))

		style := styles.RowStyle
		if i == p.selectedIndex && p.focused {
			style = styles.SelectedRowStyle
		}
		content.WriteString(style.Render(row) + bid + " " + offer)
		if i < len(p.ais)-1 {
			content.WriteString("\n")
		}
	}

	if p.focused {
		content.WriteString("\n\n")
		content.WriteString(styles.MutedStyle.Render("b lift offer · s hit bid"))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle("Counterparties", p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

func (p *QuoteBoardPanel) SetFocus(focused bool) {
	p.focused = focused
}

func (p *QuoteBoardPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetQuotes replaces the board, keeping the selection on the same AI when it
// is still listed.
func (p *QuoteBoardPanel) SetQuotes(ais []api.AIJSON) {
	var selected string
	if cur, ok := p.Selected(); ok {
		selected = cur.ID
	}
	p.ais = ais
	p.selectedIndex = 0
	for i, ai := range ais {
		if ai.ID == selected {
			p.selectedIndex = i
			break
		}
	}
}

// Selected returns the highlighted AI.
func (p *QuoteBoardPanel) Selected() (api.AIJSON, bool) {
	if p.selectedIndex >= 0 && p.selectedIndex < len(p.ais) {
		return p.ais[p.selectedIndex], true
	}
	return api.AIJSON{}, false
}

// TradeRequestMsg asks to trade with an AI at its displayed quote.
type TradeRequestMsg struct {
	AI    api.AIJSON
	Side  market.Side
	Price decimal.Decimal
}
