package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/tui/styles"
)

// QuoteField is the focused field of the quote entry.
type QuoteField int

const (
	FieldBid QuoteField = iota
	FieldOffer
	FieldSubmit
)

// QuoteInputPanel edits the player's standing bid and offer.
type QuoteInputPanel struct {
	bidInput   textinput.Model
	offerInput textinput.Model

	currentField QuoteField

	// standing quote as last accepted by the game
	bid   decimal.Decimal
	offer decimal.Decimal

	err     string
	focused bool
	width   int
	height  int
}

func NewQuoteInputPanel() *QuoteInputPanel {
	bidInput := textinput.New()
	bidInput.Placeholder = "Bid"
	bidInput.Width = 10
	bidInput.CharLimit = 12

	offerInput := textinput.New()
	offerInput.Placeholder = "Offer"
	offerInput.Width = 10
	offerInput.CharLimit = 12

	return &QuoteInputPanel{
		bidInput:   bidInput,
		offerInput: offerInput,
	}
}

func (p *QuoteInputPanel) Init() tea.Cmd {
	return textinput.Blink
}

func (p *QuoteInputPanel) Update(msg tea.Msg) (*QuoteInputPanel, tea.Cmd) {
	if !p.focused {
		return p, nil
	}

	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(km, key.NewBinding(key.WithKeys("down"))):
			p.setField((p.currentField + 1) % 3)
			return p, nil
		case key.Matches(km, key.NewBinding(key.WithKeys("up"))):
			p.setField((p.currentField + 2) % 3)
			return p, nil
		case key.Matches(km, key.NewBinding(key.WithKeys("enter"))):
			if p.currentField == FieldSubmit {
				return p, p.submit()
			}
			p.setField(p.currentField + 1)
			return p, nil
		case key.Matches(km, key.NewBinding(key.WithKeys("esc"))):
			p.Reset()
			return p, nil
		}
	}

	var cmd tea.Cmd
	switch p.currentField {
	case FieldBid:
		p.bidInput, cmd = p.bidInput.Update(msg)
	case FieldOffer:
		p.offerInput, cmd = p.offerInput.Update(msg)
	}
	return p, cmd
}

func (p *QuoteInputPanel) setField(f QuoteField) {
	p.currentField = f
	p.bidInput.Blur()
	p.offerInput.Blur()
	if !p.focused {
		return
	}
	switch f {
	case FieldBid:
		p.bidInput.Focus()
	case FieldOffer:
		p.offerInput.Focus()
	}
}

func (p *QuoteInputPanel) View() string {
	var content strings.Builder

	content.WriteString(p.renderField("Bid", FieldBid, p.bidInput.View()))
	content.WriteString("\n")
	content.WriteString(p.renderField("Offer", FieldOffer, p.offerInput.View()))
	content.WriteString("\n")

	button := styles.ButtonStyle
	if p.currentField == FieldSubmit && p.focused {
		button = styles.FocusedButtonStyle
	}
	content.WriteString(button.Render("Update quote"))
	content.WriteString("\n")

	standing := fmt.Sprintf("%s %s  %s %s",
		styles.LabelStyle.Render("Showing"),
		styles.BuyStyle.Render(quoteSide(p.bid)),
		styles.LabelStyle.Render("/"),
		styles.SellStyle.Render(quoteSide(p.offer)))
	content.WriteString(standing)

	if p.err != "" {
		content.WriteString("\n")
		content.WriteString(styles.ErrorStyle.Render(p.err))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle("Your Quote", p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

func quoteSide(d decimal.Decimal) string {
	if d.IsZero() {
		return "-"
	}
	return d.StringFixed(2)
}

func (p *QuoteInputPanel) renderField(label string, field QuoteField, input string) string {
	labelStyle := styles.LabelStyle
	inputStyle := styles.InputStyle
	if p.currentField == field && p.focused {
		labelStyle = labelStyle.Foreground(styles.PrimaryColor)
		inputStyle = styles.FocusedInputStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, labelStyle.Render(fmt.Sprintf("%-7s", label)), inputStyle.Render(input))
}

// submit parses the fields. Blank fields leave that side unchanged.
func (p *QuoteInputPanel) submit() tea.Cmd {
	bid, err := parsePrice(p.bidInput.Value())
	if err != nil {
		p.err = "Bid: enter a number."
		return nil
	}
	offer, err := parsePrice(p.offerInput.Value())
	if err != nil {
		p.err = "Offer: enter a number."
		return nil
	}
	if bid == nil && offer == nil {
		p.err = "Enter a bid, an offer or both."
		return nil
	}
	p.err = ""

	msg := QuoteSubmitMsg{Bid: bid, Offer: offer}
	return func() tea.Msg { return msg }
}

func parsePrice(s string) (*decimal.Decimal, error) {
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

func (p *QuoteInputPanel) SetFocus(focused bool) {
	p.focused = focused
	p.setField(p.currentField)
}

func (p *QuoteInputPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetStanding shows the quote the game currently holds for the player.
func (p *QuoteInputPanel) SetStanding(bid, offer decimal.Decimal) {
	p.bid = bid
	p.offer = offer
}

// SetError shows a rejection from the game under the inputs.
func (p *QuoteInputPanel) SetError(msg string) {
	p.err = msg
}

// Reset clears the inputs after an accepted update.
func (p *QuoteInputPanel) Reset() {
	p.bidInput.SetValue("")
	p.offerInput.SetValue("")
	p.err = ""
	p.setField(FieldBid)
}

// QuoteSubmitMsg carries a quote update. Nil sides are left unchanged.
type QuoteSubmitMsg struct {
	Bid   *decimal.Decimal
	Offer *decimal.Decimal
}
