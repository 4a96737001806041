package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/tui/styles"
)

// NewsPanel displays the messages released in the current session, newest
// first.
type NewsPanel struct {
	items         []api.MessageJSON
	total         int
	selectedIndex int
	scrollOffset  int
	focused       bool
	width         int
	height        int
}

func NewNewsPanel() *NewsPanel {
	return &NewsPanel{}
}

func (p *NewsPanel) Init() tea.Cmd {
	return nil
}

func (p *NewsPanel) Update(msg tea.Msg) (*NewsPanel, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok || !p.focused {
		return p, nil
	}
	switch {
	case key.Matches(km, key.NewBinding(key.WithKeys("up", "k"))):
		if p.selectedIndex > 0 {
			p.selectedIndex--
			if p.selectedIndex < p.scrollOffset {
				p.scrollOffset = p.selectedIndex
			}
		}
	case key.Matches(km, key.NewBinding(key.WithKeys("down", "j"))):
		if p.selectedIndex < len(p.items)-1 {
			p.selectedIndex++
			if visible := p.visible(); p.selectedIndex >= p.scrollOffset+visible {
				p.scrollOffset = p.selectedIndex - visible + 1
			}
		}
	}
	return p, nil
}

func (p *NewsPanel) visible() int {
	if v := p.height - 5; v > 1 {
		return v
	}
	return 1
}

func (p *NewsPanel) View() string {
	var content strings.Builder

	if len(p.items) == 0 {
		content.WriteString(styles.MutedStyle.Render("No news yet. The first message arrives once the round starts."))
	} else {
		visible := p.visible()
		start := p.scrollOffset
		end := start + visible
		if end > len(p.items) {
			end = len(p.items)
		}

		for i := start; i < end; i++ {
			item := p.items[i]

			ts := "--:--:--"
			if item.ReleasedAt != nil {
				ts = item.ReleasedAt.Local().Format("15:04:05")
			}

			impactStyle := styles.BearishStyle
			arrow := "▼"
			if news.ImpactType(item.Impact) == news.Bullish {
				impactStyle = styles.BullishStyle
				arrow = "▲"
			}

			text := item.Content
			if limit := p.width - 16; limit > 3 && len(text) > limit {
				text = text[:limit-3] + "..."
			}

			line := fmt.Sprintf("%s %s %s", styles.TimeStyle.Render(ts), impactStyle.Render(arrow), text)
			if i == p.selectedIndex && p.focused {
				line = styles.SelectedRowStyle.Render(line)
			}
			content.WriteString(line)
			if i < end-1 {
				content.WriteString("\n")
			}
		}

		if len(p.items) > visible {
			content.WriteString("\n")
			content.WriteString(styles.MutedStyle.Render(fmt.Sprintf(" (%d/%d)", p.selectedIndex+1, len(p.items))))
		}
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := "News"
	if p.total > 0 {
		title = fmt.Sprintf("News %d/%d", len(p.items), p.total)
	}
	panel := lipgloss.JoinVertical(lipgloss.Left, styles.RenderTitle(title, p.focused), content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

func (p *NewsPanel) SetFocus(focused bool) {
	p.focused = focused
}

func (p *NewsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetNews replaces the list with the session's released messages, given in
// release order, out of total messages in the session.
func (p *NewsPanel) SetNews(items []api.MessageJSON, total int) {
	p.items = make([]api.MessageJSON, len(items))
	for i, m := range items {
		p.items[len(items)-1-i] = m
	}
	p.total = total
	if p.selectedIndex >= len(p.items) {
		p.selectedIndex = len(p.items) - 1
	}
	if p.selectedIndex < 0 {
		p.selectedIndex = 0
	}
	if p.scrollOffset > p.selectedIndex {
		p.scrollOffset = p.selectedIndex
	}
}

// Len returns the number of messages shown.
func (p *NewsPanel) Len() int {
	return len(p.items)
}
