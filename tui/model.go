package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/internal/client"
	"github.com/zappabad/bargetrader/internal/news/feed"
	"github.com/zappabad/bargetrader/tui/panels"
	"github.com/zappabad/bargetrader/tui/styles"
)

// PanelFocus represents which panel is currently focused.
type PanelFocus int

const (
	FocusBoard PanelFocus = iota
	FocusChart
	FocusTrades
	FocusNews
	FocusQuote
	panelCount
)

// Config holds configuration for the player terminal.
type Config struct {
	// NewsInterval is how often the terminal asks for the next message.
	NewsInterval time.Duration
	// TickInterval drives the countdown and state refresh.
	TickInterval time.Duration
	// TapeSize is how many trades the trades panel keeps.
	TapeSize int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		NewsInterval: 20 * time.Second,
		TickInterval: time.Second,
		TapeSize:     200,
		Now:          time.Now,
	}
}

// Model is the player terminal.
type Model struct {
	cfg     Config
	backend client.Backend
	player  api.PlayerJSON
	events  <-chan api.EventJSON

	boardPanel  *panels.QuoteBoardPanel
	chartPanel  *panels.ChartPanel
	tradesPanel *panels.TradesPanel
	newsPanel   *panels.NewsPanel
	quotePanel  *panels.QuoteInputPanel

	focusedPanel PanelFocus

	// round state
	session      *api.SessionJSON
	nextNewsAt   time.Time
	fetchingNews bool
	finishing    bool
	result       string

	width  int
	height int

	statusMsg string
	ready     bool
}

// NewModel creates the terminal for a player that has already joined.
// events may be nil, in which case the terminal relies on polling.
func NewModel(cfg Config, backend client.Backend, player api.PlayerJSON, events <-chan api.EventJSON) *Model {
	def := DefaultConfig()
	if cfg.NewsInterval <= 0 {
		cfg.NewsInterval = def.NewsInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.TapeSize <= 0 {
		cfg.TapeSize = def.TapeSize
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	return &Model{
		cfg:          cfg,
		backend:      backend,
		player:       player,
		events:       events,
		boardPanel:   panels.NewQuoteBoardPanel(),
		chartPanel:   panels.NewChartPanel(cfg.NewsInterval),
		tradesPanel:  panels.NewTradesPanel(player.Name, cfg.TapeSize),
		newsPanel:    panels.NewNewsPanel(),
		quotePanel:   panels.NewQuoteInputPanel(),
		focusedPanel: FocusQuote,
		statusMsg:    "ctrl+n starts a round",
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.quotePanel.Init(),
		m.refresh(),
		m.listenEvents(),
		m.tick(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.focusedPanel != FocusQuote {
				return m, tea.Quit
			}
		case "tab":
			m.focusedPanel = (m.focusedPanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.focusedPanel = (m.focusedPanel + panelCount - 1) % panelCount
			return m, nil
		case "f1":
			m.focusedPanel = FocusBoard
			return m, nil
		case "f2":
			m.focusedPanel = FocusChart
			return m, nil
		case "f3":
			m.focusedPanel = FocusTrades
			return m, nil
		case "f4":
			m.focusedPanel = FocusNews
			return m, nil
		case "f5":
			m.focusedPanel = FocusQuote
			return m, nil
		case "ctrl+n":
			return m, m.startSession()
		case "ctrl+f":
			if m.active() && !m.finishing {
				m.finishing = true
				return m, m.finishSession()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case tickMsg:
		cmds = append(cmds, m.onTick(m.cfg.Now()), m.refresh(), m.tick())

	case stateMsg:
		m.applyState(msg)

	case sessionMsg:
		cmds = append(cmds, m.applySession(msg), m.refresh())

	case newsMsg:
		m.applyNews(msg)
		cmds = append(cmds, m.refresh())

	case panels.QuoteSubmitMsg:
		cmds = append(cmds, m.submitQuote(msg))

	case quoteResultMsg:
		m.applyQuoteResult(msg)
		cmds = append(cmds, m.refresh())

	case panels.TradeRequestMsg:
		cmds = append(cmds, m.submitTrade(msg))

	case tradeResultMsg:
		m.applyTradeResult(msg)
		cmds = append(cmds, m.refresh())

	case eventMsg:
		if msg.Trade != nil {
			m.tradesPanel.AddTrades(*msg.Trade)
			m.chartPanel.AddTrades(*msg.Trade)
		}
		if msg.AIs != nil {
			m.boardPanel.SetQuotes(msg.AIs)
		}
		cmds = append(cmds, m.listenEvents())
	}

	m.updateFocusedPanel(msg, &cmds)

	return m, tea.Batch(cmds...)
}

func (m *Model) updateFocusedPanel(msg tea.Msg, cmds *[]tea.Cmd) {
	var cmd tea.Cmd

	switch m.focusedPanel {
	case FocusBoard:
		m.boardPanel, cmd = m.boardPanel.Update(msg)
	case FocusChart:
		m.chartPanel, cmd = m.chartPanel.Update(msg)
	case FocusTrades:
		m.tradesPanel, cmd = m.tradesPanel.Update(msg)
	case FocusNews:
		m.newsPanel, cmd = m.newsPanel.Update(msg)
	case FocusQuote:
		m.quotePanel, cmd = m.quotePanel.Update(msg)
	}

	if cmd != nil {
		*cmds = append(*cmds, cmd)
	}
}

func (m *Model) active() bool {
	return m.session != nil && m.session.Active
}

// onTick ends the round when the countdown runs out and asks for news when
// the interval has passed.
func (m *Model) onTick(now time.Time) tea.Cmd {
	if !m.active() {
		return nil
	}
	if !now.Before(m.session.EndsAt) {
		if m.finishing {
			return nil
		}
		m.finishing = true
		return m.finishSession()
	}
	if !m.fetchingNews && !m.nextNewsAt.IsZero() && !now.Before(m.nextNewsAt) {
		m.fetchingNews = true
		return m.nextMessage()
	}
	return nil
}

func (m *Model) applyState(msg stateMsg) {
	if msg.err != nil {
		m.statusMsg = "Refresh failed: " + msg.err.Error()
		return
	}
	st := msg.state
	m.player = st.Player
	m.boardPanel.SetQuotes(st.AIs)
	m.quotePanel.SetStanding(st.Player.Bid, st.Player.Offer)

	if st.Session == nil {
		return
	}
	if m.session == nil || m.session.ID != st.Session.ID {
		m.tradesPanel.Reset()
		m.chartPanel.Reset()
		if st.Session.Active {
			m.nextNewsAt = m.cfg.Now().Add(time.Duration(st.RetryAfterMS) * time.Millisecond)
		}
	}
	s := *st.Session
	m.session = &s
	m.newsPanel.SetNews(st.News, s.MessageCount)
	m.tradesPanel.AddTrades(st.Trades...)
	m.tradesPanel.SetSummary(st.Summary)
	m.chartPanel.AddTrades(st.Trades...)
	if !s.Active && m.result == "" {
		m.result = roundResult(s, st.Summary)
	}
}

func (m *Model) applySession(msg sessionMsg) tea.Cmd {
	if msg.finished {
		m.finishing = false
	}
	if msg.err != nil {
		m.statusMsg = "Round request failed: " + msg.err.Error()
		return nil
	}
	s := msg.session
	if msg.finished {
		m.session = &s
		m.result = ""
		m.statusMsg = "Round over"
		return nil
	}

	m.session = &s
	m.result = ""
	m.tradesPanel.Reset()
	m.chartPanel.Reset()
	m.nextNewsAt = time.Time{}
	m.statusMsg = fmt.Sprintf("Round started with %d messages", s.MessageCount)
	// first message right away
	m.fetchingNews = true
	return m.nextMessage()
}

func (m *Model) applyNews(msg newsMsg) {
	m.fetchingNews = false
	now := m.cfg.Now()
	if msg.err == nil {
		m.nextNewsAt = now.Add(m.cfg.NewsInterval)
		m.statusMsg = "News: " + msg.release.Content
		m.tradesPanel.AddTrades(msg.release.Trades...)
		m.chartPanel.AddTrades(msg.release.Trades...)
		return
	}
	if wait, ok := client.RetryAfter(msg.err); ok {
		m.nextNewsAt = now.Add(wait)
		return
	}
	if errors.Is(msg.err, feed.ErrExhausted) {
		// nothing left to release this round
		m.nextNewsAt = time.Time{}
		m.statusMsg = "All news released"
		return
	}
	m.nextNewsAt = now.Add(m.cfg.NewsInterval)
	m.statusMsg = "News failed: " + msg.err.Error()
}

func (m *Model) applyQuoteResult(msg quoteResultMsg) {
	if msg.err != nil {
		m.quotePanel.SetError(msg.err.Error())
		return
	}
	m.quotePanel.Reset()
	m.tradesPanel.AddTrades(msg.res.Trades...)
	m.chartPanel.AddTrades(msg.res.Trades...)
	switch n := len(msg.res.Trades); n {
	case 0:
		m.statusMsg = "Quote updated"
	default:
		m.statusMsg = fmt.Sprintf("Quote updated, %d trade(s) done", n)
	}
}

func (m *Model) applyTradeResult(msg tradeResultMsg) {
	if msg.err != nil {
		m.statusMsg = "Trade failed: " + msg.err.Error()
		return
	}
	if t := msg.res.Trade; t != nil {
		m.tradesPanel.AddTrades(*t)
		m.chartPanel.AddTrades(*t)
		m.statusMsg = fmt.Sprintf("Traded %d @ %s", t.Quantity, t.Price.StringFixed(2))
	}
}

// roundResult describes a settled session. Profit marks the final position
// at the settlement price.
func roundResult(s api.SessionJSON, sum api.SummaryJSON) string {
	if s.SettlementPrice == nil {
		return "Round over"
	}
	pnl := sum.CashFlow.Add(decimal.NewFromInt(sum.Position).Mul(*s.SettlementPrice))
	return fmt.Sprintf("Round over · settled %s · position %d · cash %s · P&L %s",
		s.SettlementPrice.StringFixed(2), sum.Position, sum.CashFlow.StringFixed(2),
		styles.SignedStyle(pnl).Render(pnl.StringFixed(2)))
}

func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	m.boardPanel.SetFocus(m.focusedPanel == FocusBoard)
	m.chartPanel.SetFocus(m.focusedPanel == FocusChart)
	m.tradesPanel.SetFocus(m.focusedPanel == FocusTrades)
	m.newsPanel.SetFocus(m.focusedPanel == FocusNews)
	m.quotePanel.SetFocus(m.focusedPanel == FocusQuote)

	// Layout:
	// ┌──────────────┬──────────────┬──────────────┐
	// │ Counterparty │    Chart     │    Trades    │
	// ├──────────────┴──────────────┼──────────────┤
	// │            News             │  Your Quote  │
	// └─────────────────────────────┴──────────────┘
	leftWidth := m.width / 3
	middleWidth := m.width / 3
	rightWidth := m.width - leftWidth - middleWidth

	topHeight := (m.height - 3) / 2
	bottomHeight := m.height - topHeight - 3

	m.boardPanel.SetSize(leftWidth, topHeight)
	m.chartPanel.SetSize(middleWidth, topHeight)
	m.tradesPanel.SetSize(rightWidth, topHeight)
	topRow := lipgloss.JoinHorizontal(lipgloss.Top,
		m.boardPanel.View(),
		m.chartPanel.View(),
		m.tradesPanel.View(),
	)

	m.newsPanel.SetSize(leftWidth+middleWidth, bottomHeight)
	m.quotePanel.SetSize(rightWidth, bottomHeight)
	bottomRow := lipgloss.JoinHorizontal(lipgloss.Top,
		m.newsPanel.View(),
		m.quotePanel.View(),
	)

	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), topRow, bottomRow, m.renderStatusBar())
}

func (m *Model) renderHeader() string {
	left := styles.TitleStyle.Render("Barge Freight") + styles.MutedStyle.Render(" USD/t · lots of 2000 · "+m.player.Name)

	var right string
	switch {
	case m.active():
		remaining := m.session.EndsAt.Sub(m.cfg.Now())
		if remaining < 0 {
			remaining = 0
		}
		style := styles.CountdownStyle
		if remaining <= 30*time.Second {
			style = styles.CountdownLowStyle
		}
		right = style.Render(fmt.Sprintf("%02d:%02d", int(remaining.Minutes()), int(remaining.Seconds())%60))
	case m.result != "":
		right = m.result
	default:
		right = styles.MutedStyle.Render("no round running")
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + lipgloss.NewStyle().Width(gap).Render("") + right
}

func (m *Model) renderStatusBar() string {
	help := []string{
		styles.StatusBarKeyStyle.Render("F1-F5") + styles.StatusBarDescStyle.Render(" panels"),
		styles.StatusBarKeyStyle.Render("ctrl+n") + styles.StatusBarDescStyle.Render(" new round"),
		styles.StatusBarKeyStyle.Render("ctrl+f") + styles.StatusBarDescStyle.Render(" finish"),
		styles.StatusBarKeyStyle.Render("ctrl+c") + styles.StatusBarDescStyle.Render(" quit"),
	}
	helpStr := lipgloss.JoinHorizontal(lipgloss.Center, help[0], " │ ", help[1], " │ ", help[2], " │ ", help[3])

	status := ""
	if m.statusMsg != "" {
		status = " │ " + m.statusMsg
	}
	return styles.StatusBarStyle.Width(m.width).Render(helpStr + status)
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		st, err := m.backend.State(context.Background())
		return stateMsg{state: st, err: err}
	}
}

func (m *Model) startSession() tea.Cmd {
	return func() tea.Msg {
		s, err := m.backend.StartSession(context.Background())
		return sessionMsg{session: s, err: err}
	}
}

func (m *Model) finishSession() tea.Cmd {
	return func() tea.Msg {
		s, err := m.backend.FinishSession(context.Background())
		return sessionMsg{session: s, finished: true, err: err}
	}
}

func (m *Model) nextMessage() tea.Cmd {
	return func() tea.Msg {
		rel, err := m.backend.NextMessage(context.Background())
		return newsMsg{release: rel, err: err}
	}
}

func (m *Model) submitQuote(q panels.QuoteSubmitMsg) tea.Cmd {
	return func() tea.Msg {
		res, err := m.backend.UpdateQuote(context.Background(), q.Bid, q.Offer)
		return quoteResultMsg{res: res, err: err}
	}
}

func (m *Model) submitTrade(req panels.TradeRequestMsg) tea.Cmd {
	return func() tea.Msg {
		res, err := m.backend.CreateTrade(context.Background(), req.AI.ID, req.Side, req.Price)
		return tradeResultMsg{res: res, err: err}
	}
}

func (m *Model) listenEvents() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.TickInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// tickMsg drives the countdown and periodic refresh.
type tickMsg struct{}

type eventMsg api.EventJSON

type stateMsg struct {
	state api.StateJSON
	err   error
}

type sessionMsg struct {
	session  api.SessionJSON
	finished bool
	err      error
}

type newsMsg struct {
	release api.ReleaseResponse
	err     error
}

type quoteResultMsg struct {
	res api.QuoteResponse
	err error
}

type tradeResultMsg struct {
	res api.TradeResponse
	err error
}
