package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/zappabad/bargetrader/internal/config"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/store/sqlstore"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0EA5E9")).
			MarginBottom(1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF")).
			Width(18)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9FAFB"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	bullishStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	bearishStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

const masked = "********"

func renderConfig(cfg *config.Config) string {
	token := "(none)"
	if cfg.AuthToken != "" {
		token = masked
	}

	rows := [][2]string{
		{"Listen address", cfg.ListenAddr},
		{"Server URL", cfg.ServerURL},
		{"Auth token", token},
		{"Data directory", cfg.DataDir},
		{"Database driver", cfg.DBDriver},
	}
	switch cfg.DBDriver {
	case config.DriverMemory:
	case sqlstore.DriverMySQL:
		rows = append(rows,
			[2]string{"MySQL user", cfg.MySQLUser},
			[2]string{"MySQL password", masked},
			[2]string{"MySQL host", cfg.MySQLHost},
			[2]string{"MySQL database", cfg.MySQLDatabase},
		)
	default:
		rows = append(rows, [2]string{"Database path", cfg.DBPath})
	}
	rows = append(rows,
		[2]string{"Initial price", cfg.InitialPrice.String()},
		[2]string{"Lot size", fmt.Sprint(cfg.LotSize)},
		[2]string{"Messages/round", fmt.Sprint(cfg.PoolSize)},
		[2]string{"Release interval", cfg.ReleaseInterval.String()},
		[2]string{"Round length", cfg.RoundLength.String()},
		[2]string{"Adjustment", fmt.Sprintf("%s (%s)", cfg.Adjustment, cfg.AdjustmentRate)},
		[2]string{"Uncertainty", cfg.Uncertainty.String()},
		[2]string{"AI traders", cfg.AIs},
		[2]string{"Seed news", fmt.Sprint(cfg.SeedNews)},
		[2]string{"Log", fmt.Sprintf("%s/%s", cfg.LogLevel, cfg.LogFormat)},
	)

	var b strings.Builder
	b.WriteString(titleStyle.Render("bargetrader configuration"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(keyStyle.Render(r[0]))
		b.WriteString(valueStyle.Render(r[1]))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderMessages(msgs []news.Message) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Message pool (%d)", len(msgs))))
	b.WriteString("\n")
	for _, m := range msgs {
		style, arrow := bullishStyle, "▲"
		if m.Impact == news.Bearish {
			style, arrow = bearishStyle, "▼"
		}
		b.WriteString(style.Width(9).Render(fmt.Sprintf("%s %s%%", arrow, m.Value.StringFixed(1))))
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
