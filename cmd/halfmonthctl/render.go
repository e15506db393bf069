package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"halfmonth/internal/core"
)

const barWidth = 30

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB")).Bold(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6CBFE6"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#6B7280")).Padding(0, 1)
)

// renderSummary lays out the analytics summary as terminal panels.
func renderSummary(s core.Summary) string {
	title := titleStyle.Render("Spending · " + s.Window.String())
	if s.Count == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, labelStyle.Render("No periods in this window."))
	}

	rows := []string{
		kv("Periods", fmt.Sprint(s.Count)),
		kv("Total spending", core.FormatCurrency(s.TotalSpending)),
		kv("1st half average", fmt.Sprintf("%s (%d)", core.FormatCurrency(s.FirstHalfAverage), len(s.FirstHalves))),
		kv("2nd half average", fmt.Sprintf("%s (%d)", core.FormatCurrency(s.SecondHalfAverage), len(s.SecondHalves))),
	}
	if s.HasExtrema {
		rows = append(rows,
			kv("Highest", fmt.Sprintf("%s %s", s.Highest.Label, core.FormatCurrency(s.Highest.Total))),
			kv("Lowest", fmt.Sprintf("%s %s", s.Lowest.Label, core.FormatCurrency(s.Lowest.Total))),
		)
	}
	totals := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	parts := []string{title, totals}
	if len(s.SpendingByCategory) > 0 {
		parts = append(parts, boxStyle.Render(categoryBars(s.SpendingByCategory)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func kv(label, value string) string {
	return labelStyle.Width(18).Render(label) + valueStyle.Render(value)
}

func categoryBars(rows []core.CategoryAmount) string {
	maxAmount := decimal.Zero
	nameWidth := 0
	for _, r := range rows {
		if r.Amount.GreaterThan(maxAmount) {
			maxAmount = r.Amount
		}
		if n := len(r.Category); n > nameWidth {
			nameWidth = n
		}
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		width := 0
		if maxAmount.IsPositive() {
			width = int(r.Amount.Mul(decimal.NewFromInt(barWidth)).Div(maxAmount).Round(0).IntPart())
		}
		if width == 0 && r.Amount.IsPositive() {
			width = 1
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			labelStyle.Width(nameWidth+1).Render(string(r.Category)),
			barStyle.Render(strings.Repeat("█", width)+strings.Repeat(" ", barWidth-width)),
			valueStyle.Render(core.FormatCurrency(r.Amount))))
	}
	return strings.Join(lines, "\n")
}
