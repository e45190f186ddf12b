package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Omsherani/stock-market/internal/chart"
	"github.com/Omsherani/stock-market/internal/session"
	"github.com/Omsherani/stock-market/internal/signal"
)

// ── styles ────────────────────────────────────────────────────────────────────

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	liveBadge   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")).Padding(0, 1)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3")).Padding(0, 1)
	cardStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	seriesColors = map[chart.SeriesKind]lipgloss.Color{
		chart.KindClose:      lipgloss.Color("12"),
		chart.KindSMA20:      lipgloss.Color("11"),
		chart.KindSMA50:      lipgloss.Color("13"),
		chart.KindBridge:     lipgloss.Color("10"),
		chart.KindPrediction: lipgloss.Color("10"),
	}
)

const (
	plotHeight    = 14
	minPlotWidth  = 40
	defaultWidth  = 100
	yAxisWidth    = 11
	maxIndicators = 8
)

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Stock Market Dashboard"))
	b.WriteString("  ")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch m.view.Status {
	case session.StatusIdle:
		b.WriteString(dimStyle.Render("Search a symbol to begin."))
	case session.StatusLoading:
		b.WriteString(dimStyle.Render(fmt.Sprintf("Loading %s…", m.view.Symbol)))
	case session.StatusError:
		b.WriteString(errorStyle.Render(m.view.Error))
	case session.StatusReady:
		b.WriteString(m.renderReady())
	}
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render("[/] search  [v] toggle view  [l] linear  [m] lstm  [s] export svg  [q] quit"))
	return b.String()
}

func (m model) renderReady() string {
	v := m.view
	var b strings.Builder
	b.WriteString(titleStyle.Render(chart.Title(v.Symbol, v.Company)))
	if v.DataSource != "" {
		b.WriteString(dimStyle.Render("  via " + v.DataSource))
	}
	b.WriteString("\n")
	if v.Warning != "" {
		b.WriteString(warnStyle.Render("⚠ " + v.Warning))
		b.WriteString("\n")
	}
	b.WriteString(renderCards(v))
	b.WriteString("\n")
	if m.liveChart {
		b.WriteString(renderWidget(v, m.opts.widget))
	} else {
		b.WriteString(m.renderPlot())
	}
	b.WriteString("\n")
	b.WriteString(renderSignal(v.Signal))
	return b.String()
}

// ── cards ─────────────────────────────────────────────────────────────────────

func renderCards(v session.View) string {
	price := valueStyle.Render(fmt.Sprintf("$%s", formatPrice(v.Live.Price)))
	change := fmt.Sprintf("%+.2f (%+.2f%%)", v.Live.Change, v.Live.ChangePercent)
	if v.Live.Change >= 0 {
		change = gainStyle.Render("▲ " + change)
	} else {
		change = lossStyle.Render("▼ " + change)
	}
	priceCard := cardStyle.Render(liveBadge.Render("LIVE") + " " + labelStyle.Render("Price") + "\n" + price + "\n" + change)

	rsi := "N/A"
	var volume float64
	if n := len(v.Bars); n > 0 {
		last := v.Bars[n-1]
		if last.RSI != nil {
			rsi = fmt.Sprintf("%.2f", *last.RSI)
		}
		volume = last.Volume
	}
	var open, high, low float64
	if v.Stats != nil {
		open, high, low = v.Stats.Open, v.Stats.High, v.Stats.Low
		if v.Stats.Volume > 0 {
			volume = v.Stats.Volume
		}
	}
	cards := []string{
		priceCard,
		card("RSI (14)", rsi),
		card("Volume", formatVolume(volume)),
		card("High", "$"+formatPrice(high)),
		card("Low", "$"+formatPrice(low)),
		card("Open", "$"+formatPrice(open)),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func card(label, value string) string {
	return cardStyle.Render(labelStyle.Render(label) + "\n" + valueStyle.Render(value))
}

// ── chart views ───────────────────────────────────────────────────────────────

func (m model) renderPlot() string {
	cm := m.view.Chart()
	if cm.Empty() {
		return dimStyle.Render("No chart data.")
	}
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	plotW := width - yAxisWidth - 2
	if plotW < minPlotWidth {
		plotW = minPlotWidth
	}
	rows := chart.Plot(cm, plotW, plotHeight)
	lo, hi := priceRange(cm)

	var b strings.Builder
	for i, row := range rows {
		label := strings.Repeat(" ", yAxisWidth-2)
		switch i {
		case 0:
			label = fmt.Sprintf("%9.2f", hi)
		case len(rows) - 1:
			label = fmt.Sprintf("%9.2f", lo)
		}
		b.WriteString(dimStyle.Render(label + " │"))
		b.WriteString(colorize(row))
		b.WriteByte('\n')
	}
	b.WriteString(renderLegend(cm))
	if m.view.Predicting {
		b.WriteString("  " + warnStyle.Render("forecasting…"))
	}
	return b.String()
}

var glyphStyles = func() map[rune]lipgloss.Style {
	out := make(map[rune]lipgloss.Style, len(chart.Glyphs))
	for kind, glyph := range chart.Glyphs {
		out[glyph] = lipgloss.NewStyle().Foreground(seriesColors[kind])
	}
	return out
}()

// colorize paints each plot glyph in its series colour.
func colorize(row string) string {
	var b strings.Builder
	for _, r := range row {
		if style, ok := glyphStyles[r]; ok {
			b.WriteString(style.Render(string(r)))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func renderLegend(cm chart.Model) string {
	var parts []string
	for _, s := range cm.Series {
		if !s.ShowLegend {
			continue
		}
		glyph := string(chart.Glyphs[s.Kind])
		parts = append(parts, lipgloss.NewStyle().Foreground(seriesColors[s.Kind]).Render(glyph)+" "+s.Name)
	}
	return strings.Join(parts, "   ")
}

func priceRange(cm chart.Model) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range cm.Series {
		for _, p := range s.Points {
			if !p.Valid {
				continue
			}
			lo = math.Min(lo, p.Y)
			hi = math.Max(hi, p.Y)
		}
	}
	if math.IsInf(lo, 0) {
		return 0, 0
	}
	return lo, hi
}

func renderWidget(v session.View, opts chart.WidgetOptions) string {
	cfg := chart.NewWidgetConfig(v.Symbol, opts)
	var b strings.Builder
	b.WriteString(titleStyle.Render("Live chart"))
	b.WriteString("  ")
	b.WriteString(valueStyle.Render(cfg.Symbol))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  interval %s  theme %s", cfg.Interval, cfg.Theme)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Open: "))
	b.WriteString(cfg.URL())
	b.WriteString("\n")
	if raw, err := cfg.JSON(); err == nil {
		b.WriteString(dimStyle.Render(string(raw)))
		b.WriteString("\n")
	}
	return b.String()
}

// ── signals ───────────────────────────────────────────────────────────────────

func renderSignal(sig *signal.Signal) string {
	if !sig.Valid() {
		return dimStyle.Render("No trading signal available.")
	}
	style := dimStyle
	switch sig.Signal.Bias() {
	case 1:
		style = gainStyle
	case -1:
		style = lossStyle
	}
	var b strings.Builder
	b.WriteString(style.Bold(true).Render(string(sig.Signal)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  confidence %s  score %+.0f", sig.Confidence, sig.Score)))
	if sig.Strategy != "" {
		b.WriteString(dimStyle.Render("  " + sig.Strategy))
	}
	b.WriteString("\n")

	rows := sig.Analysis
	if len(rows) > maxIndicators {
		rows = rows[:maxIndicators]
	}
	for _, ind := range rows {
		fmt.Fprintf(&b, "  %-14s %-28s %10s  %s\n", ind.Name, ind.Condition, string(ind.Value), ind.Signal)
	}
	if sig.EntryPrice > 0 {
		b.WriteString(labelStyle.Render("  Trade setup: "))
		fmt.Fprintf(&b, "entry %s  target %s  stop %s\n",
			optionalPrice(sig.EntryPrice), optionalPrice(sig.TakeProfit), optionalPrice(sig.StopLoss))
	}
	return b.String()
}

// ── formatting ────────────────────────────────────────────────────────────────

func formatPrice(p float64) string {
	if p >= 1 || p == 0 {
		return fmt.Sprintf("%.2f", p)
	}
	return fmt.Sprintf("%.6f", p)
}

func optionalPrice(p float64) string {
	if p <= 0 {
		return "-"
	}
	return "$" + formatPrice(p)
}

func formatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
