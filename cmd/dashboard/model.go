package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Omsherani/stock-market/internal/chart"
	"github.com/Omsherani/stock-market/internal/market"
	"github.com/Omsherani/stock-market/internal/session"
)

const noticeTTL = 4 * time.Second

type orchestrator interface {
	LoadSymbol(ctx context.Context, input string) error
	RequestForecast(ctx context.Context, kind market.ModelKind) error
	Snapshot() session.View
}

// ── messages ──────────────────────────────────────────────────────────────────

type eventMsg struct{ ev session.Event }

type loadDoneMsg struct{ err error }

type forecastDoneMsg struct {
	kind market.ModelKind
	err  error
}

type exportedMsg struct {
	path string
	err  error
}

type clearNoticeMsg struct{ seq int }

// ── model ─────────────────────────────────────────────────────────────────────

type options struct {
	defaultSymbol string
	exportDir     string
	svgWidth      int
	svgHeight     int
	widget        chart.WidgetOptions
}

type model struct {
	orch   orchestrator
	events <-chan session.Event
	opts   options

	input     textinput.Model
	view      session.View
	liveChart bool
	hinted    string // session that already applied its live chart hint
	notice    string
	noticeSeq int

	width  int
	height int
}

func newModel(orch orchestrator, events <-chan session.Event, opts options) model {
	in := textinput.New()
	in.Placeholder = "Enter symbol (AAPL, BTC, XAUUSD)"
	in.CharLimit = 24
	in.Width = 32
	in.SetValue(opts.defaultSymbol)
	in.Focus()
	return model{
		orch:   orch,
		events: events,
		opts:   opts,
		input:  in,
		view:   orch.Snapshot(),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForEvent(m.events)}
	if m.opts.defaultSymbol != "" {
		cmds = append(cmds, m.load(m.opts.defaultSymbol))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.input.Focused() {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "/", "i":
			m.input.SetValue("")
			cmd := m.input.Focus()
			return m, cmd
		case "v", "tab":
			m.liveChart = !m.liveChart
		case "l":
			return m, m.forecast(market.ModelLinear)
		case "m":
			return m, m.forecast(market.ModelLSTM)
		case "s":
			return m, m.export()
		}
		return m, nil

	case eventMsg:
		m.view = m.orch.Snapshot()
		var cmd tea.Cmd
		switch msg.ev.Type {
		case session.EventPreferLiveChart:
			if msg.ev.SessionID == m.view.SessionID && m.hinted != msg.ev.SessionID {
				m.hinted = msg.ev.SessionID
				m.liveChart = true
			}
		case session.EventNotice:
			cmd = m.setNotice(msg.ev.Message)
		}
		return m, tea.Batch(cmd, waitForEvent(m.events))

	case loadDoneMsg:
		m.view = m.orch.Snapshot()
		if errors.Is(msg.err, session.ErrEmptySymbol) {
			cmd := m.setNotice("Enter a symbol first.")
			return m, cmd
		}
		return m, nil

	case forecastDoneMsg:
		m.view = m.orch.Snapshot()
		switch {
		case errors.Is(msg.err, session.ErrForecastPending):
			cmd := m.setNotice("A forecast is already running.")
			return m, cmd
		case errors.Is(msg.err, session.ErrNotReady):
			cmd := m.setNotice("Load a symbol before forecasting.")
			return m, cmd
		}
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			cmd := m.setNotice("Export failed: " + msg.err.Error())
			return m, cmd
		}
		cmd := m.setNotice("Chart saved to " + msg.path)
		return m, cmd

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil
	}

	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		sym := strings.TrimSpace(m.input.Value())
		m.input.Blur()
		return m, m.load(sym)
	case tea.KeyEsc:
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) setNotice(text string) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	seq := m.noticeSeq
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return clearNoticeMsg{seq: seq} })
}

// ── commands ──────────────────────────────────────────────────────────────────

// waitForEvent blocks on the channel and returns a Cmd that fires eventMsg.
func waitForEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{ev}
	}
}

func (m model) load(sym string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		return loadDoneMsg{err: orch.LoadSymbol(context.Background(), sym)}
	}
}

func (m model) forecast(kind market.ModelKind) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		return forecastDoneMsg{kind: kind, err: orch.RequestForecast(context.Background(), kind)}
	}
}

func (m model) export() tea.Cmd {
	view := m.view
	opts := m.opts
	return func() tea.Msg {
		if view.Status != session.StatusReady {
			return exportedMsg{err: errors.New("nothing loaded")}
		}
		name := fmt.Sprintf("%s-%s.svg", sanitize(view.Symbol), time.Now().Format("20060102-150405"))
		path := filepath.Join(opts.exportDir, name)
		return exportedMsg{path: path, err: chart.WriteFile(path, view.Chart(), opts.svgWidth, opts.svgHeight)}
	}
}

func sanitize(sym string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', '=':
			return '_'
		}
		return r
	}, sym)
}
