// Package session owns the lifecycle of a symbol view: loading history,
// polling live quotes, requesting forecasts and discarding responses that
// arrive after the user moved on to another symbol.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/Omsherani/stock-market/internal/chart"
	"github.com/Omsherani/stock-market/internal/market"
	"github.com/Omsherani/stock-market/internal/signal"
	"github.com/Omsherani/stock-market/internal/stats"
	"github.com/Omsherani/stock-market/internal/symbol"
)

var (
	ErrEmptySymbol     = errors.New("empty symbol")
	ErrNotReady        = errors.New("no symbol loaded")
	ErrForecastPending = errors.New("forecast already in progress")
	ErrSuperseded      = errors.New("session superseded")
	ErrClosed          = errors.New("orchestrator closed")
)

// Backend is the analytics service as seen by the orchestrator.
type Backend interface {
	FetchStock(ctx context.Context, symbol string) (*market.StockPayload, error)
	FetchPrediction(ctx context.Context, symbol string, kind market.ModelKind) ([]market.PredictionPoint, error)
}

// QuoteSource supplies live prices for the poll loop.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (market.Quote, error)
}

// Status is the load state of the active session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// EventType tags orchestrator notifications.
type EventType string

const (
	EventLoading         EventType = "loading"
	EventLoaded          EventType = "loaded"
	EventLoadFailed      EventType = "load_failed"
	EventPreferLiveChart EventType = "prefer_live_chart"
	EventStats           EventType = "stats"
	EventPredicting      EventType = "predicting"
	EventPredictions     EventType = "predictions"
	EventNotice          EventType = "notice"
)

// Event is delivered to the handler after the state change it describes.
type Event struct {
	Type      EventType
	SessionID string
	Symbol    string
	Message   string
	Stats     market.StatsSnapshot
	Live      stats.LiveFigures
	Model     market.ModelKind
	At        time.Time
}

// View is a copy of the active session safe to hold across goroutines.
type View struct {
	SessionID    string
	Symbol       string
	Company      string
	Status       Status
	Error        string
	Warning      string
	DataSource   string
	Bars         []market.Bar
	Stats        *market.StatsSnapshot
	Live         stats.LiveFigures
	Predictions  []market.PredictionPoint
	Model        market.ModelKind
	Signal       *signal.Signal
	Predicting   bool
	VendorSymbol string
	UpdatedAt    time.Time
}

// Chart composes the analytics chart for the view.
func (v View) Chart() chart.Model {
	return chart.Compose(v.Symbol, v.Company, v.Bars, v.Predictions)
}

// PreferLiveChart reports whether the loaded symbol is better shown on the live widget.
func (v View) PreferLiveChart() bool {
	return v.Symbol != "" && symbol.ShouldPreferLiveChart(v.Symbol)
}

type state struct {
	id     string
	symbol string
	ctx    context.Context
	cancel context.CancelFunc

	status      Status
	errMsg      string
	company     string
	warning     string
	dataSource  string
	bars        []market.Bar
	stats       *market.StatsSnapshot
	predictions []market.PredictionPoint
	model       market.ModelKind
	signal      *signal.Signal
	predicting  bool
	updatedAt   time.Time
}

func (s *state) view() View {
	v := View{
		SessionID:  s.id,
		Symbol:     s.symbol,
		Company:    s.company,
		Status:     s.status,
		Error:      s.errMsg,
		Warning:    s.warning,
		DataSource: s.dataSource,
		Model:      s.model,
		Predicting: s.predicting,
		UpdatedAt:  s.updatedAt,
		Live:       stats.Live(s.stats, s.bars),
		Signal:     s.signal.Clone(),
	}
	if s.symbol != "" {
		v.VendorSymbol = symbol.ResolveVendorSymbol(s.symbol)
	}
	if s.bars != nil {
		v.Bars = append([]market.Bar(nil), s.bars...)
	}
	if s.stats != nil {
		cp := *s.stats
		v.Stats = &cp
	}
	if s.predictions != nil {
		v.Predictions = append([]market.PredictionPoint(nil), s.predictions...)
	}
	return v
}
