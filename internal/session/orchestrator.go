package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Omsherani/stock-market/internal/api"
	"github.com/Omsherani/stock-market/internal/market"
	"github.com/Omsherani/stock-market/internal/metrics"
	"github.com/Omsherani/stock-market/internal/stats"
	"github.com/Omsherani/stock-market/internal/symbol"
)

const (
	defaultPollInterval = 3 * time.Second
	noDataMessage       = "No data found"
	forecastFailed      = "Prediction failed."
)

// Orchestrator drives one active symbol session at a time. Responses are
// applied only while the session that issued them is still the active one.
type Orchestrator struct {
	backend  Backend
	quotes   QuoteSource
	interval time.Duration
	handler  func(Event)
	log      zerolog.Logger

	mu     sync.Mutex
	active *state
	queue  []Event
	closed bool

	emitMu sync.Mutex
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithQuoteSource overrides where the poll loop fetches prices. By default
// the backend is used when it can quote.
func WithQuoteSource(q QuoteSource) Option {
	return func(o *Orchestrator) {
		if q != nil {
			o.quotes = q
		}
	}
}

// WithPollInterval sets the delay between the end of one quote fetch and the start of the next.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithHandler registers the event callback. It runs on orchestrator
// goroutines and must not call LoadSymbol, RequestForecast or Close itself.
func WithHandler(fn func(Event)) Option {
	return func(o *Orchestrator) {
		o.handler = fn
	}
}

// New builds an idle orchestrator.
func New(backend Backend, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  backend,
		interval: defaultPollInterval,
		log:      log,
	}
	if q, ok := backend.(QuoteSource); ok {
		o.quotes = q
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LoadSymbol replaces the active session with one for input and blocks until
// its history has loaded or failed. A load overtaken by a newer one returns
// ErrSuperseded and changes nothing.
func (o *Orchestrator) LoadSymbol(ctx context.Context, input string) error {
	sym := symbol.ResolveDisplay(input)
	if sym == "" {
		return ErrEmptySymbol
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &state{
		id:     uuid.NewString(),
		symbol: sym,
		ctx:    sctx,
		cancel: cancel,
		status: StatusLoading,
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return ErrClosed
	}
	if prev := o.active; prev != nil {
		prev.cancel()
		o.log.Debug().Str("session", prev.id).Str("symbol", prev.symbol).Msg("session superseded")
	}
	o.active = s
	o.enqueueLocked(s, Event{Type: EventLoading})
	o.mu.Unlock()
	o.flush()

	o.log.Info().Str("session", s.id).Str("symbol", sym).Msg("loading symbol")

	fetchCtx, stop := joinContext(ctx, s.ctx)
	payload, err := o.backend.FetchStock(fetchCtx, sym)
	stop()

	o.mu.Lock()
	if o.active != s {
		o.mu.Unlock()
		metrics.StaleResponses.WithLabelValues("stock").Inc()
		metrics.Sessions.WithLabelValues("superseded").Inc()
		return ErrSuperseded
	}
	if err == nil && (payload == nil || len(payload.Bars) == 0) {
		err = fmt.Errorf("load %s: %s", sym, noDataMessage)
		s.errMsg = noDataMessage
	} else if err != nil {
		s.errMsg = api.Message(err)
	}
	if err != nil {
		s.status = StatusError
		s.updatedAt = time.Now()
		o.enqueueLocked(s, Event{Type: EventLoadFailed, Message: s.errMsg})
		o.mu.Unlock()
		o.flush()
		metrics.Sessions.WithLabelValues("error").Inc()
		o.log.Warn().Err(err).Str("session", s.id).Str("symbol", sym).Msg("load failed")
		return err
	}

	o.applyPayloadLocked(s, payload)
	o.enqueueLocked(s, Event{Type: EventLoaded, Message: s.warning})
	if symbol.ShouldPreferLiveChart(s.symbol) {
		o.enqueueLocked(s, Event{Type: EventPreferLiveChart})
	}
	if o.quotes != nil {
		go o.poll(s)
	}
	o.mu.Unlock()
	o.flush()

	metrics.Sessions.WithLabelValues("ready").Inc()
	o.log.Info().Str("session", s.id).Str("symbol", s.symbol).Int("bars", len(s.bars)).Msg("symbol loaded")
	return nil
}

func (o *Orchestrator) applyPayloadLocked(s *state, p *market.StockPayload) {
	if sym := symbol.ResolveDisplay(p.Symbol); sym != "" {
		s.symbol = sym
	}
	s.company = p.Company
	s.warning = p.Warning
	s.dataSource = p.DataSource
	s.bars = append([]market.Bar(nil), p.Bars...)
	s.signal = p.Signal.Clone()

	var snap market.StatsSnapshot
	if p.Stats != nil && stats.ValidPrice(p.Stats.Close) {
		snap = *p.Stats
	} else {
		last, _ := p.LastBar()
		snap = stats.Seed(last)
	}
	s.stats = &snap
	s.predictions = nil
	s.model = ""
	s.status = StatusReady
	s.errMsg = ""
	s.updatedAt = time.Now()
}

// poll runs until the session context is cancelled. The timer is re-armed
// only after the previous fetch returns, so at most one fetch is in flight.
func (o *Orchestrator) poll(s *state) {
	timer := time.NewTimer(o.interval)
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
		o.tick(s)
		timer.Reset(o.interval)
	}
}

func (o *Orchestrator) tick(s *state) {
	q, err := o.quotes.Quote(s.ctx, s.symbol)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		o.log.Warn().Err(err).Str("symbol", s.symbol).Msg("quote fetch failed")
		return
	}

	o.mu.Lock()
	if o.active != s || s.status != StatusReady {
		o.mu.Unlock()
		metrics.StaleResponses.WithLabelValues("price").Inc()
		return
	}
	if !q.OK || !stats.ValidPrice(q.Price) {
		o.mu.Unlock()
		return
	}
	next := stats.Merge(s.stats, q)
	s.stats = &next
	s.updatedAt = time.Now()
	o.enqueueLocked(s, Event{Type: EventStats, Stats: next, Live: stats.Live(s.stats, s.bars)})
	o.mu.Unlock()
	o.flush()

	metrics.QuoteUpdates.WithLabelValues(s.symbol).Inc()
}

// RequestForecast fetches predictions for the loaded symbol and blocks until
// they arrive. Only one forecast may be pending per session.
func (o *Orchestrator) RequestForecast(ctx context.Context, kind market.ModelKind) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	s := o.active
	if s == nil || s.status != StatusReady {
		o.mu.Unlock()
		return ErrNotReady
	}
	if s.predicting {
		o.mu.Unlock()
		return ErrForecastPending
	}
	s.predicting = true
	o.enqueueLocked(s, Event{Type: EventPredicting, Model: kind})
	o.mu.Unlock()
	o.flush()

	fetchCtx, stop := joinContext(ctx, s.ctx)
	preds, err := o.backend.FetchPrediction(fetchCtx, s.symbol, kind)
	stop()

	o.mu.Lock()
	if o.active != s {
		o.mu.Unlock()
		metrics.StaleResponses.WithLabelValues("predict").Inc()
		return ErrSuperseded
	}
	s.predicting = false
	if err != nil {
		msg := forecastFailed
		if detail := api.ServerMessage(err); detail != "" {
			msg += " " + detail
		}
		o.enqueueLocked(s, Event{Type: EventNotice, Message: msg, Model: kind})
		o.mu.Unlock()
		o.flush()
		o.log.Warn().Err(err).Str("symbol", s.symbol).Str("model", string(kind)).Msg("forecast failed")
		return fmt.Errorf("forecast %s: %w", kind, err)
	}
	s.predictions = append([]market.PredictionPoint{}, preds...)
	s.model = kind
	s.updatedAt = time.Now()
	o.enqueueLocked(s, Event{Type: EventPredictions, Model: kind})
	o.mu.Unlock()
	o.flush()

	o.log.Info().Str("symbol", s.symbol).Str("model", string(kind)).Int("points", len(preds)).Msg("forecast loaded")
	return nil
}

// Snapshot copies the active session. Before the first load it reports StatusIdle.
func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return View{Status: StatusIdle}
	}
	return o.active.view()
}

// Close cancels the active session and its poll loop. It is safe to call twice.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if o.active != nil {
		o.active.cancel()
		o.active = nil
	}
	o.queue = nil
	return nil
}

func (o *Orchestrator) enqueueLocked(s *state, ev Event) {
	if o.handler == nil {
		return
	}
	ev.SessionID = s.id
	ev.Symbol = s.symbol
	ev.At = time.Now()
	o.queue = append(o.queue, ev)
}

// flush delivers queued events in the order their state changes happened.
func (o *Orchestrator) flush() {
	if o.handler == nil {
		return
	}
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	for {
		o.mu.Lock()
		events := o.queue
		o.queue = nil
		o.mu.Unlock()
		if len(events) == 0 {
			return
		}
		for _, ev := range events {
			o.handler(ev)
		}
	}
}

// joinContext returns a context cancelled when either parent is.
func joinContext(parent, session context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(session, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// IsStale reports whether err only means the result belonged to an abandoned session.
func IsStale(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
