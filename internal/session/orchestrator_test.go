package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Omsherani/stock-market/internal/api"
	"github.com/Omsherani/stock-market/internal/market"
)

type fakeBackend struct {
	stock   func(ctx context.Context, sym string) (*market.StockPayload, error)
	predict func(ctx context.Context, sym string, kind market.ModelKind) ([]market.PredictionPoint, error)
}

func (f *fakeBackend) FetchStock(ctx context.Context, sym string) (*market.StockPayload, error) {
	return f.stock(ctx, sym)
}

func (f *fakeBackend) FetchPrediction(ctx context.Context, sym string, kind market.ModelKind) ([]market.PredictionPoint, error) {
	if f.predict == nil {
		return nil, errors.New("not implemented")
	}
	return f.predict(ctx, sym, kind)
}

type quoteFunc func(ctx context.Context, sym string) (market.Quote, error)

func (f quoteFunc) Quote(ctx context.Context, sym string) (market.Quote, error) { return f(ctx, sym) }

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(typ EventType, sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ && (sessionID == "" || ev.SessionID == sessionID) {
			n++
		}
	}
	return n
}

func (r *recorder) last(typ EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func barsEndingAt(closePx float64) []market.Bar {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return []market.Bar{
		{Date: start, Open: closePx - 2, High: closePx - 1, Low: closePx - 3, Close: closePx - 2},
		{Date: start.AddDate(0, 0, 1), Open: closePx - 1, High: closePx + 1, Low: closePx - 2, Close: closePx},
	}
}

func payloadFor(sym string, closePx float64) *market.StockPayload {
	return &market.StockPayload{Symbol: sym, Company: sym + " Corp", Bars: barsEndingAt(closePx)}
}

func staticBackend(closePx float64) *fakeBackend {
	return &fakeBackend{stock: func(_ context.Context, sym string) (*market.StockPayload, error) {
		return payloadFor(sym, closePx), nil
	}}
}

func noQuotes() QuoteSource {
	return quoteFunc(func(context.Context, string) (market.Quote, error) { return market.Quote{}, nil })
}

func TestLoadSymbolEmptyInput(t *testing.T) {
	rec := &recorder{}
	o := New(staticBackend(10), zerolog.Nop(), WithQuoteSource(noQuotes()), WithHandler(rec.handle))
	defer o.Close()

	if err := o.LoadSymbol(context.Background(), "   "); !errors.Is(err, ErrEmptySymbol) {
		t.Fatalf("expected ErrEmptySymbol, got %v", err)
	}
	if v := o.Snapshot(); v.Status != StatusIdle || v.Symbol != "" {
		t.Fatalf("empty input must not change state: %+v", v)
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected no events, got %+v", rec.events)
	}
}

func TestLoadAndPollUpdatesLiveFigures(t *testing.T) {
	rec := &recorder{}
	quotes := quoteFunc(func(_ context.Context, sym string) (market.Quote, error) {
		if sym != "AAPL" {
			t.Errorf("quote for unexpected symbol %s", sym)
		}
		return market.Quote{Price: 151.25, OK: true}, nil
	})
	o := New(staticBackend(150), zerolog.Nop(),
		WithQuoteSource(quotes), WithPollInterval(5*time.Millisecond), WithHandler(rec.handle))
	defer o.Close()

	if err := o.LoadSymbol(context.Background(), " aapl "); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	v := o.Snapshot()
	if v.Status != StatusReady || v.Symbol != "AAPL" || v.Stats == nil || v.Stats.Close != 150 {
		t.Fatalf("unexpected view after load %+v", v)
	}
	if v.VendorSymbol != "NASDAQ:AAPL" || v.PreferLiveChart() {
		t.Fatalf("unexpected vendor routing %q", v.VendorSymbol)
	}
	if v.Chart().Empty() {
		t.Fatalf("expected chart series for loaded bars")
	}

	waitFor(t, "stats event", func() bool { return rec.count(EventStats, v.SessionID) > 0 })
	v = o.Snapshot()
	if v.Stats.Close != 151.25 || v.Stats.High < 151.25 {
		t.Fatalf("quote not merged: %+v", v.Stats)
	}
	if math.Abs(v.Live.Change-1.25) > 1e-9 || math.Abs(v.Live.ChangePercent-0.8333) > 1e-3 {
		t.Fatalf("unexpected live figures %+v", v.Live)
	}
	ev, _ := rec.last(EventStats)
	if ev.Symbol != "AAPL" || ev.Stats.Close != 151.25 {
		t.Fatalf("unexpected stats event %+v", ev)
	}
}

func TestLoadPrefersBackendStats(t *testing.T) {
	backend := &fakeBackend{stock: func(_ context.Context, sym string) (*market.StockPayload, error) {
		p := payloadFor(sym, 150)
		p.Stats = &market.StatsSnapshot{Open: 149, High: 152, Low: 148, Close: 150, Volume: 1000}
		return p, nil
	}}
	o := New(backend, zerolog.Nop(), WithQuoteSource(noQuotes()))
	defer o.Close()
	if err := o.LoadSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	if v := o.Snapshot(); v.Stats.High != 152 || v.Stats.Volume != 1000 {
		t.Fatalf("expected backend stats, got %+v", v.Stats)
	}
}

func TestLoadFailures(t *testing.T) {
	cases := []struct {
		name string
		resp func() (*market.StockPayload, error)
		want string
	}{
		{"server message", func() (*market.StockPayload, error) {
			return nil, &api.APIError{Endpoint: "stock", Status: 404, Message: "Symbol not found"}
		}, "Symbol not found"},
		{"transport", func() (*market.StockPayload, error) {
			return nil, api.ErrUnavailable
		}, api.GenericMessage},
		{"empty bars", func() (*market.StockPayload, error) {
			return &market.StockPayload{Symbol: "ZZZZ"}, nil
		}, "No data found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			backend := &fakeBackend{stock: func(context.Context, string) (*market.StockPayload, error) { return tc.resp() }}
			o := New(backend, zerolog.Nop(), WithQuoteSource(noQuotes()), WithHandler(rec.handle))
			defer o.Close()
			if err := o.LoadSymbol(context.Background(), "ZZZZ"); err == nil {
				t.Fatalf("expected error")
			}
			v := o.Snapshot()
			if v.Status != StatusError || v.Error != tc.want {
				t.Fatalf("unexpected view %+v", v)
			}
			if ev, ok := rec.last(EventLoadFailed); !ok || ev.Message != tc.want {
				t.Fatalf("expected load_failed event with %q", tc.want)
			}
			if err := o.RequestForecast(context.Background(), market.ModelLinear); !errors.Is(err, ErrNotReady) {
				t.Fatalf("forecast on failed session: %v", err)
			}
		})
	}
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{stock: func(_ context.Context, sym string) (*market.StockPayload, error) {
		if sym == "A" {
			close(started)
			<-release
			return payloadFor("A", 10), nil
		}
		return payloadFor(sym, 20), nil
	}}
	o := New(backend, zerolog.Nop(), WithQuoteSource(noQuotes()))
	defer o.Close()

	errA := make(chan error, 1)
	go func() { errA <- o.LoadSymbol(context.Background(), "A") }()
	<-started
	if err := o.LoadSymbol(context.Background(), "B"); err != nil {
		t.Fatalf("LoadSymbol B: %v", err)
	}
	close(release)
	if err := <-errA; !errors.Is(err, ErrSuperseded) || !IsStale(err) {
		t.Fatalf("expected ErrSuperseded for A, got %v", err)
	}
	v := o.Snapshot()
	if v.Symbol != "B" || v.Status != StatusReady || v.Stats.Close != 20 {
		t.Fatalf("stale load leaked into view: %+v", v)
	}
}

func TestStaleQuoteDoesNotTouchNewSession(t *testing.T) {
	rec := &recorder{}
	quoteStarted := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	quotes := quoteFunc(func(_ context.Context, sym string) (market.Quote, error) {
		if sym == "A" {
			once.Do(func() { close(quoteStarted) })
			<-release
			return market.Quote{Price: 999, OK: true}, nil
		}
		return market.Quote{}, nil
	})
	o := New(staticBackend(50), zerolog.Nop(),
		WithQuoteSource(quotes), WithPollInterval(time.Millisecond), WithHandler(rec.handle))
	defer o.Close()

	if err := o.LoadSymbol(context.Background(), "A"); err != nil {
		t.Fatalf("LoadSymbol A: %v", err)
	}
	<-quoteStarted
	if err := o.LoadSymbol(context.Background(), "B"); err != nil {
		t.Fatalf("LoadSymbol B: %v", err)
	}
	close(release)
	time.Sleep(20 * time.Millisecond)

	v := o.Snapshot()
	if v.Symbol != "B" || v.Stats.Close != 50 || v.Stats.High == 999 {
		t.Fatalf("stale quote applied to new session: %+v", v.Stats)
	}
	if rec.count(EventStats, "") != 0 {
		t.Fatalf("stale quote produced a stats event")
	}
}

func TestSameSymbolReloadDropsStaleQuote(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	quotes := quoteFunc(func(context.Context, string) (market.Quote, error) {
		held := false
		first.Do(func() {
			held = true
			close(started)
		})
		if held {
			<-release
			return market.Quote{Price: 999, OK: true}, nil
		}
		return market.Quote{}, nil
	})
	o := New(staticBackend(50), zerolog.Nop(),
		WithQuoteSource(quotes), WithPollInterval(time.Millisecond), WithHandler(rec.handle))
	defer o.Close()

	if err := o.LoadSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("LoadSymbol AAPL: %v", err)
	}
	firstID := o.Snapshot().SessionID
	<-started
	if err := o.LoadSymbol(context.Background(), " aapl "); err != nil {
		t.Fatalf("reload aapl: %v", err)
	}
	secondID := o.Snapshot().SessionID
	close(release)
	time.Sleep(20 * time.Millisecond)

	if firstID == secondID {
		t.Fatalf("reload kept session %s", firstID)
	}
	v := o.Snapshot()
	if v.SessionID != secondID || v.Symbol != "AAPL" {
		t.Fatalf("unexpected active session %s %q", v.SessionID, v.Symbol)
	}
	want := market.StatsSnapshot{Open: 49, High: 51, Low: 48, Close: 50}
	if v.Stats == nil || v.Stats.Open != want.Open || v.Stats.High != want.High ||
		v.Stats.Low != want.Low || v.Stats.Close != want.Close {
		t.Fatalf("quote from the replaced session leaked into stats: %+v", v.Stats)
	}
	if rec.count(EventStats, "") != 0 {
		t.Fatalf("quote from the replaced session produced a stats event")
	}
}

func TestPreferLiveChartEmittedOnce(t *testing.T) {
	rec := &recorder{}
	quotes := quoteFunc(func(context.Context, string) (market.Quote, error) {
		return market.Quote{Price: 2400, OK: true}, nil
	})
	o := New(staticBackend(2390), zerolog.Nop(),
		WithQuoteSource(quotes), WithPollInterval(time.Millisecond), WithHandler(rec.handle))
	defer o.Close()

	if err := o.LoadSymbol(context.Background(), "XAUUSD"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	id := o.Snapshot().SessionID
	waitFor(t, "several ticks", func() bool { return rec.count(EventStats, id) >= 3 })
	if n := rec.count(EventPreferLiveChart, id); n != 1 {
		t.Fatalf("expected exactly one live chart hint, got %d", n)
	}
	if v := o.Snapshot(); v.VendorSymbol != "OANDA:XAUUSD" || !v.PreferLiveChart() {
		t.Fatalf("unexpected gold routing %+v", v)
	}

	if err := o.LoadSymbol(context.Background(), "MSFT"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	if n := rec.count(EventPreferLiveChart, o.Snapshot().SessionID); n != 0 {
		t.Fatalf("equity load must not hint live chart, got %d", n)
	}
}

func TestEventsFollowStateOrder(t *testing.T) {
	rec := &recorder{}
	o := New(staticBackend(10), zerolog.Nop(), WithQuoteSource(noQuotes()), WithHandler(rec.handle))
	defer o.Close()
	if err := o.LoadSymbol(context.Background(), "BTC-USD"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var got []EventType
	for _, ev := range rec.events {
		got = append(got, ev.Type)
	}
	want := []EventType{EventLoading, EventLoaded, EventPreferLiveChart}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestForecastFailureKeepsSessionReady(t *testing.T) {
	rec := &recorder{}
	backend := staticBackend(150)
	backend.predict = func(context.Context, string, market.ModelKind) ([]market.PredictionPoint, error) {
		return nil, &api.APIError{Endpoint: "predict", Status: 500, Message: "model unavailable"}
	}
	o := New(backend, zerolog.Nop(), WithQuoteSource(noQuotes()), WithHandler(rec.handle))
	defer o.Close()
	if err := o.LoadSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}

	if err := o.RequestForecast(context.Background(), market.ModelLSTM); err == nil {
		t.Fatalf("expected forecast error")
	}
	v := o.Snapshot()
	if v.Status != StatusReady || v.Predictions != nil || v.Predicting {
		t.Fatalf("forecast failure must leave session ready without predictions: %+v", v)
	}
	ev, ok := rec.last(EventNotice)
	if !ok || ev.Message != "Prediction failed. model unavailable" || ev.Model != market.ModelLSTM {
		t.Fatalf("unexpected notice %+v", ev)
	}
}

func TestForecastRejectWhilePending(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := staticBackend(150)
	var calls atomic.Int32
	backend.predict = func(_ context.Context, _ string, kind market.ModelKind) ([]market.PredictionPoint, error) {
		calls.Add(1)
		close(started)
		<-release
		return []market.PredictionPoint{{Date: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), Price: 152}}, nil
	}
	o := New(backend, zerolog.Nop(), WithQuoteSource(noQuotes()))
	defer o.Close()

	if err := o.RequestForecast(context.Background(), market.ModelLinear); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady before load, got %v", err)
	}
	if err := o.LoadSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}

	first := make(chan error, 1)
	go func() { first <- o.RequestForecast(context.Background(), market.ModelLinear) }()
	<-started
	if !o.Snapshot().Predicting {
		t.Fatalf("expected predicting flag while pending")
	}
	if err := o.RequestForecast(context.Background(), market.ModelLSTM); !errors.Is(err, ErrForecastPending) {
		t.Fatalf("expected ErrForecastPending, got %v", err)
	}
	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first forecast: %v", err)
	}
	v := o.Snapshot()
	if len(v.Predictions) != 1 || v.Model != market.ModelLinear || v.Predicting {
		t.Fatalf("unexpected forecast state %+v", v)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single backend call, got %d", calls.Load())
	}
	if _, ok := v.Chart().Find("bridge"); !ok {
		t.Fatalf("forecast should add a bridge series")
	}
}

func TestForecastForSupersededSessionIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := staticBackend(150)
	backend.predict = func(_ context.Context, sym string, _ market.ModelKind) ([]market.PredictionPoint, error) {
		if sym == "A" {
			close(started)
			<-release
		}
		return []market.PredictionPoint{{Date: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), Price: 1}}, nil
	}
	o := New(backend, zerolog.Nop(), WithQuoteSource(noQuotes()))
	defer o.Close()
	if err := o.LoadSymbol(context.Background(), "A"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- o.RequestForecast(context.Background(), market.ModelLinear) }()
	<-started
	if err := o.LoadSymbol(context.Background(), "B"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	close(release)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if v := o.Snapshot(); v.Predictions != nil || v.Predicting {
		t.Fatalf("stale forecast leaked: %+v", v)
	}
}

func TestPollErrorsDoNotStopLoop(t *testing.T) {
	rec := &recorder{}
	var calls atomic.Int32
	quotes := quoteFunc(func(context.Context, string) (market.Quote, error) {
		if calls.Add(1) <= 2 {
			return market.Quote{}, errors.New("boom")
		}
		return market.Quote{Price: 11, OK: true}, nil
	})
	o := New(staticBackend(10), zerolog.Nop(),
		WithQuoteSource(quotes), WithPollInterval(time.Millisecond), WithHandler(rec.handle))
	defer o.Close()
	if err := o.LoadSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	waitFor(t, "recovery after errors", func() bool { return rec.count(EventStats, "") > 0 })
	if o.Snapshot().Stats.Close != 11 {
		t.Fatalf("expected merged quote after errors")
	}
}

func TestInvalidQuotesAreIgnored(t *testing.T) {
	var calls atomic.Int32
	quotes := quoteFunc(func(context.Context, string) (market.Quote, error) {
		calls.Add(1)
		return market.Quote{Price: math.NaN(), OK: true}, nil
	})
	o := New(staticBackend(10), zerolog.Nop(), WithQuoteSource(quotes), WithPollInterval(time.Millisecond))
	defer o.Close()
	if err := o.LoadSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	waitFor(t, "a few polls", func() bool { return calls.Load() >= 3 })
	if v := o.Snapshot(); v.Stats.Close != 10 {
		t.Fatalf("invalid quote merged: %+v", v.Stats)
	}
}

func TestCloseStopsPolling(t *testing.T) {
	var calls atomic.Int32
	quotes := quoteFunc(func(context.Context, string) (market.Quote, error) {
		calls.Add(1)
		return market.Quote{Price: 11, OK: true}, nil
	})
	o := New(staticBackend(10), zerolog.Nop(), WithQuoteSource(quotes), WithPollInterval(time.Millisecond))
	if err := o.LoadSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	waitFor(t, "polling", func() bool { return calls.Load() >= 2 })

	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	settled := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != settled {
		t.Fatalf("poll loop still running after Close")
	}
	if err := o.LoadSymbol(context.Background(), "MSFT"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := o.RequestForecast(context.Background(), market.ModelLinear); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSupersedeCancelsInFlightFetch(t *testing.T) {
	backend := &fakeBackend{stock: func(ctx context.Context, sym string) (*market.StockPayload, error) {
		if sym == "SLOW" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return payloadFor(sym, 5), nil
	}}
	o := New(backend, zerolog.Nop(), WithQuoteSource(noQuotes()))
	defer o.Close()

	done := make(chan error, 1)
	go func() { done <- o.LoadSymbol(context.Background(), "SLOW") }()
	waitFor(t, "slow load to start", func() bool { return o.Snapshot().Symbol == "SLOW" })
	if err := o.LoadSymbol(context.Background(), "FAST"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("superseded fetch was not cancelled")
	}
	if v := o.Snapshot(); v.Symbol != "FAST" || v.Status != StatusReady {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	o := New(staticBackend(10), zerolog.Nop(), WithQuoteSource(noQuotes()))
	defer o.Close()
	if err := o.LoadSymbol(context.Background(), "AAPL"); err != nil {
		t.Fatalf("LoadSymbol: %v", err)
	}
	v := o.Snapshot()
	v.Bars[0].Close = -1
	v.Stats.Close = -1
	again := o.Snapshot()
	if again.Bars[0].Close == -1 || again.Stats.Close == -1 {
		t.Fatalf("snapshot shares storage with session")
	}
	if !strings.HasSuffix(again.Company, "Corp") {
		t.Fatalf("unexpected company %q", again.Company)
	}
}
