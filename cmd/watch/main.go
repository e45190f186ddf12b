package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Omsherani/stock-market/internal/app"
	"github.com/Omsherani/stock-market/internal/chart"
	"github.com/Omsherani/stock-market/internal/config"
	"github.com/Omsherani/stock-market/internal/market"
	"github.com/Omsherani/stock-market/internal/metrics"
	"github.com/Omsherani/stock-market/internal/session"
	"github.com/Omsherani/stock-market/internal/util"
)

type watchOptions struct {
	symbol   string
	forecast market.ModelKind
	svgPath  string
	check    bool
}

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	symbolFlag := flag.String("symbol", "", "symbol to watch (defaults to dashboard.default_symbol)")
	forecast := flag.String("forecast", "", "request a forecast after loading: linear or lstm")
	svgPath := flag.String("svg", "", "write the chart to this SVG file after loading")
	check := flag.Bool("check", false, "ping the analytics service and exit")
	flag.Parse()

	log := util.NewConsoleLogger("info", os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewConsoleLogger(cfg.App.LogLevel, os.Stderr)

	opts := watchOptions{symbol: *symbolFlag, svgPath: *svgPath, check: *check}
	if *forecast != "" {
		if opts.forecast, err = market.ParseModelKind(*forecast); err != nil {
			log.Fatal().Err(err).Msg("bad -forecast")
		}
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log, opts)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("watch")
		os.Exit(1)
	}
}

// run owns the stack, so every return path tears it down before main exits.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts watchOptions) error {
	stack, err := app.Build(cfg, log, session.WithHandler(logEvent(log)))
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	defer func() {
		if cerr := stack.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("shutdown")
		}
	}()

	if opts.check {
		checkCtx, stop := context.WithTimeout(ctx, cfg.Timeout())
		defer stop()
		if err := stack.Client.Health(checkCtx); err != nil {
			return fmt.Errorf("health check %s: %w", stack.Client.BaseURL(), err)
		}
		log.Info().Str("backend", stack.Client.BaseURL()).Msg("analytics service healthy")
		return nil
	}

	if srv := metrics.Serve(cfg.App.MetricsAddr); srv != nil {
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	sym := opts.symbol
	if sym == "" {
		sym = cfg.Dashboard.DefaultSymbol
	}
	if err := stack.Orchestrator.LoadSymbol(ctx, sym); err != nil {
		return fmt.Errorf("load %q: %w", sym, err)
	}

	if opts.forecast != "" {
		if err := stack.Orchestrator.RequestForecast(ctx, opts.forecast); err != nil {
			log.Warn().Err(err).Msg("forecast unavailable")
		}
	}
	if opts.svgPath != "" {
		view := stack.Orchestrator.Snapshot()
		if err := chart.WriteFile(opts.svgPath, view.Chart(), cfg.Chart.Width, cfg.Chart.Height); err != nil {
			log.Error().Err(err).Msg("export chart")
		} else {
			log.Info().Str("path", opts.svgPath).Msg("chart written")
		}
	}

	log.Info().Str("symbol", sym).Dur("interval", cfg.PollInterval()).Msg("watching live quotes")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

func logEvent(log zerolog.Logger) func(session.Event) {
	return func(ev session.Event) {
		switch ev.Type {
		case session.EventStats:
			log.Info().
				Str("symbol", ev.Symbol).
				Float64("price", ev.Live.Price).
				Float64("change", ev.Live.Change).
				Str("change_pct", fmt.Sprintf("%+.2f%%", ev.Live.ChangePercent)).
				Float64("high", ev.Stats.High).
				Float64("low", ev.Stats.Low).
				Msg("quote")
		case session.EventLoaded:
			log.Info().Str("symbol", ev.Symbol).Str("session", ev.SessionID).Msg("loaded")
		case session.EventLoadFailed, session.EventNotice:
			log.Warn().Str("symbol", ev.Symbol).Msg(ev.Message)
		case session.EventPreferLiveChart:
			log.Info().Str("symbol", ev.Symbol).Msg("live chart recommended for this instrument")
		case session.EventPredictions:
			log.Info().Str("symbol", ev.Symbol).Str("model", string(ev.Model)).Msg("forecast ready")
		default:
			log.Debug().Str("type", string(ev.Type)).Str("symbol", ev.Symbol).Time("at", ev.At.Truncate(time.Millisecond)).Msg("event")
		}
	}
}
