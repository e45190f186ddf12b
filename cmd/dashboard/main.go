package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/Omsherani/stock-market/internal/app"
	"github.com/Omsherani/stock-market/internal/chart"
	"github.com/Omsherani/stock-market/internal/config"
	"github.com/Omsherani/stock-market/internal/metrics"
	"github.com/Omsherani/stock-market/internal/session"
	"github.com/Omsherani/stock-market/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML config")
	symbolFlag := flag.String("symbol", "", "symbol to load on start (overrides dashboard.default_symbol)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *symbolFlag != "" {
		cfg.Dashboard.DefaultSymbol = *symbolFlag
	}

	// The terminal belongs to the UI, so logs only go to a file when one is configured.
	var logOut io.Writer = io.Discard
	if cfg.App.LogFile != "" {
		f, err := os.OpenFile(cfg.App.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	log := util.NewLogger(cfg.App.LogLevel, logOut)

	_ = metrics.Serve(cfg.App.MetricsAddr)

	if err := run(cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	events := make(chan session.Event, 64)
	done := make(chan struct{})
	handler := func(ev session.Event) {
		select {
		case events <- ev:
		case <-done:
		}
	}

	stack, err := app.Build(cfg, log, session.WithHandler(handler))
	if err != nil {
		return err
	}

	w := cfg.Chart.Widget
	p := tea.NewProgram(newModel(stack.Orchestrator, events, options{
		defaultSymbol: cfg.Dashboard.DefaultSymbol,
		exportDir:     cfg.Dashboard.ExportDir,
		svgWidth:      cfg.Chart.Width,
		svgHeight:     cfg.Chart.Height,
		widget:        chart.WidgetOptions{Interval: w.Interval, Timezone: w.Timezone, Theme: w.Theme, Locale: w.Locale},
	}), tea.WithAltScreen())

	_, err = p.Run()
	close(done)
	if cerr := stack.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("shutdown")
	}
	log.Info().Msg("dashboard closed")
	return err
}
