// Package app wires configuration into a running orchestrator shared by the binaries.
package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Omsherani/stock-market/internal/api"
	"github.com/Omsherani/stock-market/internal/config"
	"github.com/Omsherani/stock-market/internal/exchange"
	"github.com/Omsherani/stock-market/internal/session"
)

const providerBinance = "binance"

// Stack is everything a front end needs to drive a symbol session.
type Stack struct {
	Client       *api.Client
	Stream       *exchange.BinanceStream
	Orchestrator *session.Orchestrator
}

// Build validates cfg and assembles the client, the optional crypto stream and the orchestrator.
func Build(cfg *config.Config, log zerolog.Logger, opts ...session.Option) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client := api.NewClient(log.With().Str("component", "api").Logger(),
		api.WithBaseURL(cfg.Backend.BaseURL),
		api.WithTimeout(cfg.Timeout()),
		api.WithUserAgent(cfg.Backend.UserAgent),
	)
	st := &Stack{Client: client}

	quotes := session.RoutedQuotes{Default: client}
	if cfg.Quotes.Provider == providerBinance {
		st.Stream = exchange.NewBinanceStream(log.With().Str("component", "binance").Logger(),
			exchange.WithStreamURL(cfg.Quotes.BinanceURL))
		quotes.Crypto = st.Stream
	}

	base := []session.Option{
		session.WithQuoteSource(quotes),
		session.WithPollInterval(cfg.PollInterval()),
	}
	st.Orchestrator = session.New(client, log.With().Str("component", "session").Logger(), append(base, opts...)...)
	log.Info().
		Str("backend", client.BaseURL()).
		Str("provider", cfg.Quotes.Provider).
		Dur("poll", cfg.PollInterval()).
		Msg("stack ready")
	return st, nil
}

// Close stops the orchestrator first so no poll reaches a closed stream.
func (s *Stack) Close() error {
	var errs []error
	if s.Orchestrator != nil {
		errs = append(errs, s.Orchestrator.Close())
	}
	if s.Stream != nil {
		errs = append(errs, s.Stream.Close())
	}
	return errors.Join(errs...)
}
