package session

import (
	"context"
	"errors"

	"github.com/Omsherani/stock-market/internal/market"
	"github.com/Omsherani/stock-market/internal/symbol"
)

// goldProxy is the tokenised gold pair quoted on crypto venues.
const goldProxy = "PAXG"

var errNoQuoteSource = errors.New("no quote source configured")

// RoutedQuotes sends crypto symbols (and gold, via its tokenised proxy) to
// Crypto and everything else to Default.
type RoutedQuotes struct {
	Crypto  QuoteSource
	Default QuoteSource
}

func (r RoutedQuotes) Quote(ctx context.Context, sym string) (market.Quote, error) {
	if r.Crypto != nil {
		switch {
		case symbol.IsGold(sym):
			return r.Crypto.Quote(ctx, goldProxy)
		case symbol.IsCrypto(sym):
			return r.Crypto.Quote(ctx, sym)
		}
	}
	if r.Default == nil {
		return market.Quote{}, errNoQuoteSource
	}
	return r.Default.Quote(ctx, sym)
}
