// Package symbol normalises user-entered tickers and maps them onto the
// formats expected by the chart widget and the crypto quote stream.
package symbol

import "strings"

// GoldVendorSymbol is the single FX-style symbol every gold alias resolves to.
const GoldVendorSymbol = "OANDA:XAUUSD"

const (
	cryptoExchange   = "BINANCE"
	cryptoQuote      = "USDT"
	equitiesExchange = "NASDAQ"
)

var goldAliases = map[string]struct{}{
	"XAUUSD": {},
	"GC=F":   {},
	"GOLD":   {},
}

// Tickers the widget knows as Binance pairs.
var widgetCrypto = map[string]struct{}{
	"BTC": {}, "ETH": {}, "SOL": {}, "XRP": {}, "ADA": {}, "DOGE": {},
}

// Tickers the analytics service treats as crypto.
var knownCrypto = map[string]struct{}{
	"BTC": {}, "ETH": {}, "SOL": {}, "ADA": {}, "DOT": {}, "DOGE": {}, "MATIC": {},
	"LINK": {}, "UNI": {}, "AVAX": {}, "XRP": {}, "LTC": {}, "BCH": {}, "ATOM": {},
	"XLM": {}, "ALGO": {}, "VET": {}, "FIL": {}, "TRX": {}, "ETC": {}, "PAXG": {}, "XAUT": {},
}

// ResolveDisplay trims and upper-cases a ticker. Unknown tickers pass through;
// the history fetch is what rejects them.
func ResolveDisplay(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// IsGold reports whether the symbol is one of the gold aliases.
func IsGold(symbol string) bool {
	_, ok := goldAliases[ResolveDisplay(symbol)]
	return ok
}

// ResolveVendorSymbol maps a display symbol onto the chart widget's format.
// Every input yields some symbol; there is no error path.
func ResolveVendorSymbol(symbol string) string {
	sym := ResolveDisplay(symbol)
	if _, ok := goldAliases[sym]; ok {
		return GoldVendorSymbol
	}
	if _, ok := widgetCrypto[sym]; ok {
		return cryptoExchange + ":" + sym + cryptoQuote
	}
	if strings.Contains(sym, ":") {
		return sym
	}
	return equitiesExchange + ":" + sym
}

// ShouldPreferLiveChart recommends the live chart view for metals and
// USD-quoted instruments. It is a display hint only.
func ShouldPreferLiveChart(symbol string) bool {
	sym := ResolveDisplay(symbol)
	return IsGold(sym) || strings.Contains(sym, "USD")
}

// IsCrypto reports whether the service routes the symbol to a crypto data source.
func IsCrypto(symbol string) bool {
	base := strings.TrimSuffix(ResolveDisplay(symbol), "-USD")
	_, ok := knownCrypto[base]
	return ok
}

// BinancePair turns BTC, btc-usdt or ETH/USDT into the exchange pair (BTCUSDT).
func BinancePair(symbol string) string {
	pair := ResolveDisplay(symbol)
	pair = strings.NewReplacer("-", "", "/", "").Replace(pair)
	if pair == "" {
		return ""
	}
	if !strings.HasSuffix(pair, cryptoQuote) {
		pair = strings.TrimSuffix(pair, "USD") + cryptoQuote
	}
	return pair
}
