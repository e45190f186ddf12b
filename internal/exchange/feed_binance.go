// Package exchange hosts direct venue connections used as live quote sources.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Omsherani/stock-market/internal/market"
	"github.com/Omsherani/stock-market/internal/stats"
	"github.com/Omsherani/stock-market/internal/symbol"
)

const defaultBinanceURL = "wss://stream.binance.com:9443"

// ErrStreamClosed is returned by Quote after Close.
var ErrStreamClosed = errors.New("binance stream closed")

type binanceTrade struct {
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// BinanceStream keeps the latest trade price of one pair from the public trade stream.
// Asking for a different symbol re-targets the stream; until the first trade of
// the new pair arrives Quote reports no update.
type BinanceStream struct {
	baseURL string
	log     zerolog.Logger

	mu     sync.Mutex
	pair   string
	price  float64
	cancel context.CancelFunc
	closed bool
}

// StreamOption configures BinanceStream construction parameters.
type StreamOption func(*BinanceStream)

// WithStreamURL overrides the websocket root (wss://host:port).
func WithStreamURL(u string) StreamOption {
	return func(s *BinanceStream) {
		if u != "" {
			s.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// NewBinanceStream constructs an idle stream; nothing connects until the first Quote.
func NewBinanceStream(log zerolog.Logger, opts ...StreamOption) *BinanceStream {
	s := &BinanceStream{baseURL: defaultBinanceURL, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote returns the latest trade price for sym.
func (s *BinanceStream) Quote(ctx context.Context, sym string) (market.Quote, error) {
	if err := ctx.Err(); err != nil {
		return market.Quote{}, err
	}
	pair := symbol.BinancePair(sym)
	if pair == "" {
		return market.Quote{}, fmt.Errorf("binance: empty symbol")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return market.Quote{}, ErrStreamClosed
	}
	if pair != s.pair {
		s.retargetLocked(pair)
		return market.Quote{}, nil
	}
	if !stats.ValidPrice(s.price) {
		return market.Quote{}, nil
	}
	return market.Quote{Price: s.price, OK: true}, nil
}

// Close stops the stream. It is safe to call more than once.
func (s *BinanceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.closed = true
	return nil
}

func (s *BinanceStream) retargetLocked(pair string) {
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.pair = pair
	s.price = 0
	go s.run(ctx, pair)
}

func (s *BinanceStream) record(pair string, trade binanceTrade) {
	px, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil || !stats.ValidPrice(px) {
		s.log.Warn().Str("pair", pair).Str("price", trade.Price).Msg("invalid price from binance")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair != pair {
		return
	}
	s.price = px
}

func (s *BinanceStream) run(ctx context.Context, pair string) {
	url := fmt.Sprintf("%s/ws/%s@trade", s.baseURL, strings.ToLower(pair))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		err := s.consume(ctx, url, pair)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Str("pair", pair).Msg("binance stream disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
	}
}

func (s *BinanceStream) consume(ctx context.Context, url, pair string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info().Str("pair", pair).Msg("connected binance trade stream")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				// unblock ReadMessage
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var trade binanceTrade
		if err := json.Unmarshal(message, &trade); err != nil {
			s.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		if trade.Symbol != "" && !strings.EqualFold(trade.Symbol, pair) {
			continue
		}
		s.record(pair, trade)
	}
}
