// Package stats folds live quotes into the rolling OHLC snapshot and derives
// the change figures shown next to the live price.
package stats

import (
	"math"

	"github.com/Omsherani/stock-market/internal/market"
)

// Seed starts a snapshot from the most recent historical bar.
func Seed(latest market.Bar) market.StatsSnapshot {
	return market.StatsSnapshot{
		Open:   latest.Open,
		High:   latest.High,
		Low:    latest.Low,
		Close:  latest.Close,
		Volume: latest.Volume,
	}
}

// ValidPrice rejects prices that must never reach Merge.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// Merge returns a new snapshot with the quote applied. prev is never modified.
// A missing previous low is treated as the quote price so the floor never drops to zero.
func Merge(prev *market.StatsSnapshot, q market.Quote) market.StatsSnapshot {
	price := q.Price
	if prev == nil {
		return market.StatsSnapshot{Open: price, High: price, Low: price, Close: price}
	}
	next := *prev
	next.Close = price
	next.High = math.Max(prev.High, price)
	low := prev.Low
	if low <= 0 {
		low = price
	}
	next.Low = math.Min(low, price)
	return next
}

// LiveFigures are display-only values derived from the snapshot and the history.
type LiveFigures struct {
	Price         float64
	Change        float64
	ChangePercent float64
}

// Live computes the live price and its change against the last historical close.
// Without stats it falls back to the last two bars; without bars everything is zero.
func Live(snap *market.StatsSnapshot, bars []market.Bar) LiveFigures {
	if len(bars) == 0 {
		if snap != nil {
			return LiveFigures{Price: snap.Close}
		}
		return LiveFigures{}
	}
	latest := bars[len(bars)-1]
	if snap != nil {
		change := snap.Close - latest.Close
		return LiveFigures{Price: snap.Close, Change: change, ChangePercent: percent(change, latest.Close)}
	}
	if len(bars) < 2 {
		return LiveFigures{Price: latest.Close}
	}
	prev := bars[len(bars)-2]
	change := latest.Close - prev.Close
	return LiveFigures{Price: latest.Close, Change: change, ChangePercent: percent(change, prev.Close)}
}

func percent(change, base float64) float64 {
	if base == 0 {
		return 0
	}
	return change / base * 100
}
