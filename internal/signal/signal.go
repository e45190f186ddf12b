// Package signal carries the technical-analysis verdict produced by the analytics service.
// The payload is displayed as-is; nothing here recomputes it.
package signal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Recommendation is the consensus verdict across all indicators.
type Recommendation string

const (
	StrongBuy  Recommendation = "STRONG_BUY"
	Buy        Recommendation = "BUY"
	Neutral    Recommendation = "NEUTRAL"
	Sell       Recommendation = "SELL"
	StrongSell Recommendation = "STRONG_SELL"
)

// Bias maps a verdict onto +1 (buy side), -1 (sell side) or 0.
// Unknown verdicts are matched by substring, as the service sometimes
// emits variants such as "WEAK_BUY".
func (r Recommendation) Bias() int {
	s := strings.ToUpper(string(r))
	switch {
	case strings.Contains(s, "BUY"):
		return 1
	case strings.Contains(s, "SELL"):
		return -1
	default:
		return 0
	}
}

// Reading holds an indicator value that the service may send as a string or a number.
type Reading string

// UnmarshalJSON accepts "62.1", 62.1 and null.
func (r *Reading) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Reading(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Reading(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// Indicator is one row of the indicator breakdown.
type Indicator struct {
	Name      string  `json:"name"`
	Condition string  `json:"condition"`
	Value     Reading `json:"value"`
	Signal    string  `json:"signal"`
}

// Signal expresses the trading bias and trade setup for the active symbol.
type Signal struct {
	Signal     Recommendation `json:"signal"`
	Confidence string         `json:"confidence"`
	Score      float64        `json:"score"` // consensus score, range -8..+8
	EntryPrice float64        `json:"entry_price"`
	TakeProfit float64        `json:"take_profit"`
	StopLoss   float64        `json:"stop_loss"`
	Strategy   string         `json:"strategy,omitempty"`
	Analysis   []Indicator    `json:"analysis"`
}

// Valid reports whether the payload carries enough to render the signal card.
func (s *Signal) Valid() bool {
	return s != nil && s.Signal != ""
}

// Clone returns a deep copy so display layers can hold it without sharing the analysis slice.
func (s *Signal) Clone() *Signal {
	if s == nil {
		return nil
	}
	out := *s
	out.Analysis = append([]Indicator(nil), s.Analysis...)
	return &out
}
