// Package market defines the series and snapshots exchanged with the analytics service.
package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Omsherani/stock-market/internal/signal"
)

const dayLayout = "2006-01-02"

// ParseDate accepts the service's day format as well as full RFC3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dayLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse date %q", s)
}

// Bar is one historical sample with the indicators computed by the service.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	RSI    *float64
	SMA20  *float64
	SMA50  *float64
}

type wireBar struct {
	Date   string   `json:"Date"`
	Open   float64  `json:"Open"`
	High   float64  `json:"High"`
	Low    float64  `json:"Low"`
	Close  float64  `json:"Close"`
	Volume float64  `json:"Volume"`
	RSI    *float64 `json:"RSI,omitempty"`
	SMA20  *float64 `json:"SMA_20,omitempty"`
	SMA50  *float64 `json:"SMA_50,omitempty"`
}

// UnmarshalJSON decodes the service's capitalised bar format.
func (b *Bar) UnmarshalJSON(data []byte) error {
	var w wireBar
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	date, err := ParseDate(w.Date)
	if err != nil {
		return err
	}
	*b = Bar{
		Date: date, Open: w.Open, High: w.High, Low: w.Low, Close: w.Close, Volume: w.Volume,
		RSI: w.RSI, SMA20: w.SMA20, SMA50: w.SMA50,
	}
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (b Bar) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBar{
		Date: b.Date.Format(dayLayout), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
		Volume: b.Volume, RSI: b.RSI, SMA20: b.SMA20, SMA50: b.SMA50,
	})
}

// StatsSnapshot is the rolling live state of the active symbol.
type StatsSnapshot struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// PredictionPoint is one forecast sample.
type PredictionPoint struct {
	Date  time.Time
	Price float64
}

type wirePrediction struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// UnmarshalJSON decodes {"date":"2024-05-01","price":101.2}.
func (p *PredictionPoint) UnmarshalJSON(data []byte) error {
	var w wirePrediction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	date, err := ParseDate(w.Date)
	if err != nil {
		return err
	}
	*p = PredictionPoint{Date: date, Price: w.Price}
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (p PredictionPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(wirePrediction{Date: p.Date.Format(dayLayout), Price: p.Price})
}

// Quote is a single live price sample. OK is false when the source had nothing new.
type Quote struct {
	Price float64
	OK    bool
}

// StockPayload is the response of the history endpoint.
type StockPayload struct {
	Symbol     string         `json:"symbol"`
	Company    string         `json:"company,omitempty"`
	Bars       []Bar          `json:"data"`
	Stats      *StatsSnapshot `json:"stats,omitempty"`
	Signal     *signal.Signal `json:"signals,omitempty"`
	DataSource string         `json:"data_source,omitempty"`
	Warning    string         `json:"warning,omitempty"`
}

// LastBar returns the most recent bar, if any.
func (p *StockPayload) LastBar() (Bar, bool) {
	if p == nil || len(p.Bars) == 0 {
		return Bar{}, false
	}
	return p.Bars[len(p.Bars)-1], true
}

// ModelKind selects the forecasting model on the service.
type ModelKind string

const (
	ModelLinear ModelKind = "linear"
	ModelLSTM   ModelKind = "lstm"
)

// ParseModelKind validates a user supplied model name.
func ParseModelKind(s string) (ModelKind, error) {
	switch ModelKind(strings.ToLower(strings.TrimSpace(s))) {
	case ModelLinear:
		return ModelLinear, nil
	case ModelLSTM:
		return ModelLSTM, nil
	default:
		return "", fmt.Errorf("unknown model %q (want linear or lstm)", s)
	}
}

// Float returns a pointer to v; handy for optional indicator fields.
func Float(v float64) *float64 { return &v }
