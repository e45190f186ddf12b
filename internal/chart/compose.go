// Package chart turns fetched series into a renderable chart model and renders it.
package chart

import (
	"time"

	"github.com/Omsherani/stock-market/internal/market"
)

// SeriesKind identifies the role of a series in the model.
type SeriesKind string

const (
	KindClose      SeriesKind = "close"
	KindSMA20      SeriesKind = "sma20"
	KindSMA50      SeriesKind = "sma50"
	KindBridge     SeriesKind = "bridge"
	KindPrediction SeriesKind = "prediction"
)

// Dash describes the stroke pattern.
type Dash string

const (
	DashSolid Dash = "solid"
	DashDot   Dash = "dot"
)

// Style is the visual treatment of a series.
type Style struct {
	Color   string
	Width   float64
	Opacity float64
	Dash    Dash
	Markers bool
}

// Point is one sample on the shared date axis. Valid is false for gaps
// (an indicator the service could not compute for that day).
type Point struct {
	X     time.Time
	Y     float64
	Valid bool
}

// Series is one named line in the chart.
type Series struct {
	Name       string
	Kind       SeriesKind
	Points     []Point
	Style      Style
	ShowLegend bool
	Hover      bool
}

// Model is the complete chart: a title plus series in draw order.
type Model struct {
	Title  string
	Series []Series
}

// Empty reports whether there is nothing to draw.
func (m Model) Empty() bool { return len(m.Series) == 0 }

// Find returns the first series of the given kind.
func (m Model) Find(kind SeriesKind) (Series, bool) {
	for _, s := range m.Series {
		if s.Kind == kind {
			return s, true
		}
	}
	return Series{}, false
}

var (
	closeStyle      = Style{Color: "#3b82f6", Width: 2, Opacity: 1, Dash: DashSolid}
	sma20Style      = Style{Color: "#10b981", Width: 1.5, Opacity: 0.7, Dash: DashSolid}
	sma50Style      = Style{Color: "#f59e0b", Width: 1.5, Opacity: 0.7, Dash: DashSolid}
	bridgeStyle     = Style{Color: "#ef4444", Width: 2, Opacity: 1, Dash: DashDot}
	predictionStyle = Style{Color: "#ef4444", Width: 2, Opacity: 1, Dash: DashDot, Markers: true}
)

// Title is the symbol alone, or "SYMBOL - Company" when a distinct company name is known.
func Title(symbol, company string) string {
	if company != "" && company != symbol {
		return symbol + " - " + company
	}
	return symbol
}

// Compose builds the chart model. Bars and predictions are only read.
// An empty bar slice yields an empty model.
func Compose(symbol, company string, bars []market.Bar, preds []market.PredictionPoint) Model {
	if len(bars) == 0 {
		return Model{}
	}
	closes := make([]Point, len(bars))
	sma20 := make([]Point, len(bars))
	sma50 := make([]Point, len(bars))
	for i, b := range bars {
		closes[i] = Point{X: b.Date, Y: b.Close, Valid: true}
		sma20[i] = optional(b.Date, b.SMA20)
		sma50[i] = optional(b.Date, b.SMA50)
	}

	m := Model{
		Title: Title(symbol, company),
		Series: []Series{
			{Name: "Close Price", Kind: KindClose, Points: closes, Style: closeStyle, ShowLegend: true, Hover: true},
			{Name: "SMA 20", Kind: KindSMA20, Points: sma20, Style: sma20Style, ShowLegend: true, Hover: true},
			{Name: "SMA 50", Kind: KindSMA50, Points: sma50, Style: sma50Style, ShowLegend: true, Hover: true},
		},
	}
	if len(preds) == 0 {
		return m
	}

	last := bars[len(bars)-1]
	first := preds[0]
	bridge := []Point{
		{X: last.Date, Y: last.Close, Valid: true},
		{X: first.Date, Y: first.Price, Valid: true},
	}
	forecast := make([]Point, len(preds))
	for i, p := range preds {
		forecast[i] = Point{X: p.Date, Y: p.Price, Valid: true}
	}
	m.Series = append(m.Series,
		Series{Name: "", Kind: KindBridge, Points: bridge, Style: bridgeStyle},
		Series{Name: "Prediction", Kind: KindPrediction, Points: forecast, Style: predictionStyle, ShowLegend: true, Hover: true},
	)
	return m
}

func optional(x time.Time, v *float64) Point {
	if v == nil {
		return Point{X: x}
	}
	return Point{X: x, Y: *v, Valid: true}
}

// bounds returns the extent of all valid points.
func (m Model) bounds() (minX, maxX time.Time, minY, maxY float64, ok bool) {
	for _, s := range m.Series {
		for _, p := range s.Points {
			if !p.Valid {
				continue
			}
			if !ok {
				minX, maxX, minY, maxY, ok = p.X, p.X, p.Y, p.Y, true
				continue
			}
			if p.X.Before(minX) {
				minX = p.X
			}
			if p.X.After(maxX) {
				maxX = p.X
			}
			if p.Y < minY {
				minY = p.Y
			}
			if p.Y > maxY {
				maxY = p.Y
			}
		}
	}
	return
}
