package chart

import (
	"encoding/json"
	"net/url"

	"github.com/Omsherani/stock-market/internal/symbol"
)

// WidgetEmbedScript is the vendor script that consumes WidgetConfig.
const WidgetEmbedScript = "https://s3.tradingview.com/external-embedding/embed-widget-advanced-chart.js"

const widgetChartPage = "https://www.tradingview.com/chart/"

// WidgetOptions are the display settings shared by every widget instance.
type WidgetOptions struct {
	Interval string
	Timezone string
	Theme    string
	Locale   string
}

// DefaultWidgetOptions matches the dashboard's dark theme.
func DefaultWidgetOptions() WidgetOptions {
	return WidgetOptions{Interval: "D", Timezone: "Etc/UTC", Theme: "dark", Locale: "en"}
}

// WidgetConfig is the embed configuration for the advanced chart widget.
// The widget has no incremental update contract: build a new config per symbol.
type WidgetConfig struct {
	Autosize          bool   `json:"autosize"`
	Symbol            string `json:"symbol"`
	Interval          string `json:"interval"`
	Timezone          string `json:"timezone"`
	Theme             string `json:"theme"`
	Style             string `json:"style"`
	Locale            string `json:"locale"`
	EnablePublishing  bool   `json:"enable_publishing"`
	AllowSymbolChange bool   `json:"allow_symbol_change"`
	Calendar          bool   `json:"calendar"`
	SupportHost       string `json:"support_host"`
}

// NewWidgetConfig resolves the vendor symbol and fills in defaults for empty options.
func NewWidgetConfig(sym string, opts WidgetOptions) WidgetConfig {
	def := DefaultWidgetOptions()
	if opts.Interval == "" {
		opts.Interval = def.Interval
	}
	if opts.Timezone == "" {
		opts.Timezone = def.Timezone
	}
	if opts.Theme == "" {
		opts.Theme = def.Theme
	}
	if opts.Locale == "" {
		opts.Locale = def.Locale
	}
	return WidgetConfig{
		Autosize:          true,
		Symbol:            symbol.ResolveVendorSymbol(sym),
		Interval:          opts.Interval,
		Timezone:          opts.Timezone,
		Theme:             opts.Theme,
		Style:             "1",
		Locale:            opts.Locale,
		AllowSymbolChange: true,
		SupportHost:       "https://www.tradingview.com",
	}
}

// JSON renders the config as the widget script body.
func (c WidgetConfig) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// URL is the vendor's standalone chart page for the configured symbol.
func (c WidgetConfig) URL() string {
	q := url.Values{}
	q.Set("symbol", c.Symbol)
	q.Set("interval", c.Interval)
	return widgetChartPage + "?" + q.Encode()
}
