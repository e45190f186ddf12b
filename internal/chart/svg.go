package chart

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
)

const (
	svgPadLeft   = 60
	svgPadRight  = 20
	svgPadTop    = 40
	svgPadBottom = 30
)

// RenderSVG draws the model as a standalone SVG document. Gaps split a series
// into separate polylines; dotted series are dashed; marker series get circles.
func RenderSVG(m Model, w, h int) []byte {
	if w <= 0 {
		w = 900
	}
	if h <= 0 {
		h = 500
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "<svg xmlns='http://www.w3.org/2000/svg' width='%d' height='%d' viewBox='0 0 %d %d'>", w, h, w, h)
	b.WriteString("<rect width='100%' height='100%' fill='#111827'/>")
	fmt.Fprintf(&b, "<text x='%d' y='24' fill='#f3f4f6' font-family='Inter, sans-serif' font-size='18' text-anchor='middle'>%s</text>",
		w/2, html.EscapeString(m.Title))

	minX, maxX, minY, maxY, ok := m.bounds()
	if !ok {
		b.WriteString("</svg>")
		return b.Bytes()
	}
	plotW := float64(max(w-svgPadLeft-svgPadRight, 1))
	plotH := float64(max(h-svgPadTop-svgPadBottom, 1))
	spanX := maxX.Sub(minX).Seconds()
	spanY := maxY - minY
	project := func(p Point) (float64, float64) {
		x := 0.0
		if spanX > 0 {
			x = p.X.Sub(minX).Seconds() / spanX * plotW
		}
		y := plotH / 2
		if spanY > 0 {
			y = plotH - (p.Y-minY)/spanY*plotH
		}
		return x, y
	}

	fmt.Fprintf(&b, "<g transform='translate(%d,%d)'>", svgPadLeft, svgPadTop)
	fmt.Fprintf(&b, "<line x1='0' y1='0' x2='0' y2='%.0f' stroke='#374151'/>", plotH)
	fmt.Fprintf(&b, "<line x1='0' y1='%.0f' x2='%.0f' y2='%.0f' stroke='#374151'/>", plotH, plotW, plotH)
	fmt.Fprintf(&b, "<text x='-8' y='10' fill='#9ca3af' font-size='11' text-anchor='end'>%.2f</text>", maxY)
	fmt.Fprintf(&b, "<text x='-8' y='%.0f' fill='#9ca3af' font-size='11' text-anchor='end'>%.2f</text>", plotH, minY)

	for _, s := range m.Series {
		dash := ""
		if s.Style.Dash == DashDot {
			dash = " stroke-dasharray='2,4'"
		}
		for _, run := range runs(s.Points) {
			b.WriteString("<polyline fill='none'")
			fmt.Fprintf(&b, " stroke='%s' stroke-width='%.1f' stroke-opacity='%.2f'%s", s.Style.Color, s.Style.Width, s.Style.Opacity, dash)
			fmt.Fprintf(&b, " data-series='%s' points='", s.Kind)
			for i, p := range run {
				x, y := project(p)
				if i > 0 {
					b.WriteByte(' ')
				}
				fmt.Fprintf(&b, "%.2f,%.2f", x, y)
			}
			b.WriteString("'/>")
		}
		if s.Style.Markers {
			for _, p := range s.Points {
				if !p.Valid {
					continue
				}
				x, y := project(p)
				fmt.Fprintf(&b, "<circle cx='%.2f' cy='%.2f' r='3' fill='%s'/>", x, y, s.Style.Color)
			}
		}
	}
	b.WriteString("</g>")

	lx := svgPadLeft
	for _, s := range m.Series {
		if !s.ShowLegend {
			continue
		}
		fmt.Fprintf(&b, "<rect x='%d' y='%d' width='10' height='3' fill='%s'/>", lx, h-12, s.Style.Color)
		fmt.Fprintf(&b, "<text x='%d' y='%d' fill='#f3f4f6' font-size='11'>%s</text>", lx+14, h-8, html.EscapeString(s.Name))
		lx += 110
	}
	b.WriteString("</svg>")
	return b.Bytes()
}

// runs splits points into contiguous valid stretches.
func runs(points []Point) [][]Point {
	var out [][]Point
	var cur []Point
	for _, p := range points {
		if !p.Valid {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// WriteFile renders the model to path, creating missing parent directories.
func WriteFile(path string, m Model, w, h int) error {
	if m.Empty() {
		return fmt.Errorf("write %s: nothing to draw", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := os.WriteFile(path, RenderSVG(m, w, h), 0o644); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}
