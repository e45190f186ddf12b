package chart

import "strings"

// Glyphs used by Plot, keyed by series kind.
var Glyphs = map[SeriesKind]rune{
	KindClose:      '*',
	KindSMA20:      '+',
	KindSMA50:      '.',
	KindBridge:     ':',
	KindPrediction: 'o',
}

// Plot rasterises the model onto a w×h character grid for terminal display.
// Moving averages are drawn first so price and forecast stay on top.
func Plot(m Model, w, h int) []string {
	if w < 2 || h < 2 {
		return nil
	}
	minX, maxX, minY, maxY, ok := m.bounds()
	if !ok {
		return nil
	}
	grid := make([][]rune, h)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", w))
	}
	spanX := maxX.Sub(minX).Seconds()
	spanY := maxY - minY
	cell := func(p Point) (int, int) {
		col := 0
		if spanX > 0 {
			col = int(p.X.Sub(minX).Seconds() / spanX * float64(w-1))
		}
		row := h / 2
		if spanY > 0 {
			row = h - 1 - int((p.Y-minY)/spanY*float64(h-1))
		}
		return col, row
	}
	for _, s := range drawOrder(m.Series) {
		glyph, ok := Glyphs[s.Kind]
		if !ok {
			glyph = '#'
		}
		for _, run := range runs(s.Points) {
			for i, p := range run {
				col, row := cell(p)
				grid[row][col] = glyph
				if i == 0 {
					continue
				}
				// fill the vertical jump so steep moves stay connected
				pc, pr := cell(run[i-1])
				if pc == col || abs(pr-row) < 2 {
					continue
				}
				step := 1
				if row < pr {
					step = -1
				}
				for r := pr + step; r != row; r += step {
					grid[r][col] = glyph
				}
			}
		}
	}
	out := make([]string, h)
	for i, r := range grid {
		out[i] = string(r)
	}
	return out
}

func drawOrder(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if s.Kind == KindSMA20 || s.Kind == KindSMA50 {
			out = append(out, s)
		}
	}
	for _, s := range series {
		if s.Kind != KindSMA20 && s.Kind != KindSMA50 {
			out = append(out, s)
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
