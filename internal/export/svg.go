// Package export renders stored run columns as standalone SVG charts.
package export

import (
	"fmt"
	"html"
	"io"
	"math"
	"strings"

	"github.com/san-kum/cropsim/internal/dynamo"
)

var palette = []string{"#00ff88", "#00ccff", "#ffcc00", "#ff66cc", "#ff4444", "#aa88ff"}

const margin = 40.0

// ResultToSVG draws the named columns of result as lines against the time
// index, sharing one y axis. Unknown names are an error.
func ResultToSVG(w io.Writer, result *dynamo.Result, names []string, width, height int) error {
	if len(result.Times) < 2 {
		return fmt.Errorf("svg: need at least two time points, got %d", len(result.Times))
	}
	if len(names) == 0 {
		return fmt.Errorf("svg: no columns to draw")
	}

	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, name := range names {
		col := result.Column(name)
		if col == nil {
			return fmt.Errorf("svg: unknown column %q", name)
		}
		for _, v := range col {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
	}
	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.05
	maxY += rangeY * 0.05
	rangeY = maxY - minY

	minX, maxX := result.Times[0], result.Times[len(result.Times)-1]
	rangeX := maxX - minX
	if rangeX == 0 {
		rangeX = 1
	}

	plotW := float64(width) - 2*margin
	plotH := float64(height) - 2*margin
	px := func(t float64) float64 { return margin + (t-minX)/rangeX*plotW }
	py := func(v float64) float64 { return margin + plotH - (v-minY)/rangeY*plotH }

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g stroke="#444466" stroke-width="1">
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
</g>
<g fill="#888899" font-family="monospace" font-size="11">
<text x="%.1f" y="%.1f">%s</text>
<text x="%.1f" y="%.1f">%s</text>
<text x="%.1f" y="%.1f" text-anchor="end">%s</text>
</g>
`,
		width, height, width, height,
		margin, margin, margin, margin+plotH,
		margin, margin+plotH, margin+plotW, margin+plotH,
		2.0, margin-6, label(maxY),
		2.0, margin+plotH, label(minY),
		margin+plotW, margin+plotH+16, label(maxX),
	))

	for i, name := range names {
		color := palette[i%len(palette)]
		col := result.Column(name)
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color))
		for j, v := range col {
			if j == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", px(result.Times[j]), py(v)))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", px(result.Times[j]), py(v)))
			}
		}
		sb.WriteString("\"/>\n")
		sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" fill="%s" font-family="monospace" font-size="11">%s</text>
`, margin+8, margin+14*float64(i+1), color, html.EscapeString(name)))
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func label(v float64) string {
	return fmt.Sprintf("%.4g", v)
}
