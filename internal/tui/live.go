package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/san-kum/cropsim/internal/dynamo"
)

const (
	barWidth    = 40
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// Indexer resolves state variable names. *sim.System satisfies it.
type Indexer interface {
	StateNames() []string
	NumTimes() int
}

// LiveRenderer redraws a bar per state variable while a run progresses. It
// is a dynamo.Observer and draws at most frameRate frames per second.
type LiveRenderer struct {
	out       io.Writer
	names     []string
	total     int
	frameRate int
	lastFrame time.Time
	peak      []float64
	frames    int
}

func NewLiveRenderer(out io.Writer, sys Indexer, frameRate int) *LiveRenderer {
	names := sys.StateNames()
	return &LiveRenderer{
		out:       out,
		names:     names,
		total:     sys.NumTimes(),
		frameRate: max(frameRate, 1),
		peak:      make([]float64, len(names)),
	}
}

func (r *LiveRenderer) OnStep(x dynamo.State, t float64) {
	for i, v := range x {
		if i < len(r.peak) {
			r.peak[i] = math.Max(r.peak[i], math.Abs(v))
		}
	}
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	r.render(x, t)
}

// Frames reports how many frames have been drawn.
func (r *LiveRenderer) Frames() int { return r.frames }

func (r *LiveRenderer) render(x dynamo.State, t float64) {
	r.frames++
	var b strings.Builder
	b.WriteString(clearScreen)

	last := max(r.total-1, 1)
	filled := min(int(t/float64(last)*barWidth), barWidth)
	b.WriteString(cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled)))
	b.WriteString(dim.Render(fmt.Sprintf("  %.0f/%d", t, last)) + "\n\n")

	width := 0
	for _, n := range r.names {
		width = max(width, len(n))
	}
	for i, name := range r.names {
		if i >= len(x) {
			break
		}
		n := 0
		if r.peak[i] > 0 {
			n = int(math.Abs(x[i]) / r.peak[i] * barWidth)
		}
		style := green
		if x[i] < 0 {
			style = red
		}
		b.WriteString(fmt.Sprintf("%-*s ", width, name))
		b.WriteString(style.Render(strings.Repeat("█", n)) + dimmer.Render(strings.Repeat("·", barWidth-n)))
		b.WriteString(white.Render(fmt.Sprintf(" %12.4f", x[i])) + "\n")
	}
	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
