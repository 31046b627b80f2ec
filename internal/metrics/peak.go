package metrics

import (
	"math"

	"github.com/san-kum/cropsim/internal/dynamo"
)

type Peak struct {
	name    string
	index   int
	peak    float64
	samples int
}

func NewPeak(idx Indexer, variable string) (*Peak, error) {
	i, err := resolve(idx, variable)
	if err != nil {
		return nil, err
	}
	return &Peak{name: "peak_" + variable, index: i, peak: math.Inf(-1)}, nil
}

func (p *Peak) Name() string { return p.name }

func (p *Peak) Observe(x dynamo.State, t float64) {
	p.peak = math.Max(p.peak, x[p.index])
	p.samples++
}

func (p *Peak) Value() float64 {
	if p.samples == 0 {
		return 0
	}
	return p.peak
}

func (p *Peak) Reset() {
	p.peak = math.Inf(-1)
	p.samples = 0
}

// Final keeps the last observed value.
type Final struct {
	name  string
	index int
	last  float64
}

func NewFinal(idx Indexer, variable string) (*Final, error) {
	i, err := resolve(idx, variable)
	if err != nil {
		return nil, err
	}
	return &Final{name: "final_" + variable, index: i}, nil
}

func (f *Final) Name() string                      { return f.name }
func (f *Final) Observe(x dynamo.State, t float64) { f.last = x[f.index] }
func (f *Final) Value() float64                    { return f.last }
func (f *Final) Reset()                            { f.last = 0 }
