package metrics

import (
	"github.com/san-kum/cropsim/internal/dynamo"
)

type Mean struct {
	name    string
	index   int
	sum     float64
	samples int
}

func NewMean(idx Indexer, variable string) (*Mean, error) {
	i, err := resolve(idx, variable)
	if err != nil {
		return nil, err
	}
	return &Mean{name: "mean_" + variable, index: i}, nil
}

func (m *Mean) Name() string { return m.name }

func (m *Mean) Observe(x dynamo.State, t float64) {
	m.sum += x[m.index]
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() {
	m.sum = 0
	m.samples = 0
}

// Change is the difference between the last and first observed values.
type Change struct {
	name    string
	index   int
	initial float64
	current float64
	samples int
}

func NewChange(idx Indexer, variable string) (*Change, error) {
	i, err := resolve(idx, variable)
	if err != nil {
		return nil, err
	}
	return &Change{name: "change_" + variable, index: i}, nil
}

func (c *Change) Name() string { return c.name }

func (c *Change) Observe(x dynamo.State, t float64) {
	if c.samples == 0 {
		c.initial = x[c.index]
	}
	c.current = x[c.index]
	c.samples++
}

func (c *Change) Value() float64 {
	return c.current - c.initial
}

func (c *Change) Reset() {
	c.initial = 0
	c.current = 0
	c.samples = 0
}
