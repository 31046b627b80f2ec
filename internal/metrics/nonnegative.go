package metrics

import (
	"github.com/san-kum/cropsim/internal/dynamo"
)

// NonNegative is the fraction of observed states in which every tracked
// variable is zero or positive. Substrate pools and tissue masses should
// never go negative, so anything below 1 points at a failing integration.
type NonNegative struct {
	name       string
	indices    []int
	violations int
	samples    int
}

func NewNonNegative(idx Indexer, variables ...string) (*NonNegative, error) {
	n := &NonNegative{name: "nonnegative"}
	for _, v := range variables {
		i, err := resolve(idx, v)
		if err != nil {
			return nil, err
		}
		n.indices = append(n.indices, i)
	}
	return n, nil
}

func (n *NonNegative) Name() string {
	return n.name
}

func (n *NonNegative) Observe(x dynamo.State, t float64) {
	n.samples++
	for _, i := range n.indices {
		if x[i] < 0 {
			n.violations++
			break
		}
	}
}

func (n *NonNegative) Value() float64 {
	if n.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(n.violations)/float64(n.samples)
}

func (n *NonNegative) Reset() {
	n.violations = 0
	n.samples = 0
}
