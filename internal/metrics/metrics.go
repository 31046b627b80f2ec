// Package metrics summarises named state variables over a run.
package metrics

import (
	"fmt"
	"strings"

	"github.com/san-kum/cropsim/internal/dynamo"
)

// Indexer resolves a state variable to its position in the state vector.
type Indexer interface {
	StateIndex(name string) (int, bool)
}

func resolve(idx Indexer, name string) (int, error) {
	i, ok := idx.StateIndex(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a state variable", dynamo.ErrUnknownParameter, name)
	}
	return i, nil
}

// Parse builds a metric from "kind:variable[,variable...]", for example
// "peak:Leaf" or "nonnegative:substrate_pool_leaf,substrate_pool_stem".
func Parse(spec string, idx Indexer) (dynamo.Metric, error) {
	kind, vars, ok := strings.Cut(spec, ":")
	if !ok || vars == "" {
		return nil, fmt.Errorf("metric %q: want kind:variable", spec)
	}
	names := strings.Split(vars, ",")
	switch kind {
	case "final":
		return NewFinal(idx, names[0])
	case "peak":
		return NewPeak(idx, names[0])
	case "mean":
		return NewMean(idx, names[0])
	case "change":
		return NewChange(idx, names[0])
	case "nonnegative":
		return NewNonNegative(idx, names...)
	}
	return nil, fmt.Errorf("metric %q: unknown kind %q", spec, kind)
}
