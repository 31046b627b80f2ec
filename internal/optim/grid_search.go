// Package optim sweeps scenario parameters over a grid and ranks the runs
// by one metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/cropsim/internal/experiment"
)

var ErrNoPoints = errors.New("optim: no grid point produced the metric")

// Point is one evaluated combination of parameter values. Err is set when
// the combination failed to build or run.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	maximize   bool
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("grid search: %d parameters but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("grid search: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Maximize ranks larger metric values first.
func (g *GridSearch) Maximize() *GridSearch {
	g.maximize = true
	return g
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search builds and runs one experiment per grid point, in row-major order
// over the parameters, and returns the best point together with every
// evaluated point. Failed points are recorded and skipped.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (Point, []Point, error) {
	all := make([]Point, 0, g.Size())
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, metricName, &all); err != nil {
		return Point{}, all, err
	}

	best := Point{Value: math.Inf(1)}
	if g.maximize {
		best.Value = math.Inf(-1)
	}
	found := false
	for _, p := range all {
		if p.Err != nil {
			continue
		}
		if (g.maximize && p.Value > best.Value) || (!g.maximize && p.Value < best.Value) {
			best = p
			found = true
		}
	}
	if !found {
		return Point{}, all, ErrNoPoints
	}
	return best, all, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
	all *[]Point,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		*all = append(*all, evaluate(ctx, maps.Clone(current), buildExperiment, metricName))
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[paramName] = val
		if err := g.searchRecursive(ctx, depth+1, current, buildExperiment, metricName, all); err != nil {
			return err
		}
	}
	delete(current, paramName)
	return nil
}

func evaluate(
	ctx context.Context,
	params map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
) Point {
	p := Point{Params: params}
	exp, err := buildExperiment(params)
	if err != nil {
		p.Err = err
		return p
	}
	result, err := exp.Run(ctx)
	if err != nil {
		p.Err = err
		return p
	}
	v, ok := result.Metrics[metricName]
	if !ok {
		p.Err = fmt.Errorf("metric %q was not computed", metricName)
		return p
	}
	p.Value = v
	return p
}

// ParseAxis reads "name=v1,v2,..." or "name=lo:hi:n", the latter giving n
// evenly spaced values from lo to hi inclusive.
func ParseAxis(s string) (string, []float64, error) {
	name, spec, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || spec == "" {
		return "", nil, fmt.Errorf("axis %q: want name=v1,v2 or name=lo:hi:n", s)
	}

	if parts := strings.Split(spec, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		hi, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		n, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err := errors.Join(err1, err2, err3); err != nil {
			return "", nil, fmt.Errorf("axis %q: %w", s, err)
		}
		if n < 1 {
			return "", nil, fmt.Errorf("axis %q: need at least one value", s)
		}
		if n == 1 {
			return name, []float64{lo}, nil
		}
		values := make([]float64, n)
		for i := range values {
			values[i] = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		return name, values, nil
	}

	fields := strings.Split(spec, ",")
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("axis %q: %w", s, err)
		}
		values[i] = v
	}
	return name, values, nil
}
