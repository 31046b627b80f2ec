package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// System is the derivative operator an outer integrator steps. Time is a
// (possibly fractional) index into the time-varying series and the returned
// derivative is already expressed per index step.
type System interface {
	Derive(x State, t float64) (State, error)
	StateDim() int
}

type Integrator interface {
	Step(sys System, x State, t, dt float64) (State, error)
}

type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, t float64)
}

type Config struct {
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{ValidateState: true}
}

// Result holds every changing parameter of a run, one value per recorded
// time index. Names lists the columns in a stable order.
type Result struct {
	Names      []string
	Columns    map[string][]float64
	Times      []float64
	Metrics    map[string]float64
	StepsTaken int
	Errors     []error
}

// Column returns the series for name, or nil when it was not recorded.
func (r *Result) Column(name string) []float64 {
	if r == nil || r.Columns == nil {
		return nil
	}
	return r.Columns[name]
}

// Final returns the last recorded value of name.
func (r *Result) Final(name string) (float64, bool) {
	col := r.Column(name)
	if len(col) == 0 {
		return 0, false
	}
	return col[len(col)-1], true
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
