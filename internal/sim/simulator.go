package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/cropsim/internal/dynamo"
)

// Simulator drives a System through every index of its time series with a
// fixed-step outer integrator.
type Simulator struct {
	sys        *System
	integrator dynamo.Integrator
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func New(sys *System, integrator dynamo.Integrator) *Simulator {
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) System() *System { return s.sys }

func (s *Simulator) Run(ctx context.Context, cfg dynamo.Config) (*dynamo.Result, error) {
	n := s.sys.NumTimes()
	if n < 1 {
		return nil, fmt.Errorf("system has no time points")
	}

	states := make([]dynamo.State, 0, n)
	times := make([]float64, 0, n)
	var runErrs []error

	for _, m := range s.metrics {
		m.Reset()
	}

	x := s.sys.InitialState()
	states = append(states, x.Clone())
	times = append(times, 0)

	for i := 0; i < n-1; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		t := float64(i)
		for _, m := range s.metrics {
			m.Observe(x, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, t)
		}

		newX, err := s.integrator.Step(s.sys, x, t, 1)
		if err != nil {
			return nil, &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: err}
		}

		if cfg.ValidateState && !newX.IsValid() {
			runErrs = append(runErrs, dynamo.SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"})
			break
		}

		x = newX
		states = append(states, x.Clone())
		times = append(times, t+1)
	}

	for _, m := range s.metrics {
		m.Observe(x, times[len(times)-1])
	}

	result, err := s.sys.Results(states, times)
	if err != nil {
		return nil, err
	}
	result.StepsTaken = len(states) - 1
	result.Errors = runErrs
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}
