package sim

import (
	"log/slog"
	"slices"
	"time"

	"github.com/san-kum/cropsim/internal/dynamo"
)

// Reserved and required parameter names.
const (
	ParamTimestep = "timestep"
	ParamDoy      = "doy"
	ParamHour     = "hour"
	ParamDoyDbl   = "doy_dbl"
)

// Definition is everything needed to build a System.
type Definition struct {
	InitialState map[string]float64
	Invariant    map[string]float64
	Varying      map[string][]float64
	SteadyState  []string
	Derivative   []string
	Verbose      bool
}

type varyingBinding struct {
	slot   int
	series []float64
}

// System is a validated module graph bound to its own parameter store. It is
// the derivative operator an outer integrator steps.
type System struct {
	store *dynamo.Store

	timestepSlot int
	stateNames   []string
	stateSlots   []int
	steadySlots  []int
	varying      []varyingBinding
	ntimes       int

	steady []dynamo.Module
	deriv  []dynamo.Module

	initial     dynamo.State
	outputNames []string
	outputSlots []int

	logger *slog.Logger
}

var _ dynamo.System = (*System)(nil)

func (s *System) StateDim() int { return len(s.stateSlots) }

// StateNames returns the state variables in state vector order.
func (s *System) StateNames() []string { return slices.Clone(s.stateNames) }

func (s *System) StateIndex(name string) (int, bool) {
	i := slices.Index(s.stateNames, name)
	return i, i >= 0
}

// InitialState returns the initial state vector in state vector order.
func (s *System) InitialState() dynamo.State { return s.initial.Clone() }

// NumTimes is the length of the time-varying series.
func (s *System) NumTimes() int { return s.ntimes }

func (s *System) Timestep() float64 { return s.store.ValueAt(s.timestepSlot) }

// SteadyStateModules and DerivativeModules return the module names in run order.
func (s *System) SteadyStateModules() []string { return moduleNames(s.steady) }
func (s *System) DerivativeModules() []string  { return moduleNames(s.deriv) }

// Modules returns every module instance, steady state modules first.
func (s *System) Modules() []dynamo.Module {
	out := make([]dynamo.Module, 0, len(s.steady)+len(s.deriv))
	out = append(out, s.steady...)
	return append(out, s.deriv...)
}

func moduleNames(ms []dynamo.Module) []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name()
	}
	return names
}

// Param returns the current value of a parameter.
func (s *System) Param(name string) (float64, bool) {
	return s.store.Get(name)
}

func (s *System) SetParam(name string, value float64) error {
	return s.store.Set(name, value)
}

// Reset puts the varying parameters back to index 0, restores the initial
// state and recomputes the steady state parameters.
func (s *System) Reset() error {
	if err := s.UpdateVaryingIndex(0); err != nil {
		return err
	}
	s.updateState(s.initial)
	return s.runSteady()
}

// SpeedTest evaluates the system n times and reports the elapsed time.
func (s *System) SpeedTest(n int, x dynamo.State, t float64) (time.Duration, error) {
	dxdt := make(dynamo.State, len(x))
	start := time.Now()
	for i := 0; i < n; i++ {
		if err := s.DeriveInto(dxdt, x, t); err != nil {
			return time.Since(start), err
		}
	}
	return time.Since(start), nil
}
