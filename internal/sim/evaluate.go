package sim

import (
	"fmt"

	"github.com/san-kum/cropsim/internal/dynamo"
)

// Derive evaluates the module graph for state x at time index t and returns
// the derivative of every state variable, scaled by the timestep so that it
// is a change per index step.
func (s *System) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	dxdt := make(dynamo.State, len(s.stateSlots))
	if err := s.DeriveInto(dxdt, x, t); err != nil {
		return nil, err
	}
	return dxdt, nil
}

// DeriveInto is Derive writing into a caller owned vector.
func (s *System) DeriveInto(dxdt, x dynamo.State, t float64) error {
	if len(x) != len(s.stateSlots) || len(dxdt) != len(s.stateSlots) {
		return fmt.Errorf("%w: got state %d and derivative %d, want %d",
			dynamo.ErrDimensionMismatch, len(x), len(dxdt), len(s.stateSlots))
	}
	if err := s.UpdateVarying(t); err != nil {
		return err
	}
	s.updateState(x)
	if err := s.runSteady(); err != nil {
		return err
	}
	return s.runDerivative(dxdt)
}

func (s *System) updateState(x dynamo.State) {
	for i, slot := range s.stateSlots {
		s.store.SetValueAt(slot, x[i])
	}
}

// runSteady runs the steady state modules in order. Outputs are published to
// the store after every module so later modules see them.
func (s *System) runSteady() error {
	for _, slot := range s.steadySlots {
		s.store.SetScratchAt(slot, 0)
	}
	for _, m := range s.steady {
		if err := invoke(m); err != nil {
			return err
		}
		for _, slot := range s.steadySlots {
			s.store.SetValueAt(slot, s.store.ScratchAt(slot))
		}
	}
	return nil
}

func (s *System) runDerivative(dxdt dynamo.State) error {
	for _, slot := range s.stateSlots {
		s.store.SetScratchAt(slot, 0)
	}
	for _, m := range s.deriv {
		if err := invoke(m); err != nil {
			return err
		}
	}
	timestep := s.store.ValueAt(s.timestepSlot)
	for i, slot := range s.stateSlots {
		dxdt[i] = s.store.ScratchAt(slot) * timestep
	}
	return nil
}

// invoke runs one module, turning errors and panics into a *dynamo.ModuleError.
func invoke(m dynamo.Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &dynamo.ModuleError{Module: m.Name(), Kind: m.Kind(), Wrapped: fmt.Errorf("panic: %v", r)}
		}
	}()
	if runErr := m.Run(); runErr != nil {
		return &dynamo.ModuleError{Module: m.Name(), Kind: m.Kind(), Wrapped: runErr}
	}
	return nil
}
