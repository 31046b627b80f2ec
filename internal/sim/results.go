package sim

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/cropsim/internal/dynamo"
)

// Results recomputes the steady state parameters for every recorded state
// and returns all parameters that change during a run: varying parameters,
// state variables and steady state outputs. doy and hour are reconstructed
// from doy_dbl.
func (s *System) Results(states []dynamo.State, times []float64) (*dynamo.Result, error) {
	if len(states) != len(times) {
		return nil, fmt.Errorf("results: %d states but %d times", len(states), len(times))
	}

	n := len(states)
	res := &dynamo.Result{
		Columns: make(map[string][]float64, len(s.outputNames)+2),
		Times:   slices.Clone(times),
		Metrics: make(map[string]float64),
	}
	for _, name := range s.outputNames {
		res.Columns[name] = make([]float64, n)
	}
	res.Columns[ParamDoy] = make([]float64, n)
	res.Columns[ParamHour] = make([]float64, n)

	doyDblSlot, hasDoyDbl := s.store.Slot(ParamDoyDbl)

	for i, x := range states {
		if len(x) != len(s.stateSlots) {
			return nil, fmt.Errorf("%w: state %d has %d values, want %d", dynamo.ErrDimensionMismatch, i, len(x), len(s.stateSlots))
		}
		if err := s.UpdateVarying(times[i]); err != nil {
			return nil, err
		}
		s.updateState(x)
		if err := s.runSteady(); err != nil {
			return nil, err
		}
		for j, name := range s.outputNames {
			res.Columns[name][i] = s.store.ValueAt(s.outputSlots[j])
		}
		if hasDoyDbl {
			doyDbl := s.store.ValueAt(doyDblSlot)
			doy := math.Floor(doyDbl)
			res.Columns[ParamDoy][i] = doy
			res.Columns[ParamHour][i] = 24.0 * (doyDbl - doy)
		}
	}

	res.Names = make([]string, 0, len(res.Columns))
	for name := range res.Columns {
		res.Names = append(res.Names, name)
	}
	slices.Sort(res.Names)
	return res, nil
}
