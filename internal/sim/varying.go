package sim

import (
	"fmt"
	"math"

	"github.com/san-kum/cropsim/internal/dynamo"
)

// UpdateVaryingIndex sets every time-varying parameter to its value at index i.
func (s *System) UpdateVaryingIndex(i int) error {
	if i < 0 || i >= s.ntimes {
		return fmt.Errorf("%w: %d not in [0, %d)", dynamo.ErrTimeOutOfRange, i, s.ntimes)
	}
	for _, v := range s.varying {
		s.store.SetValueAt(v.slot, v.series[i])
	}
	return nil
}

// UpdateVarying sets every time-varying parameter at time index t. Integral
// values are looked up directly; fractional values are linearly interpolated
// between the nearest index and its neighbour on the other side of t.
func (s *System) UpdateVarying(t float64) error {
	if t == math.Trunc(t) && t >= 0 && t < float64(s.ntimes) {
		return s.UpdateVaryingIndex(int(t))
	}
	if !(t >= 0 && t <= float64(s.ntimes-1)) {
		return fmt.Errorf("%w: %g not in [0, %d]", dynamo.ErrTimeOutOfRange, t, s.ntimes-1)
	}

	t1 := int(t + 0.5)
	t2 := t1 + 1
	if float64(t1) > t {
		t2 = t1 - 1
	}
	for _, v := range s.varying {
		v1, v2 := v.series[t1], v.series[t2]
		s.store.SetValueAt(v.slot, v1+(t-float64(t1))*(v2-v1)/float64(t2-t1))
	}
	return nil
}
