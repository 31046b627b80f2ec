package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/cropsim/internal/dynamo"
	"github.com/san-kum/cropsim/internal/integrators"
)

func build(t *testing.T, def Definition) *System {
	t.Helper()
	sys, err := Build(context.Background(), def, testFactory())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return sys
}

func TestDeriveScalesByTimestep(t *testing.T) {
	tests := []struct {
		name     string
		timestep float64
		hours    []float64
		want     float64
	}{
		{"hourly", 1, []float64{0, 1, 2, 3}, 5},
		{"two hourly", 2, []float64{0, 2, 4, 6}, 10},
		{"wraps midnight", 3, []float64{18, 21, 0, 3}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition()
			def.Invariant[ParamTimestep] = tt.timestep
			def.Varying[ParamHour] = tt.hours
			sys := build(t, def)

			dxdt, err := sys.Derive(dynamo.State{0}, 0)
			if err != nil {
				t.Fatal(err)
			}
			if dxdt[0] != tt.want {
				t.Errorf("expected %f, got %f", tt.want, dxdt[0])
			}
		})
	}
}

func TestDeriveInterpolatesVarying(t *testing.T) {
	sys := build(t, testDefinition())

	tests := []struct {
		t, want float64
	}{
		{0, 2},
		{1, 12},
		{1.5, 17},
		{2.25, 24.5},
		{3, 32},
	}
	for _, tt := range tests {
		if _, err := sys.Derive(dynamo.State{0}, tt.t); err != nil {
			t.Fatalf("t=%g: %v", tt.t, err)
		}
		got, _ := sys.Param("output")
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("t=%g: expected output %f, got %f", tt.t, tt.want, got)
		}
	}
}

func TestDeriveOutOfRange(t *testing.T) {
	sys := build(t, testDefinition())
	for _, at := range []float64{-0.5, 3.5, 4} {
		if _, err := sys.Derive(dynamo.State{0}, at); !errors.Is(err, dynamo.ErrTimeOutOfRange) {
			t.Errorf("t=%g: expected ErrTimeOutOfRange, got %v", at, err)
		}
	}
}

func TestDeriveDimensionMismatch(t *testing.T) {
	sys := build(t, testDefinition())
	if _, err := sys.Derive(dynamo.State{0, 1}, 0); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	sys := build(t, testDefinition())
	first, err := sys.Derive(dynamo.State{3}, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sys.Derive(dynamo.State{7}, 2.5); err != nil {
		t.Fatal(err)
	}
	second, err := sys.Derive(dynamo.State{3}, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if math.Float64bits(first[0]) != math.Float64bits(second[0]) {
		t.Errorf("expected identical derivatives, got %v and %v", first, second)
	}
}

func TestDeriveWrapsModuleErrors(t *testing.T) {
	sys := build(t, testDefinition())
	sys.deriv = append(sys.deriv, &funcModule{name: "late", kind: dynamo.Derivative, run: func() error {
		return errors.New("boom")
	}})

	_, err := sys.Derive(dynamo.State{0}, 0)
	var me *dynamo.ModuleError
	if !errors.As(err, &me) {
		t.Fatalf("expected ModuleError, got %v", err)
	}
	if me.Module != "late" || me.Kind != dynamo.Derivative {
		t.Errorf("unexpected annotation %+v", me)
	}
}

func TestSetParamAndReset(t *testing.T) {
	sys := build(t, testDefinition())

	if err := sys.SetParam("r", 7); err != nil {
		t.Fatal(err)
	}
	dxdt, err := sys.Derive(dynamo.State{0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if dxdt[0] != 7 {
		t.Errorf("expected 7 after SetParam, got %f", dxdt[0])
	}

	if err := sys.SetParam("nitrogen", 1); !errors.Is(err, dynamo.ErrUnknownParameter) {
		t.Errorf("expected ErrUnknownParameter, got %v", err)
	}

	if _, err := sys.Derive(dynamo.State{9}, 2); err != nil {
		t.Fatal(err)
	}
	if err := sys.Reset(); err != nil {
		t.Fatal(err)
	}
	if x, _ := sys.Param("x"); x != 0 {
		t.Errorf("expected state reset to 0, got %f", x)
	}
	if out, _ := sys.Param("output"); out != 2 {
		t.Errorf("expected steady state recomputed at index 0, got %f", out)
	}
}

func TestSystemAccessors(t *testing.T) {
	sys := build(t, testDefinition())

	if sys.StateDim() != 1 || sys.NumTimes() != 4 || sys.Timestep() != 1 {
		t.Errorf("unexpected dims: state %d times %d timestep %f", sys.StateDim(), sys.NumTimes(), sys.Timestep())
	}
	if i, ok := sys.StateIndex("x"); !ok || i != 0 {
		t.Errorf("expected x at index 0, got %d %v", i, ok)
	}
	if _, ok := sys.StateIndex("output"); ok {
		t.Error("output is not a state variable")
	}
	if got := sys.SteadyStateModules(); len(got) != 1 || got[0] != "sum" {
		t.Errorf("unexpected steady state modules %v", got)
	}
	if _, ok := sys.Param(ParamDoy); ok {
		t.Error("doy should be replaced by doy_dbl")
	}
	if v, ok := sys.Param(ParamDoyDbl); !ok || v != 100 {
		t.Errorf("expected doy_dbl 100 at index 0, got %f %v", v, ok)
	}
	if _, err := sys.SpeedTest(10, dynamo.State{0}, 0.5); err != nil {
		t.Errorf("speed test: %v", err)
	}
}

func TestSimulatorRun(t *testing.T) {
	for _, name := range []string{"euler", "rk4"} {
		t.Run(name, func(t *testing.T) {
			integ, err := integrators.New(name)
			if err != nil {
				t.Fatal(err)
			}
			s := New(build(t, testDefinition()), integ)

			res, err := s.Run(context.Background(), dynamo.DefaultConfig())
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if res.StepsTaken != 3 {
				t.Errorf("expected 3 steps, got %d", res.StepsTaken)
			}

			x := res.Column("x")
			for i, want := range []float64{0, 5, 10, 15} {
				if math.Abs(x[i]-want) > 1e-9 {
					t.Errorf("x[%d]: expected %f, got %f", i, want, x[i])
				}
			}
			hour := res.Column(ParamHour)
			for i, want := range []float64{0, 1, 2, 3} {
				if math.Abs(hour[i]-want) > 1e-9 {
					t.Errorf("hour[%d]: expected %f, got %f", i, want, hour[i])
				}
			}
			if doy, ok := res.Final(ParamDoy); !ok || doy != 100 {
				t.Errorf("expected final doy 100, got %f", doy)
			}
			if out, ok := res.Final("output"); !ok || out != 32 {
				t.Errorf("expected final output 32, got %f", out)
			}
		})
	}
}

func TestSimulatorCancel(t *testing.T) {
	integ, _ := integrators.New("euler")
	s := New(build(t, testDefinition()), integ)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx, dynamo.DefaultConfig()); !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
}

type stepCounter struct{ n int }

func (o *stepCounter) OnStep(dynamo.State, float64) { o.n++ }

func TestSimulatorObservers(t *testing.T) {
	integ, _ := integrators.New("rk4")
	s := New(build(t, testDefinition()), integ)
	obs := &stepCounter{}
	s.AddObserver(obs)

	if _, err := s.Run(context.Background(), dynamo.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if obs.n != 3 {
		t.Errorf("expected 3 observed steps, got %d", obs.n)
	}
}

func TestHourStepConsistent(t *testing.T) {
	tests := []struct {
		hours    []float64
		timestep float64
		ok       bool
		index    int
	}{
		{[]float64{0, 1, 2}, 1, true, 0},
		{[]float64{0, 1, 3}, 1, false, 2},
		{[]float64{22, 23, 0, 1}, 1, true, 0},
		{[]float64{0, 1.005, 2}, 1, true, 0},
		{[]float64{0, 3, 6, 9}, 3, true, 0},
		{[]float64{5}, 1, true, 0},
	}
	for _, tt := range tests {
		i, ok := hourStepConsistent(tt.hours, tt.timestep)
		if ok != tt.ok || i != tt.index {
			t.Errorf("%v step %g: expected (%d, %v), got (%d, %v)", tt.hours, tt.timestep, tt.index, tt.ok, i, ok)
		}
	}
}
