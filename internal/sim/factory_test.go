package sim

import (
	"errors"

	"github.com/san-kum/cropsim/internal/dynamo"
	"github.com/san-kum/cropsim/internal/modules"
)

type funcModule struct {
	name string
	kind dynamo.Kind
	run  func() error
}

func (m *funcModule) Name() string      { return m.name }
func (m *funcModule) Kind() dynamo.Kind { return m.kind }
func (m *funcModule) Run() error        { return m.run() }

// testFactory registers small modules used to exercise the builder:
//
//	sum      steady      output = input_a + input_b
//	double   steady      doubled = 2 * output
//	rate     derivative  dx/dt = r
//	panicker derivative  panics when run
//	failing  derivative  returns an error when run
//	liar     declared derivative, instance reports steady state
//	broken   constructor fails
func testFactory() *modules.Registry {
	r := modules.NewRegistry()

	sum := dynamo.Descriptor{Name: "sum", Inputs: []string{"input_a", "input_b"}, Outputs: []string{"output"}, Kind: dynamo.SteadyState}
	r.Register(sum, func(b *dynamo.Binder) (dynamo.Module, error) {
		a, c, out := b.Input("input_a"), b.Input("input_b"), b.Output("output")
		return &funcModule{name: "sum", kind: dynamo.SteadyState, run: func() error {
			out.Set(a.Get() + c.Get())
			return nil
		}}, nil
	})

	double := dynamo.Descriptor{Name: "double", Inputs: []string{"output"}, Outputs: []string{"doubled"}, Kind: dynamo.SteadyState}
	r.Register(double, func(b *dynamo.Binder) (dynamo.Module, error) {
		in, out := b.Input("output"), b.Output("doubled")
		return &funcModule{name: "double", kind: dynamo.SteadyState, run: func() error {
			out.Set(2 * in.Get())
			return nil
		}}, nil
	})

	rate := dynamo.Descriptor{Name: "rate", Inputs: []string{"r"}, Outputs: []string{"x"}, Kind: dynamo.Derivative}
	r.Register(rate, func(b *dynamo.Binder) (dynamo.Module, error) {
		in, out := b.Input("r"), b.Output("x")
		return &funcModule{name: "rate", kind: dynamo.Derivative, run: func() error {
			out.Set(in.Get())
			return nil
		}}, nil
	})

	accumulate := dynamo.Descriptor{Name: "accumulate", Inputs: []string{"output"}, Outputs: []string{"x"}, Kind: dynamo.Derivative}
	r.Register(accumulate, func(b *dynamo.Binder) (dynamo.Module, error) {
		in, out := b.Input("output"), b.Output("x")
		return &funcModule{name: "accumulate", kind: dynamo.Derivative, run: func() error {
			out.Set(in.Get())
			return nil
		}}, nil
	})

	r.Register(dynamo.Descriptor{Name: "panicker", Kind: dynamo.Derivative}, func(*dynamo.Binder) (dynamo.Module, error) {
		return &funcModule{name: "panicker", kind: dynamo.Derivative, run: func() error {
			panic("index out of range")
		}}, nil
	})

	r.Register(dynamo.Descriptor{Name: "failing", Kind: dynamo.Derivative}, func(*dynamo.Binder) (dynamo.Module, error) {
		return &funcModule{name: "failing", kind: dynamo.Derivative, run: func() error {
			return errors.New("negative leaf area")
		}}, nil
	})

	r.Register(dynamo.Descriptor{Name: "liar", Kind: dynamo.Derivative}, func(*dynamo.Binder) (dynamo.Module, error) {
		return &funcModule{name: "liar", kind: dynamo.SteadyState, run: func() error { return nil }}, nil
	})

	r.Register(dynamo.Descriptor{Name: "broken", Kind: dynamo.SteadyState}, func(*dynamo.Binder) (dynamo.Module, error) {
		return nil, errors.New("missing lookup table")
	})

	return r
}

// testDefinition is a four hour run: x' = r, output = input_a + input_b.
func testDefinition() Definition {
	return Definition{
		InitialState: map[string]float64{"x": 0},
		Invariant:    map[string]float64{ParamTimestep: 1, "r": 5, "input_b": 2},
		Varying: map[string][]float64{
			ParamDoy:  {100, 100, 100, 100},
			ParamHour: {0, 1, 2, 3},
			"input_a": {0, 10, 20, 30},
		},
		SteadyState: []string{"sum"},
		Derivative:  []string{"rate"},
	}
}
