package modules

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/san-kum/cropsim/internal/dynamo"
)

// newStore defines every name of desc (inputs first) taking values from vals
// and returns the frozen store.
func newStore(desc dynamo.Descriptor, vals map[string]float64) *dynamo.Store {
	s := dynamo.NewStore()
	for _, name := range desc.Inputs {
		s.Define(name, vals[name])
	}
	for _, name := range desc.Outputs {
		s.Define(name, vals[name])
	}
	s.Freeze()
	return s
}

func create(t *testing.T, name string, s *dynamo.Store, logger *slog.Logger) dynamo.Module {
	t.Helper()
	r := Default()
	desc, err := r.Describe(name)
	if err != nil {
		t.Fatalf("describe %s: %v", name, err)
	}
	m, err := r.Create(name, s.Binder(desc, logger))
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return m
}

func scratch(t *testing.T, s *dynamo.Store, name string) float64 {
	t.Helper()
	slot, ok := s.Slot(name)
	if !ok {
		t.Fatalf("no parameter %s", name)
	}
	return s.ScratchAt(slot)
}

func TestDefaultRegistryList(t *testing.T) {
	want := []string{
		"empty_senescence",
		"light_use_canopy",
		"thermal_time_linear",
		"total_biomass",
		"utilization_growth_and_senescence",
	}
	got := Default().List()
	if len(got) != len(want) {
		t.Fatalf("expected %d modules, got %d", len(want), len(got))
	}
	for i, d := range got {
		if d.Name != want[i] {
			t.Errorf("module %d: expected %s, got %s", i, want[i], d.Name)
		}
	}
}

func TestDescribeKinds(t *testing.T) {
	r := Default()
	tests := []struct {
		name string
		kind dynamo.Kind
	}{
		{"total_biomass", dynamo.SteadyState},
		{"light_use_canopy", dynamo.SteadyState},
		{"thermal_time_linear", dynamo.Derivative},
		{"utilization_growth_and_senescence", dynamo.Derivative},
		{"empty_senescence", dynamo.Derivative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Describe(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if d.Kind != tt.kind {
				t.Errorf("expected %v, got %v", tt.kind, d.Kind)
			}
		})
	}
}

func TestDescribeUnknown(t *testing.T) {
	r := Default()
	if _, err := r.Describe("c3_canopy"); !errors.Is(err, dynamo.ErrUnknownModule) {
		t.Errorf("expected ErrUnknownModule, got %v", err)
	}
	if _, err := r.Inputs("c3_canopy"); !errors.Is(err, dynamo.ErrUnknownModule) {
		t.Errorf("expected ErrUnknownModule from Inputs, got %v", err)
	}
	if _, err := r.Create("c3_canopy", dynamo.NewStore().Binder(dynamo.Descriptor{}, nil)); !errors.Is(err, dynamo.ErrUnknownModule) {
		t.Errorf("expected ErrUnknownModule from Create, got %v", err)
	}
}

func TestDescribeReturnsCopies(t *testing.T) {
	r := Default()
	in, _ := r.Inputs("total_biomass")
	in[0] = "changed"
	again, _ := r.Inputs("total_biomass")
	if again[0] != "Leaf" {
		t.Errorf("registry metadata was modified through a returned slice: %v", again)
	}
}

func TestCreateRejectsUndeclaredBinding(t *testing.T) {
	desc := dynamo.Descriptor{Name: "sneaky", Inputs: []string{"a"}, Outputs: []string{"b"}, Kind: dynamo.SteadyState}
	r := NewRegistry()
	r.Register(desc, func(b *dynamo.Binder) (dynamo.Module, error) {
		b.Input("a")
		b.Input("c")
		b.Output("b")
		return &emptySenescence{base{name: "sneaky", kind: dynamo.SteadyState}}, nil
	})

	s := dynamo.NewStore()
	s.Define("a", 1)
	s.Define("b", 0)
	s.Define("c", 2)
	s.Freeze()

	_, err := r.Create("sneaky", s.Binder(desc, nil))
	if !errors.Is(err, dynamo.ErrUndeclaredBinding) {
		t.Fatalf("expected ErrUndeclaredBinding, got %v", err)
	}
}
