package modules

import (
	"math"

	"github.com/san-kum/cropsim/internal/dynamo"
)

var tissueMassNames = []string{"Leaf", "Stem", "Root", "Rhizome", "Grain"}

var totalBiomassDescriptor = dynamo.Descriptor{
	Name:    "total_biomass",
	Inputs:  tissueMassNames,
	Outputs: []string{"total_biomass"},
	Kind:    dynamo.SteadyState,
}

type totalBiomass struct {
	base
	tissues []dynamo.Input
	total   dynamo.Output
}

func newTotalBiomass(b *dynamo.Binder) (dynamo.Module, error) {
	m := &totalBiomass{base: base{name: totalBiomassDescriptor.Name, kind: dynamo.SteadyState}}
	for _, name := range tissueMassNames {
		m.tissues = append(m.tissues, b.Input(name))
	}
	m.total = b.Output("total_biomass")
	return m, nil
}

func (m *totalBiomass) Run() error {
	sum := 0.0
	for _, in := range m.tissues {
		sum += in.Get()
	}
	m.total.Set(sum)
	return nil
}

// light_use_canopy is a big-leaf canopy: Beer's law interception times a
// light use efficiency, minus leaf maintenance respiration.
var lightUseCanopyDescriptor = dynamo.Descriptor{
	Name: "light_use_canopy",
	Inputs: []string{"solar", "Leaf", "specific_leaf_area", "light_use_efficiency",
		"canopy_extinction", "maintenance_respiration"},
	Outputs: []string{"lai", "CanopyA"},
	Kind:    dynamo.SteadyState,
}

type lightUseCanopy struct {
	base
	solar, leaf, sla, lue, extinction, respiration dynamo.Input
	lai, assimilation                              dynamo.Output
}

func newLightUseCanopy(b *dynamo.Binder) (dynamo.Module, error) {
	return &lightUseCanopy{
		base:         base{name: lightUseCanopyDescriptor.Name, kind: dynamo.SteadyState},
		solar:        b.Input("solar"),
		leaf:         b.Input("Leaf"),
		sla:          b.Input("specific_leaf_area"),
		lue:          b.Input("light_use_efficiency"),
		extinction:   b.Input("canopy_extinction"),
		respiration:  b.Input("maintenance_respiration"),
		lai:          b.Output("lai"),
		assimilation: b.Output("CanopyA"),
	}, nil
}

func (m *lightUseCanopy) Run() error {
	leaf := m.leaf.Get()
	lai := leaf * m.sla.Get()
	intercepted := m.solar.Get() * (1 - math.Exp(-m.extinction.Get()*lai))
	m.lai.Set(lai)
	m.assimilation.Set(m.lue.Get()*intercepted - m.respiration.Get()*leaf)
	return nil
}

// thermal_time_linear accumulates degree days above a base temperature. The
// rate is per hour.
var thermalTimeDescriptor = dynamo.Descriptor{
	Name:    "thermal_time_linear",
	Inputs:  []string{"temp", "tbase"},
	Outputs: []string{"TTc"},
	Kind:    dynamo.Derivative,
}

type thermalTime struct {
	base
	temp, tbase dynamo.Input
	ttc         dynamo.Output
}

func newThermalTime(b *dynamo.Binder) (dynamo.Module, error) {
	return &thermalTime{
		base:  base{name: thermalTimeDescriptor.Name, kind: dynamo.Derivative},
		temp:  b.Input("temp"),
		tbase: b.Input("tbase"),
		ttc:   b.Output("TTc"),
	}, nil
}

func (m *thermalTime) Run() error {
	m.ttc.Set(math.Max(m.temp.Get()-m.tbase.Get(), 0) / 24.0)
	return nil
}

var emptySenescenceDescriptor = dynamo.Descriptor{
	Name: "empty_senescence",
	Kind: dynamo.Derivative,
}

type emptySenescence struct{ base }

func newEmptySenescence(*dynamo.Binder) (dynamo.Module, error) {
	return &emptySenescence{base{name: emptySenescenceDescriptor.Name, kind: dynamo.Derivative}}, nil
}

func (m *emptySenescence) Run() error { return nil }
