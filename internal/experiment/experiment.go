// Package experiment turns a scenario into a built system and runs it.
package experiment

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/san-kum/cropsim/internal/config"
	"github.com/san-kum/cropsim/internal/dynamo"
	"github.com/san-kum/cropsim/internal/integrators"
	"github.com/san-kum/cropsim/internal/metrics"
	"github.com/san-kum/cropsim/internal/modules"
	"github.com/san-kum/cropsim/internal/sim"
	"github.com/san-kum/cropsim/internal/storage"
)

type Experiment struct {
	scenario   *config.Scenario
	system     *sim.System
	integrator dynamo.Integrator
	simulator  *sim.Simulator
}

// New builds the scenario's system with the given factory, attaches its
// metrics and selects its integrator.
func New(ctx context.Context, sc *config.Scenario, factory dynamo.Factory) (*Experiment, error) {
	def, err := sc.Definition()
	if err != nil {
		return nil, err
	}
	sys, err := sim.Build(ctx, def, factory)
	if err != nil {
		return nil, err
	}
	sc.Integrator = cmp.Or(sc.Integrator, config.DefaultIntegrator)
	integ, err := integrators.New(sc.Integrator)
	if err != nil {
		return nil, err
	}

	e := &Experiment{
		scenario:   sc,
		system:     sys,
		integrator: integ,
		simulator:  sim.New(sys, integ),
	}
	for _, spec := range sc.Metrics {
		m, err := metrics.Parse(spec, sys)
		if err != nil {
			return nil, err
		}
		e.simulator.AddMetric(m)
	}
	return e, nil
}

func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx, dynamo.DefaultConfig())
}

func (e *Experiment) System() *sim.System           { return e.system }
func (e *Experiment) Integrator() dynamo.Integrator { return e.integrator }
func (e *Experiment) Scenario() *config.Scenario    { return e.scenario }

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

// GrowthStats sums the counters of every growth module in the system.
func (e *Experiment) GrowthStats() (modules.GrowthStats, bool) {
	var (
		total modules.GrowthStats
		found bool
	)
	for _, m := range e.system.Modules() {
		g, ok := m.(*modules.Growth)
		if !ok {
			continue
		}
		found = true
		st := g.Stats()
		total.Evaluations += st.Evaluations
		total.Refinements += st.Refinements
		total.Exhausted += st.Exhausted
		total.MaxSteps = max(total.MaxSteps, st.MaxSteps)
	}
	return total, found
}

// Metadata describes a finished run for storage.
func (e *Experiment) Metadata(result *dynamo.Result) storage.RunMetadata {
	return storage.RunMetadata{
		Scenario:   e.scenario.Name,
		Timestamp:  time.Now().UTC(),
		Integrator: e.scenario.Integrator,
		Timestep:   e.system.Timestep(),
		Steps:      result.StepsTaken,
		Modules:    append(e.system.SteadyStateModules(), e.system.DerivativeModules()...),
		Metrics:    result.Metrics,
	}
}
