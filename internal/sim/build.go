package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/san-kum/cropsim/internal/ctxlog"
	"github.com/san-kum/cropsim/internal/dynamo"
)

const hourTolerance = 0.01

const (
	sourceVarying   = "varying parameters"
	sourceInitial   = "initial state"
	sourceInvariant = "invariant parameters"
)

type builder struct {
	def     Definition
	factory dynamo.Factory
	log     *slog.Logger
	diag    *slog.Logger

	defects []dynamo.Defect
	store   *dynamo.Store
	varying map[string][]float64
	descs   map[string]dynamo.Descriptor

	steadyOutputs []string
	derivOwners   map[string]string
	moduleInputs  map[string]struct{}
}

// Build validates a definition against the factory and returns a System
// ready for evaluation. Every defect found is reported in one
// *dynamo.BuildError; Build never returns a System together with an error.
func Build(ctx context.Context, def Definition, factory dynamo.Factory) (*System, error) {
	log := ctxlog.FromContext(ctx)
	diag := ctxlog.Discard()
	if def.Verbose {
		diag = log
	}

	b := &builder{
		def:          def,
		factory:      factory,
		log:          log,
		diag:         diag,
		store:        dynamo.NewStore(),
		descs:        make(map[string]dynamo.Descriptor),
		derivOwners:  make(map[string]string),
		moduleInputs: map[string]struct{}{ParamTimestep: {}},
	}

	b.checkModules()
	b.checkTiming()
	b.collectParameters()
	b.checkSteadyState()
	b.checkDerivative()
	b.report()
	if err := b.err(); err != nil {
		return nil, err
	}

	sys := b.bind()
	diag.Info("creating modules")
	b.instantiate(sys)
	if err := b.err(); err != nil {
		return nil, err
	}

	diag.Info("trying to run all the modules")
	b.dryRun(sys)
	if err := b.err(); err != nil {
		return nil, err
	}

	diag.Info("system built", "state_variables", len(sys.stateSlots), "parameters", b.store.Len(), "times", sys.ntimes)
	return sys, nil
}

func (b *builder) add(d dynamo.Defect) {
	b.defects = append(b.defects, d)
}

func (b *builder) err() error {
	if len(b.defects) == 0 {
		return nil
	}
	return &dynamo.BuildError{Defects: slices.Clone(b.defects)}
}

func (b *builder) checkModules() {
	b.diag.Info("checking that at least one module was specified")
	if len(b.def.SteadyState) == 0 && len(b.def.Derivative) == 0 {
		b.add(dynamo.Defect{Kind: dynamo.DefectNoModules, Detail: "a system requires at least one module"})
	}
}

func (b *builder) checkTiming() {
	b.diag.Info("checking the time parameters")

	timestep, hasTimestep := b.def.Invariant[ParamTimestep]
	if !hasTimestep {
		b.add(dynamo.Defect{Kind: dynamo.DefectMissingParameter, Parameter: ParamTimestep, Source: sourceInvariant})
	} else if !(timestep > 0) {
		b.add(dynamo.Defect{Kind: dynamo.DefectInvalidTimestep, Parameter: ParamTimestep,
			Detail: fmt.Sprintf("must be positive, got %g", timestep)})
		hasTimestep = false
	}

	doy, hasDoy := b.def.Varying[ParamDoy]
	if !hasDoy {
		b.add(dynamo.Defect{Kind: dynamo.DefectMissingParameter, Parameter: ParamDoy, Source: sourceVarying})
	}
	hour, hasHour := b.def.Varying[ParamHour]
	if !hasHour {
		b.add(dynamo.Defect{Kind: dynamo.DefectMissingParameter, Parameter: ParamHour, Source: sourceVarying})
	}

	for _, src := range []struct {
		name string
		has  bool
	}{
		{sourceVarying, hasKey(b.def.Varying, ParamDoyDbl)},
		{sourceInitial, hasKey(b.def.InitialState, ParamDoyDbl)},
		{sourceInvariant, hasKey(b.def.Invariant, ParamDoyDbl)},
	} {
		if src.has {
			b.add(dynamo.Defect{Kind: dynamo.DefectReservedName, Parameter: ParamDoyDbl, Source: src.name,
				Detail: "reserved for the combined day-of-year coordinate"})
		}
	}

	lengthsOK := b.checkSeriesLengths()

	if hasHour && hasTimestep {
		if i, ok := hourStepConsistent(hour, timestep); !ok {
			b.add(dynamo.Defect{Kind: dynamo.DefectInconsistentHour, Parameter: ParamHour,
				Detail: fmt.Sprintf("hour[%d]=%g and hour[%d]=%g are not separated by timestep %g", i-1, hour[i-1], i, hour[i], timestep)})
		}
	}

	b.varying = make(map[string][]float64, len(b.def.Varying))
	for name, series := range b.def.Varying {
		if name == ParamDoy || name == ParamHour || name == ParamDoyDbl {
			continue
		}
		b.varying[name] = series
	}
	if hasDoy && hasHour && lengthsOK {
		b.varying[ParamDoyDbl] = CombineDoyHour(doy, hour)
	}
}

func (b *builder) checkSeriesLengths() bool {
	names := slices.Sorted(maps.Keys(b.def.Varying))
	if len(names) == 0 {
		return false
	}
	ok := true
	want := len(b.def.Varying[names[0]])
	for _, name := range names {
		n := len(b.def.Varying[name])
		switch {
		case n == 0:
			b.add(dynamo.Defect{Kind: dynamo.DefectSeriesLength, Parameter: name, Source: sourceVarying, Detail: "series is empty"})
			ok = false
		case n != want:
			b.add(dynamo.Defect{Kind: dynamo.DefectSeriesLength, Parameter: name, Source: sourceVarying,
				Detail: fmt.Sprintf("series has %d values, %q has %d", n, names[0], want)})
			ok = false
		}
	}
	return ok
}

// hourStepConsistent reports whether consecutive hours differ by timestep
// modulo 24. On failure it returns the index of the second value of the
// first offending pair.
func hourStepConsistent(hour []float64, timestep float64) (int, bool) {
	for i := 1; i < len(hour); i++ {
		diff := hour[i] - hour[i-1]
		if math.Abs(diff-24.0*math.Floor(diff/24.0)-timestep) > hourTolerance {
			return i, false
		}
	}
	return 0, true
}

// CombineDoyHour returns hour/24 + doy for every position.
func CombineDoyHour(doy, hour []float64) []float64 {
	out := make([]float64, len(doy))
	for i := range out {
		out[i] = hour[i]/24.0 + doy[i]
	}
	return out
}

func (b *builder) collectParameters() {
	b.diag.Info("building list of parameters")

	for _, name := range slices.Sorted(maps.Keys(b.varying)) {
		series := b.varying[name]
		v := 0.0
		if len(series) > 0 {
			v = series[0]
		}
		b.define(name, v, sourceVarying)
	}
	for _, name := range slices.Sorted(maps.Keys(b.def.InitialState)) {
		b.define(name, b.def.InitialState[name], sourceInitial)
	}
	for _, name := range slices.Sorted(maps.Keys(b.def.Invariant)) {
		b.define(name, b.def.Invariant[name], sourceInvariant)
	}
}

func (b *builder) define(name string, value float64, source string) {
	if _, ok := b.store.Define(name, value); !ok {
		b.add(dynamo.Defect{Kind: dynamo.DefectDuplicateParam, Parameter: name, Source: source})
		return
	}
	b.diag.Debug("parameter", "source", source, "name", name, "value", value)
}

// describe looks up a module once per list, reporting unknown and repeated names.
func (b *builder) describe(name string, kind dynamo.Kind, seen map[string]struct{}) (dynamo.Descriptor, bool) {
	if _, dup := seen[name]; dup {
		b.add(dynamo.Defect{Kind: dynamo.DefectDuplicateModule, Module: name, Detail: fmt.Sprintf("listed more than once as a %s module", kind)})
		return dynamo.Descriptor{}, false
	}
	seen[name] = struct{}{}

	desc, err := b.factory.Describe(name)
	if err != nil {
		b.add(dynamo.Defect{Kind: dynamo.DefectUnknownModule, Module: name, Detail: err.Error()})
		return dynamo.Descriptor{}, false
	}
	desc.Name = name
	b.descs[name] = desc
	return desc, true
}

func (b *builder) checkInputs(desc dynamo.Descriptor, kind dynamo.Kind) {
	for _, p := range desc.Inputs {
		if !b.store.Has(p) {
			b.add(dynamo.Defect{Kind: dynamo.DefectUndefinedInput, Parameter: p, Module: desc.Name,
				Detail: fmt.Sprintf("not defined before the %s module runs", kind)})
		}
		b.moduleInputs[p] = struct{}{}
	}
}

func (b *builder) checkSteadyState() {
	seen := make(map[string]struct{})
	for _, name := range b.def.SteadyState {
		desc, ok := b.describe(name, dynamo.SteadyState, seen)
		if !ok {
			continue
		}
		b.checkInputs(desc, dynamo.SteadyState)
		for _, p := range desc.Outputs {
			if _, ok := b.store.Define(p, 0); !ok {
				b.add(dynamo.Defect{Kind: dynamo.DefectDuplicateOutput, Parameter: p, Module: name,
					Detail: "already defined by an input source or a previous steady state module"})
				continue
			}
			b.steadyOutputs = append(b.steadyOutputs, p)
			b.diag.Debug("steady state parameter", "name", p, "module", name)
		}
	}
}

func (b *builder) checkDerivative() {
	b.diag.Info("checking the derivative module input and output parameters")
	seen := make(map[string]struct{})
	for _, name := range b.def.Derivative {
		desc, ok := b.describe(name, dynamo.Derivative, seen)
		if !ok {
			continue
		}
		b.checkInputs(desc, dynamo.Derivative)
		for _, p := range desc.Outputs {
			if _, ok := b.def.InitialState[p]; !ok {
				b.add(dynamo.Defect{Kind: dynamo.DefectIllegalOutput, Parameter: p, Module: name,
					Detail: "derivatives can only be declared for state variables"})
				continue
			}
			if prev, ok := b.derivOwners[p]; ok {
				b.log.Warn("state variable written by more than one derivative module; last write wins",
					"parameter", p, "first", prev, "second", name)
			}
			b.derivOwners[p] = name
		}
	}
}

// report emits the verbose-only summary of unused state and parameters.
func (b *builder) report() {
	var static []string
	for _, name := range slices.Sorted(maps.Keys(b.def.InitialState)) {
		if _, ok := b.derivOwners[name]; !ok {
			static = append(static, name)
		}
	}
	if len(static) > 0 {
		b.diag.Info("no derivatives were supplied for these state variables; they will not change with time",
			"variables", strings.Join(static, ", "))
	}

	var unused []string
	for _, name := range slices.Sorted(maps.Keys(b.def.Invariant)) {
		if _, ok := b.moduleInputs[name]; !ok {
			unused = append(unused, name)
		}
	}
	if len(unused) > 0 {
		b.diag.Info("invariant parameters not used as inputs to any module", "parameters", strings.Join(unused, ", "))
	} else {
		b.diag.Info("all invariant parameters were used as module inputs")
	}
	b.diag.Debug("module inputs", "parameters", strings.Join(slices.Sorted(maps.Keys(b.moduleInputs)), ", "))
}

// bind freezes the store and records the slot layout used on the hot path.
func (b *builder) bind() *System {
	b.store.Freeze()

	sys := &System{store: b.store, logger: b.log}
	sys.timestepSlot, _ = b.store.Slot(ParamTimestep)

	sys.stateNames = slices.Sorted(maps.Keys(b.def.InitialState))
	sys.stateSlots = make([]int, len(sys.stateNames))
	sys.initial = make(dynamo.State, len(sys.stateNames))
	for i, name := range sys.stateNames {
		sys.stateSlots[i], _ = b.store.Slot(name)
		sys.initial[i] = b.def.InitialState[name]
	}

	for _, name := range b.steadyOutputs {
		slot, _ := b.store.Slot(name)
		sys.steadySlots = append(sys.steadySlots, slot)
	}

	for _, name := range slices.Sorted(maps.Keys(b.varying)) {
		slot, _ := b.store.Slot(name)
		sys.varying = append(sys.varying, varyingBinding{slot: slot, series: slices.Clone(b.varying[name])})
		sys.ntimes = len(b.varying[name])
	}

	changing := make(map[string]struct{})
	for name := range b.varying {
		changing[name] = struct{}{}
	}
	for _, name := range sys.stateNames {
		changing[name] = struct{}{}
	}
	for _, name := range b.steadyOutputs {
		changing[name] = struct{}{}
	}
	sys.outputNames = slices.Sorted(maps.Keys(changing))
	sys.outputSlots = make([]int, len(sys.outputNames))
	for i, name := range sys.outputNames {
		sys.outputSlots[i], _ = b.store.Slot(name)
	}
	return sys
}

func (b *builder) instantiate(sys *System) {
	create := func(name string, want dynamo.Kind) dynamo.Module {
		m, err := b.factory.Create(name, b.store.Binder(b.descs[name], b.log))
		if err != nil {
			b.add(dynamo.Defect{Kind: dynamo.DefectCreateFailed, Module: name, Detail: err.Error()})
			return nil
		}
		if m.Kind().IsDerivative() != want.IsDerivative() {
			b.add(dynamo.Defect{Kind: dynamo.DefectMischaracterized, Module: name,
				Detail: fmt.Sprintf("included in the list of %s modules, but it is a %s module", want, m.Kind())})
		}
		return m
	}

	for _, name := range b.def.SteadyState {
		if m := create(name, dynamo.SteadyState); m != nil {
			sys.steady = append(sys.steady, m)
		}
	}
	for _, name := range b.def.Derivative {
		if m := create(name, dynamo.Derivative); m != nil {
			sys.deriv = append(sys.deriv, m)
		}
	}
}

// dryRun evaluates both module chains once so runtime-only failures surface
// as build defects.
func (b *builder) dryRun(sys *System) {
	if err := sys.UpdateVaryingIndex(0); err != nil {
		b.add(dynamo.Defect{Kind: dynamo.DefectSeriesLength, Detail: err.Error()})
		return
	}
	if err := sys.runSteady(); err != nil {
		b.add(moduleDefect(err))
	}
	dxdt := make(dynamo.State, len(sys.stateSlots))
	if err := sys.runDerivative(dxdt); err != nil {
		b.add(moduleDefect(err))
	}
}

func moduleDefect(err error) dynamo.Defect {
	d := dynamo.Defect{Kind: dynamo.DefectModuleFailed, Detail: err.Error()}
	var me *dynamo.ModuleError
	if errors.As(err, &me) {
		d.Module = me.Module
		d.Detail = fmt.Sprintf("%s module generated an error: %v", me.Kind, me.Wrapped)
	}
	return d
}

func hasKey[V any](m map[string]V, key string) bool {
	_, ok := m[key]
	return ok
}
