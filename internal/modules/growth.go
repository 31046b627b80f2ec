package modules

import (
	"math"

	"github.com/san-kum/cropsim/internal/dynamo"
)

const (
	leaf = iota
	stem
	root
	rhizome
	grain
	numTissues
)

// Grain does not senesce; the first numSenescing tissues do.
const numSenescing = grain

const (
	maxRefinements = 10
	stepsPerHour   = 60
	grainStartMass = 0.01
)

var (
	massNames   = [numTissues]string{"Leaf", "Stem", "Root", "Rhizome", "Grain"}
	poolNames   = [numTissues]string{"substrate_pool_leaf", "substrate_pool_stem", "substrate_pool_root", "substrate_pool_rhizome", "substrate_pool_grain"}
	litterNames = [numSenescing]string{"LeafLitter", "StemLitter", "RootLitter", "RhizomeLitter"}
	newColNames = [numSenescing]string{"newLeafcol", "newStemcol", "newRootcol", "newRhizomecol"}
)

var GrowthDescriptor = dynamo.Descriptor{
	Name:    "utilization_growth_and_senescence",
	Inputs:  growthInputs(),
	Outputs: growthOutputs(),
	Kind:    dynamo.Derivative,
}

func growthInputs() []string {
	in := []string{
		"rate_constant_leaf", "rate_constant_stem", "rate_constant_root", "rate_constant_root_scale",
		"rate_constant_rhizome", "rate_constant_grain",
		"KmLeaf", "KmStem", "KmRoot", "KmRhizome", "KmGrain",
		"resistance_leaf_to_stem", "resistance_stem_to_grain", "resistance_stem_to_root", "resistance_stem_to_rhizome",
		"seneLeaf", "seneStem", "seneRoot", "seneRhizome",
		"rate_constant_leaf_senescence", "rate_constant_stem_senescence",
		"rate_constant_root_senescence", "rate_constant_rhizome_senescence",
		"KmLeaf_senescence", "KmStem_senescence", "KmRoot_senescence", "KmRhizome_senescence",
		"remobilization_fraction", "grain_TTc", "timestep", "CanopyA", "TTc",
	}
	in = append(in, massNames[:]...)
	return append(in, poolNames[:]...)
}

func growthOutputs() []string {
	out := append([]string{}, massNames[:]...)
	out = append(out, poolNames[:]...)
	out = append(out, litterNames[:]...)
	return append(out, newColNames[:]...)
}

type growthParams struct {
	k, km                 [numTissues]float64
	kSen, kmSen, sene     [numSenescing]float64
	resistance            [numTissues]float64 // indexed by the receiving tissue; stem holds leaf->stem
	remobilization        float64
	grainTTc, ttc, carbon float64
	timestep              float64
}

type tissues struct {
	mass, pool [numTissues]float64
}

type growthTotals struct {
	mass, pool [numTissues]float64
	litter     [numSenescing]float64
}

// GrowthStats counts how the inner integrator has behaved so far.
type GrowthStats struct {
	Evaluations int
	Refinements int
	Exhausted   int
	MaxSteps    int
}

type attemptState int

const (
	attempting attemptState = iota
	converged
	exhausted
)

// Growth partitions assimilated carbon into tissue substrate pools and grows
// or senesces tissue from them. Each call integrates the fluxes over one
// timestep with an inner Euler loop, doubling the number of inner steps until
// no pool or utilization goes negative.
type Growth struct {
	base
	b *dynamo.Binder

	k, km             [numTissues]dynamo.Input
	rootScale         dynamo.Input
	kSen, kmSen, sene [numSenescing]dynamo.Input
	resistance        [numTissues]dynamo.Input
	remobilization    dynamo.Input
	grainTTc, ttc     dynamo.Input
	carbon, timestep  dynamo.Input
	mass, pool        [numTissues]dynamo.Input

	dMass, dPool [numTissues]dynamo.Output
	litter       [numSenescing]dynamo.Output
	newCol       [numSenescing]dynamo.Output

	stats GrowthStats
}

func NewGrowth(b *dynamo.Binder) (dynamo.Module, error) {
	g := &Growth{base: base{name: GrowthDescriptor.Name, kind: dynamo.Derivative}, b: b}

	tissueLabel := [numTissues]string{"Leaf", "Stem", "Root", "Rhizome", "Grain"}
	rateNames := [numTissues]string{"rate_constant_leaf", "rate_constant_stem", "rate_constant_root", "rate_constant_rhizome", "rate_constant_grain"}
	for i := 0; i < numTissues; i++ {
		g.k[i] = b.Input(rateNames[i])
		g.km[i] = b.Input("Km" + tissueLabel[i])
		g.mass[i] = b.Input(massNames[i])
		g.pool[i] = b.Input(poolNames[i])
		g.dMass[i] = b.Output(massNames[i])
		g.dPool[i] = b.Output(poolNames[i])
	}
	g.rootScale = b.Input("rate_constant_root_scale")

	senRate := [numSenescing]string{"rate_constant_leaf_senescence", "rate_constant_stem_senescence", "rate_constant_root_senescence", "rate_constant_rhizome_senescence"}
	for i := 0; i < numSenescing; i++ {
		g.kSen[i] = b.Input(senRate[i])
		g.kmSen[i] = b.Input("Km" + tissueLabel[i] + "_senescence")
		g.sene[i] = b.Input("sene" + tissueLabel[i])
		g.litter[i] = b.Output(litterNames[i])
		g.newCol[i] = b.Output(newColNames[i])
	}

	g.resistance[stem] = b.Input("resistance_leaf_to_stem")
	g.resistance[grain] = b.Input("resistance_stem_to_grain")
	g.resistance[root] = b.Input("resistance_stem_to_root")
	g.resistance[rhizome] = b.Input("resistance_stem_to_rhizome")

	g.remobilization = b.Input("remobilization_fraction")
	g.grainTTc = b.Input("grain_TTc")
	g.ttc = b.Input("TTc")
	g.carbon = b.Input("CanopyA")
	g.timestep = b.Input("timestep")
	return g, nil
}

// Stats returns a copy of the counters accumulated since creation.
func (g *Growth) Stats() GrowthStats { return g.stats }

func (g *Growth) Run() error {
	p := g.params()
	var start tissues
	for i := 0; i < numTissues; i++ {
		start.mass[i] = g.mass[i].Get()
		start.pool[i] = g.pool[i].Get()
	}

	totals, state, steps, attempts := integrateAdaptive(&p, start)

	g.stats.Evaluations++
	g.stats.Refinements += attempts
	if steps > g.stats.MaxSteps {
		g.stats.MaxSteps = steps
	}
	if state == exhausted {
		g.stats.Exhausted++
		g.b.Logger().Warn("growth integration did not converge",
			"attempts", attempts+1, "steps", steps, "TTc", p.ttc)
	}

	for i := 0; i < numTissues; i++ {
		g.dMass[i].Set(totals.mass[i] / p.timestep)
		if state == converged {
			g.dPool[i].Set(poolRate(start.pool[i], totals.pool[i], p.timestep))
		} else {
			g.dPool[i].Set(totals.pool[i] / p.timestep)
		}
	}
	for i := 0; i < numSenescing; i++ {
		g.litter[i].Set(totals.litter[i] / p.timestep)
		g.newCol[i].Set(totals.mass[i] / p.timestep)
	}
	return nil
}

func (g *Growth) params() growthParams {
	var p growthParams
	for i := 0; i < numTissues; i++ {
		p.k[i] = g.k[i].Get()
		p.km[i] = g.km[i].Get()
	}
	p.k[root] *= g.rootScale.Get()
	for i := 0; i < numSenescing; i++ {
		p.kSen[i] = g.kSen[i].Get()
		p.kmSen[i] = g.kmSen[i].Get()
		p.sene[i] = g.sene[i].Get()
	}
	for _, i := range []int{stem, grain, root, rhizome} {
		p.resistance[i] = g.resistance[i].Get()
	}
	p.remobilization = g.remobilization.Get()
	p.grainTTc = g.grainTTc.Get()
	p.ttc = g.ttc.Get()
	p.carbon = g.carbon.Get()
	p.timestep = g.timestep.Get()
	return p
}

// integrateAdaptive runs integrate with 60 inner steps per hour, doubling
// the count on every infeasible attempt. After maxRefinements doublings the
// last attempt is run to completion and its totals are returned regardless.
func integrateAdaptive(p *growthParams, start tissues) (growthTotals, attemptState, int, int) {
	steps := int(p.timestep * stepsPerHour)
	if steps < 1 {
		steps = 1
	}

	state := attempting
	attempt := 0
	var totals growthTotals
	for state == attempting {
		last := attempt >= maxRefinements
		var feasible bool
		totals, feasible = integrate(p, start, steps, !last)
		switch {
		case feasible:
			state = converged
		case last:
			state = exhausted
		default:
			steps *= 2
			attempt++
		}
	}
	return totals, state, steps, attempt
}

func saturating(x, k, km float64) float64 {
	return x * k / (km + x)
}

// integrate advances the tissues through steps Euler steps spanning one
// timestep. It reports whether every step stayed feasible; with
// stopOnFailure it returns at the first infeasible step.
func integrate(p *growthParams, start tissues, steps int, stopOnFailure bool) (growthTotals, bool) {
	var (
		totals growthTotals
		mass   = start.mass
		pool   = start.pool
		mf     [numTissues]float64
		util   [numTissues]float64
		sen    [numSenescing]float64

		leafToStem, stemToGrain, stemToRoot, stemToRhizome float64
	)

	dt := p.timestep / float64(steps)
	beta := 0.0
	for _, m := range start.mass {
		beta += m
	}
	r := p.remobilization

	feasible := true
	for i := 0; i < steps; i++ {
		for t := 0; t < numTissues; t++ {
			if mass[t] == 0 {
				continue
			}
			if t == rhizome {
				mf[t] = pool[t]
			} else {
				mf[t] = pool[t] / mass[t]
			}
			util[t] = saturating(mf[t], p.k[t], p.km[t])
			if t < numSenescing && p.ttc >= p.sene[t] {
				sen[t] = saturating(mf[t], p.kSen[t], p.kmSen[t])
			}
		}

		startGrain := 0.0
		if mass[grain] <= 0 && p.ttc >= p.grainTTc {
			startGrain = grainStartMass
		}

		if mass[leaf] != 0 && mass[stem] != 0 {
			leafToStem = beta * (mf[leaf] - mf[stem]) / p.resistance[stem]
		}
		if mass[stem] != 0 && mass[grain] != 0 {
			stemToGrain = beta * (mf[stem] - mf[grain]) / p.resistance[grain]
		}
		if mass[stem] != 0 && mass[root] != 0 {
			stemToRoot = beta * (mf[stem] - mf[root]) / p.resistance[root]
		}
		if mass[stem] != 0 && mass[rhizome] != 0 {
			stemToRhizome = beta * (mf[stem] - mf[rhizome]) / p.resistance[rhizome]
		}

		// Respiration exceeds what the leaf pool can supply.
		if p.carbon < -pool[leaf] {
			leafToStem = 0
			util[leaf] = pool[leaf] + p.carbon
		}

		var dPool, dMass [numTissues]float64
		dPool[leaf] = (p.carbon - leafToStem - util[leaf] + sen[leaf]*r) * dt
		dPool[stem] = (leafToStem - stemToGrain - stemToRoot - stemToRhizome - util[stem] + sen[stem]*r - startGrain) * dt
		dPool[root] = (stemToRoot - util[root] + sen[root]*r) * dt
		dPool[rhizome] = (stemToRhizome - util[rhizome] + sen[rhizome]*r) * dt
		dPool[grain] = (stemToGrain - util[grain]) * dt

		for t := 0; t < numSenescing; t++ {
			dMass[t] = (util[t] - sen[t]) * dt
			totals.litter[t] += sen[t] * (1 - r) * dt
		}
		dMass[grain] = util[grain]*dt + startGrain

		for t := 0; t < numTissues; t++ {
			mass[t] += dMass[t]
			pool[t] += dPool[t]
			totals.mass[t] += dMass[t]
			totals.pool[t] += dPool[t]
		}

		if !isFeasible(&pool, &util) {
			feasible = false
			if stopOnFailure {
				break
			}
		}
	}

	// The running pools and start+totals are summed in a different order,
	// so a pool that stayed at or above zero can still total a hair below.
	if feasible {
		for t := 0; t < numTissues; t++ {
			if start.pool[t]+totals.pool[t] < 0 {
				totals.pool[t] = -start.pool[t]
			}
		}
	}
	return totals, feasible
}

// poolRate converts a pool change over one timestep into the rate the
// engine scales back by timestep, rounding up until start + rate*timestep
// is not below zero.
func poolRate(start, delta, timestep float64) float64 {
	rate := delta / timestep
	for start+rate*timestep < 0 {
		rate = math.Nextafter(rate, math.Inf(1))
	}
	return rate
}

func isFeasible(pool, util *[numTissues]float64) bool {
	for _, v := range pool {
		if v < 0 {
			return false
		}
	}
	return util[stem] >= 0 && util[grain] >= 0 && util[root] >= 0 && util[rhizome] >= 0
}
