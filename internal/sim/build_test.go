package sim

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cropsim/internal/ctxlog"
	"github.com/san-kum/cropsim/internal/dynamo"
	"github.com/san-kum/cropsim/internal/integrators"
	"github.com/san-kum/cropsim/internal/modules"
)

func buildError(err error) *dynamo.BuildError {
	var be *dynamo.BuildError
	ExpectWithOffset(1, errors.As(err, &be)).To(BeTrue(), "expected a *dynamo.BuildError, got %v", err)
	return be
}

var _ = Describe("Build", func() {
	var (
		def     Definition
		factory dynamo.Factory
		logBuf  *bytes.Buffer
		ctx     context.Context
	)

	BeforeEach(func() {
		def = testDefinition()
		factory = testFactory()
		logBuf = &bytes.Buffer{}
		ctx = ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	})

	Context("with a valid definition", func() {
		It("produces the expected derivative", func() {
			sys, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())

			dxdt, err := sys.Derive(sys.InitialState(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(dxdt).To(Equal(dynamo.State{5.0}))
		})

		It("feeds steady state outputs into the derivative", func() {
			def.Varying["input_a"] = []float64{2, 2, 2, 2}
			def.Invariant["input_b"] = 3
			def.Derivative = []string{"accumulate"}
			sys, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())

			dxdt, err := sys.Derive(sys.InitialState(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(dxdt).To(Equal(dynamo.State{5.0}))

			_, err = sys.Derive(sys.InitialState(), 2.5)
			Expect(err).NotTo(HaveOccurred())
			out, ok := sys.Param("output")
			Expect(ok).To(BeTrue())
			Expect(out).To(Equal(5.0))
		})

		It("synthesizes doy_dbl and drops doy and hour", func() {
			def.Varying[ParamHour] = []float64{12, 13, 14, 15}
			sys, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())

			Expect(sys.UpdateVaryingIndex(2)).To(Succeed())
			v, ok := sys.Param(ParamDoyDbl)
			Expect(ok).To(BeTrue())
			Expect(v).To(BeNumerically("~", 100+14.0/24, 1e-12))

			_, ok = sys.Param(ParamHour)
			Expect(ok).To(BeFalse())
		})

		It("chains steady state modules left to right", func() {
			def.SteadyState = []string{"sum", "double"}
			sys, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())

			_, err = sys.Derive(sys.InitialState(), 1)
			Expect(err).NotTo(HaveOccurred())
			doubled, _ := sys.Param("doubled")
			Expect(doubled).To(Equal(24.0))
		})

		It("stays quiet unless verbose", func() {
			_, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())
			Expect(logBuf.String()).To(BeEmpty())

			def.Verbose = true
			_, err = Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())
			Expect(logBuf.String()).To(ContainSubstring("system built"))
		})

		It("gives the same results with and without verbose output", func() {
			quiet, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())
			def.Verbose = true
			loud, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())

			a, err := quiet.Derive(dynamo.State{1}, 1.5)
			Expect(err).NotTo(HaveOccurred())
			b, err := loud.Derive(dynamo.State{1}, 1.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(Equal(b))
		})

		It("keeps instances independent", func() {
			first, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())
			second, err := Build(ctx, def, factory)
			Expect(err).NotTo(HaveOccurred())

			Expect(first.SetParam("r", 100)).To(Succeed())
			dxdt, err := second.Derive(second.InitialState(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(dxdt[0]).To(Equal(5.0))
		})
	})

	Context("when static checks fail", func() {
		It("requires at least one module", func() {
			def.SteadyState, def.Derivative = nil, nil
			sys, err := Build(ctx, def, factory)
			Expect(sys).To(BeNil())
			Expect(buildError(err).Has(dynamo.DefectNoModules)).To(BeTrue())
		})

		It("requires timestep, doy and hour", func() {
			delete(def.Invariant, ParamTimestep)
			delete(def.Varying, ParamDoy)
			delete(def.Varying, ParamHour)
			_, err := Build(ctx, def, factory)
			missing := buildError(err).Of(dynamo.DefectMissingParameter)

			var names []string
			for _, d := range missing {
				names = append(names, d.Parameter)
			}
			Expect(names).To(ConsistOf(ParamTimestep, ParamDoy, ParamHour))
		})

		It("rejects a non-positive timestep", func() {
			def.Invariant[ParamTimestep] = 0
			_, err := Build(ctx, def, factory)
			Expect(buildError(err).Has(dynamo.DefectInvalidTimestep)).To(BeTrue())
		})

		It("rejects a user supplied doy_dbl", func() {
			def.Invariant[ParamDoyDbl] = 1
			_, err := Build(ctx, def, factory)
			Expect(buildError(err).Has(dynamo.DefectReservedName)).To(BeTrue())
		})

		It("rejects series of different lengths", func() {
			def.Varying["input_a"] = []float64{0, 10, 20}
			_, err := Build(ctx, def, factory)
			Expect(buildError(err).Of(dynamo.DefectSeriesLength)).To(HaveLen(1))
		})

		It("reports the first hour that does not follow the timestep", func() {
			def.Varying[ParamDoy] = []float64{100, 100, 100}
			def.Varying[ParamHour] = []float64{0, 1, 3}
			def.Varying["input_a"] = []float64{0, 1, 2}
			_, err := Build(ctx, def, factory)

			defects := buildError(err).Of(dynamo.DefectInconsistentHour)
			Expect(defects).To(HaveLen(1))
			Expect(defects[0].Detail).To(ContainSubstring("hour[2]=3"))
		})

		It("names the source of duplicated parameters", func() {
			def.InitialState["r"] = 1
			def.Invariant["input_a"] = 3
			_, err := Build(ctx, def, factory)

			dups := buildError(err).Of(dynamo.DefectDuplicateParam)
			Expect(dups).To(ConsistOf(
				dynamo.Defect{Kind: dynamo.DefectDuplicateParam, Parameter: "r", Source: sourceInvariant},
				dynamo.Defect{Kind: dynamo.DefectDuplicateParam, Parameter: "input_a", Source: sourceInvariant},
			))
		})

		It("reports inputs that are only produced by a later module", func() {
			def.SteadyState = []string{"double", "sum"}
			_, err := Build(ctx, def, factory)

			undefined := buildError(err).Of(dynamo.DefectUndefinedInput)
			Expect(undefined).To(HaveLen(1))
			Expect(undefined[0].Parameter).To(Equal("output"))
			Expect(undefined[0].Module).To(Equal("double"))
		})

		It("rejects steady state outputs that shadow existing parameters", func() {
			def.Invariant["output"] = 1
			_, err := Build(ctx, def, factory)
			Expect(buildError(err).Has(dynamo.DefectDuplicateOutput)).To(BeTrue())
		})

		It("rejects derivative outputs that are not state variables", func() {
			def.InitialState = map[string]float64{"y": 0}
			_, err := Build(ctx, def, factory)

			be := buildError(err)
			Expect(be.Of(dynamo.DefectIllegalOutput)).To(HaveLen(1))
			Expect(be.Error()).To(ContainSubstring(`"x"`))
			Expect(be.Error()).To(ContainSubstring(`"rate"`))
		})

		It("rejects unknown and repeated modules", func() {
			def.SteadyState = []string{"sum", "c4_photosynthesis", "sum"}
			_, err := Build(ctx, def, factory)

			be := buildError(err)
			Expect(be.Has(dynamo.DefectUnknownModule)).To(BeTrue())
			Expect(be.Has(dynamo.DefectDuplicateModule)).To(BeTrue())
		})

		It("collects every defect in one error", func() {
			delete(def.Invariant, ParamTimestep)
			def.SteadyState = []string{"missing"}
			def.InitialState = map[string]float64{}
			_, err := Build(ctx, def, factory)

			be := buildError(err)
			Expect(be.Has(dynamo.DefectMissingParameter)).To(BeTrue())
			Expect(be.Has(dynamo.DefectUnknownModule)).To(BeTrue())
			Expect(be.Has(dynamo.DefectIllegalOutput)).To(BeTrue())
		})

		It("warns when two derivative modules write one state variable", func() {
			r := testFactory()
			r.Register(dynamo.Descriptor{Name: "rate2", Inputs: []string{"r"}, Outputs: []string{"x"}, Kind: dynamo.Derivative},
				func(b *dynamo.Binder) (dynamo.Module, error) {
					in, out := b.Input("r"), b.Output("x")
					return &funcModule{name: "rate2", kind: dynamo.Derivative, run: func() error {
						out.Set(2 * in.Get())
						return nil
					}}, nil
				})
			def.Derivative = []string{"rate", "rate2"}
			sys, err := Build(ctx, def, r)
			Expect(err).NotTo(HaveOccurred())
			Expect(logBuf.String()).To(ContainSubstring("last write wins"))

			dxdt, err := sys.Derive(sys.InitialState(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(dxdt[0]).To(Equal(10.0))
		})
	})

	Context("when instantiation or the dry run fails", func() {
		It("reports constructor failures", func() {
			def.SteadyState = append(def.SteadyState, "broken")
			_, err := Build(ctx, def, factory)
			Expect(buildError(err).Has(dynamo.DefectCreateFailed)).To(BeTrue())
		})

		It("reports mischaracterized modules", func() {
			def.Derivative = append(def.Derivative, "liar")
			_, err := Build(ctx, def, factory)

			defects := buildError(err).Of(dynamo.DefectMischaracterized)
			Expect(defects).To(HaveLen(1))
			Expect(defects[0].Module).To(Equal("liar"))
		})

		It("annotates panics with the module name and kind", func() {
			def.Derivative = append(def.Derivative, "panicker")
			_, err := Build(ctx, def, factory)

			defects := buildError(err).Of(dynamo.DefectModuleFailed)
			Expect(defects).To(HaveLen(1))
			Expect(defects[0].Module).To(Equal("panicker"))
			Expect(defects[0].Detail).To(ContainSubstring("derivative module"))
			Expect(defects[0].Detail).To(ContainSubstring("index out of range"))
		})

		It("reports module errors from the dry run", func() {
			def.Derivative = append(def.Derivative, "failing")
			_, err := Build(ctx, def, factory)
			Expect(buildError(err).Of(dynamo.DefectModuleFailed)[0].Detail).To(ContainSubstring("negative leaf area"))
		})
	})
})

var _ = Describe("Crop system", func() {
	It("grows a crop over a day with the built-in modules", func() {
		def := Definition{
			InitialState: map[string]float64{
				"Leaf": 1, "Stem": 1, "Root": 1, "Rhizome": 1, "Grain": 0,
				"substrate_pool_leaf": 0.1, "substrate_pool_stem": 0.1, "substrate_pool_root": 0.1,
				"substrate_pool_rhizome": 0.1, "substrate_pool_grain": 0,
				"LeafLitter": 0, "StemLitter": 0, "RootLitter": 0, "RhizomeLitter": 0,
				"newLeafcol": 0, "newStemcol": 0, "newRootcol": 0, "newRhizomecol": 0,
				"TTc": 0,
			},
			Invariant: map[string]float64{
				ParamTimestep: 1, "tbase": 10,
				"specific_leaf_area": 1.5, "light_use_efficiency": 0.0003,
				"canopy_extinction": 0.5, "maintenance_respiration": 0.01,
				"rate_constant_leaf": 1, "rate_constant_stem": 1, "rate_constant_root": 1,
				"rate_constant_root_scale": 1, "rate_constant_rhizome": 1, "rate_constant_grain": 0.1,
				"KmLeaf": 1, "KmStem": 1, "KmRoot": 1, "KmRhizome": 1, "KmGrain": 1,
				"resistance_leaf_to_stem": 100, "resistance_stem_to_grain": 100,
				"resistance_stem_to_root": 100, "resistance_stem_to_rhizome": 100,
				"seneLeaf": 1e6, "seneStem": 1e6, "seneRoot": 1e6, "seneRhizome": 1e6,
				"rate_constant_leaf_senescence": 0.05, "rate_constant_stem_senescence": 0.05,
				"rate_constant_root_senescence": 0.05, "rate_constant_rhizome_senescence": 0.05,
				"KmLeaf_senescence": 1, "KmStem_senescence": 1, "KmRoot_senescence": 1, "KmRhizome_senescence": 1,
				"remobilization_fraction": 0.6, "grain_TTc": 1e6,
			},
			Varying:     map[string][]float64{ParamDoy: make([]float64, 24), ParamHour: make([]float64, 24), "solar": make([]float64, 24), "temp": make([]float64, 24)},
			SteadyState: []string{"light_use_canopy", "total_biomass"},
			Derivative:  []string{"thermal_time_linear", modules.GrowthDescriptor.Name},
		}
		for h := 0; h < 24; h++ {
			def.Varying[ParamDoy][h] = 180
			def.Varying[ParamHour][h] = float64(h)
			if h >= 6 && h <= 18 {
				def.Varying["solar"][h] = 500
			}
			def.Varying["temp"][h] = 22
		}

		sys, err := Build(context.Background(), def, modules.Default())
		Expect(err).NotTo(HaveOccurred())

		integ, err := integrators.New("euler")
		Expect(err).NotTo(HaveOccurred())
		res, err := New(sys, integ).Run(context.Background(), dynamo.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.StepsTaken).To(Equal(23))

		ttc, ok := res.Final("TTc")
		Expect(ok).To(BeTrue())
		Expect(ttc).To(BeNumerically("~", 23*12.0/24, 1e-9))

		for _, name := range []string{"substrate_pool_leaf", "substrate_pool_stem", "substrate_pool_root", "substrate_pool_rhizome"} {
			Expect(res.Column(name)).To(HaveEach(BeNumerically(">=", 0)), name)
		}
		Expect(res.Column("total_biomass")).To(HaveLen(24))
	})
})
