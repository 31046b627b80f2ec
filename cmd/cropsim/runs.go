package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/cropsim/internal/config"
	"github.com/san-kum/cropsim/internal/dynamo"
	"github.com/san-kum/cropsim/internal/experiment"
	"github.com/san-kum/cropsim/internal/integrators"
	"github.com/san-kum/cropsim/internal/modules"
	"github.com/san-kum/cropsim/internal/storage"
)

var (
	plotVars   []string
	plotHeight int
	plotWidth  int
	outFile    string
	benchEvals int
)

var defaultPlotVars = []string{"Leaf", "Stem", "Root", "Rhizome", "Grain", "TTc"}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tSTEPS\tTIMESTEP\tINTEG\tMODULES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%gh\t%s\t%d\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Timestep,
			run.Integrator,
			len(run.Modules),
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, *dynamo.Result, error) {
	st, err := openStorage()
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()

	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	result, err := st.LoadResult(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, result, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(result.Times) < 2 {
		return fmt.Errorf("no data to plot")
	}

	vars := plotVars
	if len(vars) == 0 {
		for _, name := range defaultPlotVars {
			if result.Column(name) != nil {
				vars = append(vars, name)
			}
		}
	}
	if len(vars) == 0 {
		vars = result.Names[:min(len(result.Names), 6)]
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n", meta.Scenario)
	fmt.Printf("samples: %d\n\n", len(result.Times))

	for _, name := range vars {
		data := result.Column(name)
		if data == nil {
			return fmt.Errorf("run %s has no column %q", meta.ID, name)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(name),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func output() (io.WriteCloser, error) {
	if outFile == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(outFile)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, err := output()
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(w, *meta, result); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, err := output()
	if err != nil {
		return err
	}
	if err := storage.ExportCSV(w, result); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func listModules(cmd *cobra.Command, args []string) error {
	reg := modules.Default()
	if len(args) == 1 {
		desc, err := reg.Describe(args[0])
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render(desc.Name) + " " + labelStyle.Render(desc.Kind.String()))
		printField("inputs", strings.Join(desc.Inputs, ", "))
		printField("outputs", strings.Join(desc.Outputs, ", "))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tINPUTS\tOUTPUTS")
	for _, desc := range reg.List() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", desc.Name, desc.Kind, len(desc.Inputs), len(desc.Outputs))
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINTEG\tDAYS\tTIMESTEP\tMODULES")
	for _, name := range config.ListPresets() {
		sc := config.GetPreset(name)
		days := 0
		if sc.Weather != nil {
			days = sc.Weather.Days
		}
		mods := append(slices.Clone(sc.SteadyStateModules), sc.DerivativeModules...)
		fmt.Fprintf(w, "%s\t%s\t%d\t%gh\t%s\n", name, sc.Integrator, days, sc.Parameters["timestep"], strings.Join(mods, ","))
	}
	return w.Flush()
}

// benchScenario times raw system evaluations and a full run for every
// requested integrator.
func benchScenario(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	names := args
	if len(names) == 0 {
		names = integrators.Names()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEG\tSTEPS\tEVAL\tRUN\tSTEPS/SEC")
	for _, name := range names {
		sc, err := loadScenario()
		if err != nil {
			return err
		}
		sc.Integrator = name
		exp, err := experiment.New(ctx, sc, modules.Default())
		if err != nil {
			return explain(err)
		}

		sys := exp.System()
		evalTime, err := sys.SpeedTest(benchEvals, sys.InitialState(), 0)
		if err != nil {
			return err
		}

		start := time.Now()
		result, err := exp.Run(ctx)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		perEval := evalTime / time.Duration(max(benchEvals, 1))
		fmt.Fprintf(w, "%s\t%d\t%v\t%v\t%.0f\n",
			name, result.StepsTaken, perEval, elapsed.Round(time.Microsecond),
			float64(result.StepsTaken)/elapsed.Seconds())
	}
	return w.Flush()
}
