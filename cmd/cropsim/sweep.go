package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/cropsim/internal/experiment"
	"github.com/san-kum/cropsim/internal/export"
	"github.com/san-kum/cropsim/internal/modules"
	"github.com/san-kum/cropsim/internal/optim"
)

var (
	axes        []string
	sweepMetric string
	maximize    bool

	svgWidth  int
	svgHeight int
)

func sweepScenario(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := loadScenario(); err != nil {
		return err
	}

	names := make([]string, 0, len(axes))
	ranges := make([][]float64, 0, len(axes))
	for _, a := range axes {
		name, values, err := optim.ParseAxis(a)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	if maximize {
		g.Maximize()
	}

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		sc, err := loadScenario()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if err := sc.Set(fmt.Sprintf("%s=%g", name, params[name])); err != nil {
				return nil, err
			}
		}
		if !slices.ContainsFunc(sc.Metrics, func(m string) bool { return metricName(m) == sweepMetric }) {
			sc.Metrics = append(sc.Metrics, metricSpec(sweepMetric))
		}
		return experiment.New(ctx, sc, modules.Default())
	}

	best, all, err := g.Search(ctx, build, sweepMetric)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+sweepMetric)
	for _, p := range all {
		for _, name := range names {
			fmt.Fprintf(w, "%g\t", p.Params[name])
		}
		if p.Err != nil {
			fmt.Fprintln(w, errStyle.Render(firstLine(p.Err.Error())))
		} else {
			fmt.Fprintf(w, "%.6g\n", p.Value)
		}
	}
	w.Flush()
	if err != nil {
		return err
	}

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%g", name, best.Params[name])
	}
	fmt.Println()
	printField("best", strings.Join(parts, " "))
	printField(sweepMetric, fmt.Sprintf("%.6g", best.Value))
	return nil
}

// metricName maps "kind:var" to the name the metric reports; a
// nonnegative metric reports a fixed name.
func metricName(spec string) string {
	kind, vars, _ := strings.Cut(spec, ":")
	if kind == "nonnegative" {
		return kind
	}
	return kind + "_" + vars
}

// metricSpec is the inverse of metricName for single variable metrics.
func metricSpec(name string) string {
	kind, v, ok := strings.Cut(name, "_")
	if !ok {
		return name
	}
	return kind + ":" + v
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func exportSVG(cmd *cobra.Command, args []string) error {
	_, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	vars := plotVars
	if len(vars) == 0 {
		for _, name := range defaultPlotVars {
			if result.Column(name) != nil && name != "TTc" {
				vars = append(vars, name)
			}
		}
	}

	w, err := output()
	if err != nil {
		return err
	}
	if err := export.ResultToSVG(w, result, vars, svgWidth, svgHeight); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
