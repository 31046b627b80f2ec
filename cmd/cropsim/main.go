package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/san-kum/cropsim/internal/config"
	"github.com/san-kum/cropsim/internal/ctxlog"
	"github.com/san-kum/cropsim/internal/dynamo"
	"github.com/san-kum/cropsim/internal/experiment"
	"github.com/san-kum/cropsim/internal/modules"
	"github.com/san-kum/cropsim/internal/storage"
	"github.com/san-kum/cropsim/internal/tui"
)

var (
	settings config.Settings

	dataDir     string
	storageKind string
	logLevel    string
	logFormat   string

	preset     string
	configFile string
	integrator string
	sets       []string
	verbose    bool
	live       bool
	frameRate  int
	noSave     bool
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cropsim",
		Short:         "module graph crop growth simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunWatch(cmd.Context(), nil)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", "", "data directory (default $CROPSIM_DATA_DIR or .cropsim)")
	pf.StringVar(&storageKind, "storage", "", "run storage backend: file or sqlite")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a scenario and store the results",
		Args:  cobra.NoArgs,
		RunE:  runScenario,
	}
	scenarioFlags(runCmd)
	runCmd.Flags().BoolVar(&live, "live", false, "draw state bars while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 20, "live view frame rate")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "check a scenario without running it",
		Args:  cobra.NoArgs,
		RunE:  validateScenario,
	}
	scenarioFlags(validateCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "step a scenario interactively",
		Args:  cobra.NoArgs,
		RunE:  watchScenario,
	}
	scenarioFlags(watchCmd)

	benchCmd := &cobra.Command{
		Use:   "bench [integrator...]",
		Short: "time evaluations and full runs of a scenario",
		RunE:  benchScenario,
	}
	scenarioFlags(benchCmd)
	benchCmd.Flags().IntVar(&benchEvals, "evals", 1000, "system evaluations to time")

	modulesCmd := &cobra.Command{
		Use:   "modules [name]",
		Short: "list modules or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listModules,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in scenarios",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot stored run columns",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&plotVars, "var", nil, "columns to plot (default: tissue masses)")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "write a stored run as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write a stored run as csv",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "draw stored run columns as an svg chart",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	exportSVGCmd.Flags().StringSliceVar(&plotVars, "var", nil, "columns to draw (default: tissue masses)")
	exportSVGCmd.Flags().IntVar(&svgWidth, "width", 800, "image width")
	exportSVGCmd.Flags().IntVar(&svgHeight, "height", 400, "image height")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run a scenario over a parameter grid and rank one metric",
		Args:  cobra.NoArgs,
		RunE:  sweepScenario,
	}
	scenarioFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&axes, "axis", nil, "grid axis, name=v1,v2 or name=lo:hi:n (repeatable)")
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "", "metric to rank by, for example final_Leaf")
	sweepCmd.Flags().BoolVar(&maximize, "max", false, "rank the largest value first")
	_ = sweepCmd.MarkFlagRequired("axis")
	_ = sweepCmd.MarkFlagRequired("metric")

	rootCmd.AddCommand(runCmd, validateCmd, watchCmd, benchCmd, sweepCmd, modulesCmd, presetsCmd,
		listCmd, plotCmd, exportJSONCmd, exportCSVCmd, exportSVGCmd)
	return rootCmd
}

func scenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "built-in scenario name")
	cmd.Flags().StringVar(&configFile, "config", "", "scenario file (.yaml or .hcl)")
	cmd.Flags().StringVar(&integrator, "integrator", "", "outer integrator (euler, rk4)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a value, name=value (repeatable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log system construction")
}

// setup reads the environment, lets flags override it and installs the
// logger on the command context.
func setup(cmd *cobra.Command) error {
	s, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if dataDir != "" {
		s.DataDir = dataDir
	}
	if storageKind != "" {
		s.Storage = storageKind
	}
	if logLevel != "" {
		s.LogLevel = logLevel
	}
	if logFormat != "" {
		s.LogFormat = logFormat
	}
	settings = s

	logger := ctxlog.New(s.LogLevel, s.LogFormat, os.Stderr)
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}

// loadScenario resolves --config or --preset and applies the overrides.
func loadScenario() (*config.Scenario, error) {
	var (
		sc  *config.Scenario
		err error
	)
	switch {
	case configFile != "":
		sc, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	case preset != "":
		sc = config.GetPreset(preset)
		if sc == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	default:
		return nil, errors.New("a scenario is required: use --preset or --config")
	}

	if sc.Integrator == "" {
		sc.Integrator = settings.Integrator
	}
	if integrator != "" {
		sc.Integrator = integrator
	}
	for _, s := range sets {
		if err := sc.Set(s); err != nil {
			return nil, err
		}
	}
	if verbose {
		sc.Verbose = true
	}
	return sc, nil
}

func openStorage() (storage.Backend, error) {
	return storage.Open(settings.Storage, settings.DataDir)
}

func runScenario(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := loadScenario()
	if err != nil {
		return err
	}
	exp, err := experiment.New(ctx, sc, modules.Default())
	if err != nil {
		return explain(err)
	}

	if live {
		r := tui.NewLiveRenderer(os.Stdout, exp.System(), frameRate)
		exp.GetSimulator().AddObserver(r)
		r.Start()
		defer r.Stop()
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("running scenario", "scenario", sc.Name, "integrator", sc.Integrator, "points", exp.System().NumTimes())
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Println(titleStyle.Render(sc.Name))
	printField("integrator", sc.Integrator)
	printField("steps", fmt.Sprint(result.StepsTaken))
	printField("elapsed", elapsed.Round(time.Microsecond).String())
	if st, ok := exp.GrowthStats(); ok {
		printField("growth", fmt.Sprintf("%d evaluations, %d refinements, %d exhausted, max %d inner steps",
			st.Evaluations, st.Refinements, st.Exhausted, st.MaxSteps))
	}
	for _, e := range result.Errors {
		fmt.Println(warnStyle.Render("  warning: " + e.Error()))
	}

	if len(result.Metrics) > 0 {
		fmt.Println(titleStyle.Render("metrics"))
		for _, name := range sortedKeys(result.Metrics) {
			printField(name, fmt.Sprintf("%.6f", result.Metrics[name]))
		}
	}

	if noSave {
		return nil
	}
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()
	runID, err := st.Save(exp.Metadata(result), result)
	if err != nil {
		return err
	}
	printField("run id", runID)
	return nil
}

func validateScenario(cmd *cobra.Command, args []string) error {
	sc, err := loadScenario()
	if err != nil {
		return err
	}
	exp, err := experiment.New(cmd.Context(), sc, modules.Default())
	if err != nil {
		return explain(err)
	}

	sys := exp.System()
	fmt.Println(titleStyle.Render(sc.Name) + " " + valueStyle.Render("ok"))
	printField("time points", fmt.Sprint(sys.NumTimes()))
	printField("timestep", fmt.Sprintf("%g h", sys.Timestep()))
	printField("steady state", strings.Join(sys.SteadyStateModules(), ", "))
	printField("derivative", strings.Join(sys.DerivativeModules(), ", "))
	printField("state", strings.Join(sys.StateNames(), ", "))
	return nil
}

// explain prints every defect of a build error in a table before returning it.
func explain(err error) error {
	var be *dynamo.BuildError
	if !errors.As(err, &be) {
		return err
	}
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tPARAMETER\tMODULE\tDETAIL")
	for _, d := range be.Defects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Kind, dash(d.Parameter), dash(d.Module), d.Detail)
	}
	w.Flush()
	return fmt.Errorf("scenario is invalid: %d defects", len(be.Defects))
}

func watchScenario(cmd *cobra.Command, args []string) error {
	var sc *config.Scenario
	if preset != "" || configFile != "" {
		var err error
		if sc, err = loadScenario(); err != nil {
			return err
		}
	}
	// build diagnostics would tear the alternate screen
	ctx := ctxlog.WithLogger(cmd.Context(), ctxlog.Discard())
	return tui.RunWatch(ctx, sc)
}

func printField(label, value string) {
	fmt.Printf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label)), valueStyle.Render(value))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
