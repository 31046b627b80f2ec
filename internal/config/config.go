// Package config loads simulation scenarios, weather series and runtime
// settings.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/cropsim/internal/sim"
)

const DefaultIntegrator = "rk4"

var ErrUnsupportedFormat = errors.New("config: unsupported scenario format")

// Scenario is a complete simulation input: parameters, module lists and
// where the time-varying drivers come from.
type Scenario struct {
	Name               string               `yaml:"name" hcl:"name,optional"`
	Integrator         string               `yaml:"integrator" hcl:"integrator,optional"`
	Verbose            bool                 `yaml:"verbose,omitempty" hcl:"verbose,optional"`
	InitialState       map[string]float64   `yaml:"initial_state" hcl:"initial_state,optional"`
	Parameters         map[string]float64   `yaml:"parameters" hcl:"parameters,optional"`
	Varying            map[string][]float64 `yaml:"varying,omitempty" hcl:"varying,optional"`
	WeatherFile        string               `yaml:"weather_file,omitempty" hcl:"weather_file,optional"`
	Weather            *Weather             `yaml:"weather,omitempty" hcl:"weather,block"`
	SteadyStateModules []string             `yaml:"steady_state_modules" hcl:"steady_state_modules,optional"`
	DerivativeModules  []string             `yaml:"derivative_modules" hcl:"derivative_modules,optional"`
	Metrics            []string             `yaml:"metrics,omitempty" hcl:"metrics,optional"`

	// dir resolves a relative WeatherFile; set by Load.
	dir string
}

func DefaultScenario() *Scenario {
	return &Scenario{
		Name:         "scenario",
		Integrator:   DefaultIntegrator,
		InitialState: map[string]float64{},
		Parameters:   map[string]float64{},
	}
}

// Load reads a scenario from a .yaml, .yml or .hcl file. An omitted
// integrator stays empty so callers can apply their own default.
func Load(path string) (*Scenario, error) {
	var (
		s   *Scenario
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		s, err = loadYAML(path)
	case ".hcl":
		s, err = loadHCL(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

func loadYAML(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := DefaultScenario()
	s.Name = ""
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", path, err)
	}
	return s, nil
}

func loadHCL(path string) (*Scenario, error) {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	s := DefaultScenario()
	s.Name = ""
	diags = gohcl.DecodeBody(file.Body, nil, s)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return s, nil
}

// Save writes a scenario as YAML.
func Save(path string, s *Scenario) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML can be written)", ErrUnsupportedFormat, path)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Definition assembles the builder input. Weather comes from WeatherFile or
// the synthetic Weather block; explicit Varying series override both.
func (s *Scenario) Definition() (sim.Definition, error) {
	varying := make(map[string][]float64)
	switch {
	case s.WeatherFile != "":
		path := s.WeatherFile
		if !filepath.IsAbs(path) && s.dir != "" {
			path = filepath.Join(s.dir, path)
		}
		w, err := LoadWeatherFile(path)
		if err != nil {
			return sim.Definition{}, err
		}
		varying = w
	case s.Weather != nil:
		w, err := GenerateWeather(*s.Weather, s.Parameters[sim.ParamTimestep])
		if err != nil {
			return sim.Definition{}, err
		}
		varying = w
	}
	for name, series := range s.Varying {
		varying[name] = slices.Clone(series)
	}

	return sim.Definition{
		InitialState: maps.Clone(s.InitialState),
		Invariant:    maps.Clone(s.Parameters),
		Varying:      varying,
		SteadyState:  slices.Clone(s.SteadyStateModules),
		Derivative:   slices.Clone(s.DerivativeModules),
		Verbose:      s.Verbose,
	}, nil
}

// Set overrides one parameter from a "name=value" string. Names that are
// state variables change the initial state; anything else is an invariant.
func (s *Scenario) Set(assignment string) error {
	name, raw, ok := strings.Cut(assignment, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("parameter override %q: want name=value", assignment)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("parameter override %q: %w", assignment, err)
	}
	if _, ok := s.InitialState[name]; ok {
		s.InitialState[name] = v
		return nil
	}
	if s.Parameters == nil {
		s.Parameters = map[string]float64{}
	}
	s.Parameters[name] = v
	return nil
}
