package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/cropsim/internal/sim"
)

// Weather describes a synthetic driver series: a clear-sky sine for solar
// radiation and a daily temperature wave peaking mid afternoon.
type Weather struct {
	StartDoy  int     `yaml:"start_doy" hcl:"start_doy,optional"`
	Days      int     `yaml:"days" hcl:"days"`
	PeakSolar float64 `yaml:"peak_solar" hcl:"peak_solar,optional"`
	MinTemp   float64 `yaml:"min_temp" hcl:"min_temp,optional"`
	MaxTemp   float64 `yaml:"max_temp" hcl:"max_temp,optional"`
	// Cloudiness in [0, 1] scales down solar radiation by a random factor
	// per day, reproducible through Seed.
	Cloudiness float64 `yaml:"cloudiness,omitempty" hcl:"cloudiness,optional"`
	Seed       uint64  `yaml:"seed,omitempty" hcl:"seed,optional"`
}

// GenerateWeather returns doy, hour, solar and temp series at the given
// timestep in hours.
func GenerateWeather(w Weather, timestep float64) (map[string][]float64, error) {
	if !(timestep > 0) || timestep > 24 {
		return nil, fmt.Errorf("weather: timestep %g must be in (0, 24]", timestep)
	}
	if w.Days <= 0 {
		return nil, fmt.Errorf("weather: days must be positive, got %d", w.Days)
	}
	if w.Cloudiness < 0 || w.Cloudiness > 1 {
		return nil, fmt.Errorf("weather: cloudiness %g must be in [0, 1]", w.Cloudiness)
	}
	start := w.StartDoy
	if start == 0 {
		start = 1
	}

	n := int(float64(w.Days) * 24 / timestep)
	doy := make([]float64, n)
	hour := make([]float64, n)
	solar := make([]float64, n)
	temp := make([]float64, n)

	rng := rand.New(rand.NewPCG(w.Seed, w.Seed^0x9e3779b97f4a7c15))
	clearness := make([]float64, w.Days+1)
	for d := range clearness {
		clearness[d] = 1 - w.Cloudiness*rng.Float64()
	}

	mean := (w.MaxTemp + w.MinTemp) / 2
	amp := (w.MaxTemp - w.MinTemp) / 2
	for i := range n {
		elapsed := float64(i) * timestep
		day := math.Floor(elapsed / 24)
		h := elapsed - 24*day
		doy[i] = float64(start) + day
		hour[i] = h
		if h > 6 && h < 18 {
			solar[i] = w.PeakSolar * clearness[int(day)] * math.Sin(math.Pi*(h-6)/12)
		}
		temp[i] = mean + amp*math.Sin(2*math.Pi*(h-9)/24)
	}

	return map[string][]float64{
		sim.ParamDoy:  doy,
		sim.ParamHour: hour,
		"solar":       solar,
		"temp":        temp,
	}, nil
}

func LoadWeatherFile(path string) (map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	series, err := ReadWeather(f)
	if err != nil {
		return nil, fmt.Errorf("weather file %s: %w", path, err)
	}
	return series, nil
}

// ReadWeather parses a CSV whose header names the series; every following
// row holds one time point. Lines starting with # are ignored.
func ReadWeather(r io.Reader) (map[string][]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty weather file")
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	series := make(map[string][]float64, len(header))
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		for i, field := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			series[header[i]] = append(series[header[i]], v)
		}
	}
	return series, nil
}
