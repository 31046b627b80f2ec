package optim

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/san-kum/cropsim/internal/config"
	"github.com/san-kum/cropsim/internal/experiment"
	"github.com/san-kum/cropsim/internal/modules"
)

func thermalBuilder(ctx context.Context) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		sc := config.GetPreset("thermal_time")
		sc.Weather.Days = 2
		for name, v := range params {
			if err := sc.Set(fmt.Sprintf("%s=%g", name, v)); err != nil {
				return nil, err
			}
		}
		return experiment.New(ctx, sc, modules.Default())
	}
}

func TestGridSearchRanksThermalTime(t *testing.T) {
	ctx := context.Background()
	g, err := NewGridSearch([]string{"tbase"}, [][]float64{{6, 10, 14}})
	if err != nil {
		t.Fatal(err)
	}

	best, all, err := g.Search(ctx, thermalBuilder(ctx), "final_TTc")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 points, got %d", len(all))
	}
	if best.Params["tbase"] != 14 {
		t.Errorf("expected the highest base temperature to minimise thermal time, got %v", best.Params)
	}

	best, _, err = g.Maximize().Search(ctx, thermalBuilder(ctx), "final_TTc")
	if err != nil {
		t.Fatal(err)
	}
	if best.Params["tbase"] != 6 {
		t.Errorf("expected the lowest base temperature to maximise thermal time, got %v", best.Params)
	}
	if !(all[0].Value > all[1].Value && all[1].Value > all[2].Value) {
		t.Errorf("expected thermal time to fall with tbase: %v %v %v", all[0].Value, all[1].Value, all[2].Value)
	}
}

func TestGridSearchVisitsEveryCombination(t *testing.T) {
	ctx := context.Background()
	g, err := NewGridSearch([]string{"tbase", "TTc"}, [][]float64{{8, 12}, {0, 100, 200}})
	if err != nil {
		t.Fatal(err)
	}
	if g.Size() != 6 {
		t.Fatalf("expected 6 grid points, got %d", g.Size())
	}

	_, all, err := g.Search(ctx, thermalBuilder(ctx), "final_TTc")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 points, got %d", len(all))
	}
	if all[0].Params["tbase"] != 8 || all[0].Params["TTc"] != 0 || all[5].Params["tbase"] != 12 || all[5].Params["TTc"] != 200 {
		t.Errorf("unexpected order: first %v last %v", all[0].Params, all[5].Params)
	}
}

func TestGridSearchRecordsFailures(t *testing.T) {
	ctx := context.Background()
	g, _ := NewGridSearch([]string{"tbase"}, [][]float64{{10}})

	_, all, err := g.Search(ctx, thermalBuilder(ctx), "peak_Leaf")
	if !errors.Is(err, ErrNoPoints) {
		t.Fatalf("expected ErrNoPoints, got %v", err)
	}
	if len(all) != 1 || all[0].Err == nil {
		t.Errorf("expected the failed point to be recorded, got %+v", all)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := g.Search(cancelled, thermalBuilder(ctx), "final_TTc"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewGridSearchValidates(t *testing.T) {
	if _, err := NewGridSearch(nil, nil); err == nil {
		t.Error("expected an error for an empty grid")
	}
	if _, err := NewGridSearch([]string{"a"}, [][]float64{{}}); err == nil {
		t.Error("expected an error for an empty range")
	}
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		in   string
		name string
		want []float64
		ok   bool
	}{
		{"tbase=8,10,12", "tbase", []float64{8, 10, 12}, true},
		{" tbase = 8 , 9", "tbase", []float64{8, 9}, true},
		{"lue=0:1:5", "lue", []float64{0, 0.25, 0.5, 0.75, 1}, true},
		{"lue=2:3:1", "lue", []float64{2}, true},
		{"lue=0:1:0", "", nil, false},
		{"tbase", "", nil, false},
		{"tbase=a,b", "", nil, false},
	}
	for _, tt := range tests {
		name, got, err := ParseAxis(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseAxis(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.ok {
			continue
		}
		if name != tt.name || len(got) != len(tt.want) {
			t.Errorf("ParseAxis(%q) = %s %v, want %s %v", tt.in, name, got, tt.name, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ParseAxis(%q)[%d] = %v, want %v", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
