package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FitnessDiagnostics summarises one population's fitness distribution.
type FitnessDiagnostics struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	BestIndex int     `json:"best_index"`
}

// Diagnose computes mean, sample standard deviation and the extremes
// of a fitness slice.
func Diagnose(fitnesses []float64) (FitnessDiagnostics, error) {
	if len(fitnesses) == 0 {
		return FitnessDiagnostics{}, fmt.Errorf("stats: no fitnesses to diagnose")
	}
	d := FitnessDiagnostics{
		Count:     len(fitnesses),
		Mean:      stat.Mean(fitnesses, nil),
		Min:       floats.Min(fitnesses),
		Max:       floats.Max(fitnesses),
		BestIndex: floats.MaxIdx(fitnesses),
	}
	if len(fitnesses) > 1 {
		d.StdDev = stat.StdDev(fitnesses, nil)
	}
	return d, nil
}
