package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	sim "therapist-effects/domain/stats"
)

// Nominal percentile bounds of a 95% interval
const (
	LowerPercentile = 0.025
	UpperPercentile = 0.975
)

// PercentileInterval returns the [2.5%, 97.5%] interval of draws after
// dropping non-finite values. draws is not modified.
func PercentileInterval(draws []float64) (sim.Interval, error) {
	return QuantileInterval(draws, LowerPercentile, UpperPercentile)
}

// QuantileInterval returns the interval between two quantiles of draws,
// linearly interpolated on the empirical CDF.
func QuantileInterval(draws []float64, lower, upper float64) (sim.Interval, error) {
	if !(lower >= 0 && lower < upper && upper <= 1) {
		return sim.Interval{}, fmt.Errorf("invalid quantiles [%v, %v]", lower, upper)
	}
	finite := make([]float64, 0, len(draws))
	for _, v := range draws {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) < 2 {
		return sim.Interval{}, fmt.Errorf("need at least two finite draws, got %d", len(finite))
	}
	sort.Float64s(finite)
	return sim.Interval{
		Lower: stat.Quantile(lower, stat.LinInterp, finite, nil),
		Upper: stat.Quantile(upper, stat.LinInterp, finite, nil),
	}, nil
}
