// Package profiling describes the shape of simulated sampling distributions.
// A skewed or heavy-tailed estimator distribution makes the mean-based bias
// summary and the normal-theory intervals less trustworthy.
package profiling

import (
	"errors"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	sim "therapist-effects/domain/stats"
)

// ErrTooFewValues is returned when fewer than four finite values remain
var ErrTooFewValues = errors.New("at least 4 finite values are required")

// Shape summarizes one sampling distribution
type Shape struct {
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"sd"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	// JarqueBera is n/6 * (S^2 + (K-3)^2/4), chi-squared with 2 df under normality
	JarqueBera float64 `json:"jarque_bera"`
	NormalP    float64 `json:"normal_p"`
	Outliers   int     `json:"outliers"`
}

// EstimateShape is the shape of one (model, parameter) column of estimates
type EstimateShape struct {
	Model     string        `json:"model"`
	Parameter sim.Parameter `json:"parameter"`
	Shape
}

// Analyze computes the shape of data. Non-finite values are ignored.
func Analyze(data []float64) (Shape, error) {
	finite := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) < 4 {
		return Shape{}, ErrTooFewValues
	}

	shape := Shape{N: len(finite)}
	var err error
	if shape.Mean, err = stats.Mean(finite); err != nil {
		return Shape{}, err
	}
	if shape.StdDev, err = stats.StandardDeviationSample(finite); err != nil {
		return Shape{}, err
	}
	if shape.Median, err = stats.Median(finite); err != nil {
		return Shape{}, err
	}
	if shape.Q25, err = stats.Percentile(finite, 25); err != nil {
		return Shape{}, err
	}
	if shape.Q75, err = stats.Percentile(finite, 75); err != nil {
		return Shape{}, err
	}

	shape.Skewness, shape.Kurtosis = moments(finite, shape.Mean)
	n := float64(shape.N)
	excess := shape.Kurtosis - 3
	shape.JarqueBera = n / 6 * (shape.Skewness*shape.Skewness + excess*excess/4)
	shape.NormalP = 1 - distuv.ChiSquared{K: 2}.CDF(shape.JarqueBera)
	shape.Outliers = outliers(finite, shape.Q25, shape.Q75)
	return shape, nil
}

// moments returns the population skewness and kurtosis. A constant sample
// has skewness 0 and the normal kurtosis 3.
func moments(data []float64, mean float64) (skewness, kurtosis float64) {
	var m2, m3, m4 float64
	for _, x := range data {
		d := x - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	n := float64(len(data))
	m2, m3, m4 = m2/n, m3/n, m4/n
	if m2 == 0 {
		return 0, 3
	}
	return m3 / math.Pow(m2, 1.5), m4 / (m2 * m2)
}

// outliers counts values beyond 1.5 IQR from the quartiles
func outliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lower, upper := q25-1.5*iqr, q75+1.5*iqr
	count := 0
	for _, x := range data {
		if x < lower || x > upper {
			count++
		}
	}
	return count
}

// AnalyzeEstimates groups successful estimates by (model, parameter) and
// profiles every group with enough values. Groups are sorted by model, then
// parameter.
func AnalyzeEstimates(estimates []sim.Estimate) []EstimateShape {
	type key struct {
		model string
		param sim.Parameter
	}
	groups := make(map[key][]float64)
	for _, e := range estimates {
		if e.Failed {
			continue
		}
		k := key{e.Model, e.Parameter}
		groups[k] = append(groups[k], e.Value)
	}

	shapes := make([]EstimateShape, 0, len(groups))
	for k, values := range groups {
		shape, err := Analyze(values)
		if err != nil {
			continue
		}
		shapes = append(shapes, EstimateShape{Model: k.model, Parameter: k.param, Shape: shape})
	}
	sort.Slice(shapes, func(i, j int) bool {
		if shapes[i].Model != shapes[j].Model {
			return shapes[i].Model < shapes[j].Model
		}
		return shapes[i].Parameter < shapes[j].Parameter
	})
	return shapes
}
