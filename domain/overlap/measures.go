// Package overlap converts a treatment effect and a variance-partition
// coefficient into distribution-overlap effect sizes for the cluster-level
// (therapist) effect distributions of two arms.
package overlap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"therapist-effects/domain/core"
)

// Measures holds the three overlap effect sizes.
type Measures struct {
	Overlap                  float64 `json:"overlap"`
	U3                       float64 `json:"u3"`
	ProbabilityOfSuperiority float64 `json:"probability_of_superiority"`
}

func phi(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// Overlap is 2*Phi(-|d| / (2*sqrt(icc))).
func Overlap(d, icc float64) float64 {
	if d == 0 {
		return 1
	}
	return 2 * phi(-math.Abs(d)/(2*math.Sqrt(icc)))
}

// U3 is Cohen's U3, Phi(d / sqrt(icc)).
func U3(d, icc float64) float64 {
	if d == 0 {
		return 0.5
	}
	return phi(d / math.Sqrt(icc))
}

// ProbabilityOfSuperiority is Phi(d / (sqrt(icc)*sqrt(2))).
func ProbabilityOfSuperiority(d, icc float64) float64 {
	if d == 0 {
		return 0.5
	}
	return phi(d / (math.Sqrt(icc) * math.Sqrt2))
}

// OverlapRaw is the unstandardized form 2*Phi(-|ate| / (2*clusterSD)).
func OverlapRaw(ate, clusterSD float64) float64 {
	if ate == 0 {
		return 1
	}
	return 2 * phi(-math.Abs(ate)/(2*clusterSD))
}

// U3Raw is Phi(ate / clusterSD).
func U3Raw(ate, clusterSD float64) float64 {
	if ate == 0 {
		return 0.5
	}
	return phi(ate / clusterSD)
}

// ProbabilityOfSuperiorityRaw is Phi(ate / (clusterSD*sqrt(2))).
func ProbabilityOfSuperiorityRaw(ate, clusterSD float64) float64 {
	if ate == 0 {
		return 0.5
	}
	return phi(ate / (clusterSD * math.Sqrt2))
}

// Compute validates (d, icc) and returns all three measures.
func Compute(d, icc float64) (Measures, error) {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return Measures{}, core.NewConfigError("effect", fmt.Sprintf("must be finite, got %v", d))
	}
	if !(icc > 0 && icc <= 1) && !(icc == 0 && d == 0) {
		return Measures{}, fmt.Errorf("%w: icc=%v", core.ErrICCOutOfRange, icc)
	}
	return Measures{
		Overlap:                  Overlap(d, icc),
		U3:                       U3(d, icc),
		ProbabilityOfSuperiority: ProbabilityOfSuperiority(d, icc),
	}, nil
}

// ComputeRaw returns the measures from an unstandardized effect and cluster SD.
func ComputeRaw(ate, clusterSD float64) (Measures, error) {
	if math.IsNaN(ate) || math.IsInf(ate, 0) {
		return Measures{}, core.NewConfigError("effect", fmt.Sprintf("must be finite, got %v", ate))
	}
	if math.IsNaN(clusterSD) || clusterSD < 0 || (clusterSD == 0 && ate != 0) {
		return Measures{}, core.NewConfigError("cluster_sd", fmt.Sprintf("must be positive, got %v", clusterSD))
	}
	return Measures{
		Overlap:                  OverlapRaw(ate, clusterSD),
		U3:                       U3Raw(ate, clusterSD),
		ProbabilityOfSuperiority: ProbabilityOfSuperiorityRaw(ate, clusterSD),
	}, nil
}

// Standardize maps raw (ate, clusterSD, totalSD) onto (d, icc).
func Standardize(ate, clusterSD, totalSD float64) (d, icc float64) {
	return ate / totalSD, (clusterSD * clusterSD) / (totalSD * totalSD)
}

// CurvePoint is one row of an overlap-vs-ICC curve.
type CurvePoint struct {
	ICC float64 `json:"icc"`
	Measures
}

// Curve evaluates the measures for a fixed d over icc in [from, to] with the
// given step. Points with icc <= 0 are skipped.
func Curve(d, from, to, step float64) ([]CurvePoint, error) {
	if !(step > 0) || to < from {
		return nil, core.NewConfigError("curve", "need step > 0 and to >= from")
	}
	n := int(math.Floor((to-from)/step+1e-9)) + 1
	points := make([]CurvePoint, 0, n)
	for i := 0; i < n; i++ {
		icc := from + float64(i)*step
		if icc <= 0 {
			continue
		}
		if icc > 1 && icc-1 < 1e-9 {
			icc = 1
		}
		m, err := Compute(d, icc)
		if err != nil {
			return nil, err
		}
		points = append(points, CurvePoint{ICC: icc, Measures: m})
	}
	return points, nil
}
