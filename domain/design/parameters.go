// Package design resolves the user-facing knobs of a clustered two-arm trial
// into an internally consistent, immutable set of generative parameters.
package design

import (
	"fmt"
	"math"

	"therapist-effects/domain/core"
)

// Knobs are the user-facing inputs of a simulation configuration.
type Knobs struct {
	ICC                float64 `json:"icc" yaml:"icc"`
	ErrorSD            float64 `json:"error_sd" yaml:"error_sd"`
	ConfoundICC        float64 `json:"confound_icc" yaml:"confound_icc"`
	CohensD            float64 `json:"cohens_d" yaml:"cohens_d"`
	PatientsPerCluster int     `json:"n1" yaml:"n1"`
	ClustersPerArm     int     `json:"n2" yaml:"n2"`
}

// DefaultKnobs returns the configuration of the confounding-bias study.
func DefaultKnobs() Knobs {
	return Knobs{
		ICC:                0.05,
		ErrorSD:            1.5,
		ConfoundICC:        0.05,
		CohensD:            0.5,
		PatientsPerCluster: 20,
		ClustersPerArm:     10,
	}
}

// Validate checks the knob domains. All failures are configuration errors.
func (k Knobs) Validate() error {
	if !(k.ICC >= 0 && k.ICC < 1) {
		return fmt.Errorf("%w: icc=%v", core.ErrICCOutOfRange, k.ICC)
	}
	if !(k.ConfoundICC >= 0 && k.ConfoundICC < 1) {
		return fmt.Errorf("%w: confound_icc=%v", core.ErrICCOutOfRange, k.ConfoundICC)
	}
	if !(k.ErrorSD > 0) {
		return fmt.Errorf("%w: error_sd=%v", core.ErrNonPositive, k.ErrorSD)
	}
	if math.IsNaN(k.CohensD) || math.IsInf(k.CohensD, 0) {
		return core.NewConfigError("cohens_d", "must be finite")
	}
	if k.PatientsPerCluster <= 0 {
		return fmt.Errorf("%w: n1=%d", core.ErrNonPositive, k.PatientsPerCluster)
	}
	if k.ClustersPerArm <= 0 {
		return fmt.Errorf("%w: n2=%d", core.ErrNonPositive, k.ClustersPerArm)
	}
	if k.ClustersPerArm%2 != 0 {
		return fmt.Errorf("%w: n2=%d", core.ErrOddClusters, k.ClustersPerArm)
	}
	return nil
}

// WithClustersPerArm returns a copy with a different cluster count.
func (k Knobs) WithClustersPerArm(n2 int) Knobs {
	k.ClustersPerArm = n2
	return k
}

// Parameters is the immutable, fully derived generative configuration.
// Fields are exported for encoding only; construct with Resolve.
type Parameters struct {
	PatientsPerCluster     int     `json:"n_patients_per_cluster"`
	ClustersPerArm         int     `json:"n_clusters_per_arm"`
	ClusterSD              float64 `json:"cluster_sd"`
	ClusterConfoundSD      float64 `json:"cluster_confound_sd"`
	ConfoundMeanShift      float64 `json:"confound_mean_shift"`
	ErrorSD                float64 `json:"error_sd"`
	TotalSD                float64 `json:"total_sd"`
	AverageTreatmentEffect float64 `json:"average_treatment_effect"`
	ICC                    float64 `json:"icc"`
	CohensD                float64 `json:"cohens_d"`
	TotalN                 int     `json:"total_n"`
	DegreesOfFreedom       int     `json:"degrees_of_freedom"`
}

// Resolve derives Parameters from knobs. No randomness is involved.
func Resolve(k Knobs) (Parameters, error) {
	if err := k.Validate(); err != nil {
		return Parameters{}, err
	}

	clusterSD, err := ClusterSDFromICC(k.ICC, k.ErrorSD)
	if err != nil {
		return Parameters{}, err
	}
	confoundSD, err := ClusterSDFromICC(k.ConfoundICC, k.ErrorSD)
	if err != nil {
		return Parameters{}, err
	}

	totalSD := TotalSD(clusterSD, confoundSD, k.ErrorSD)

	return Parameters{
		PatientsPerCluster:     k.PatientsPerCluster,
		ClustersPerArm:         k.ClustersPerArm,
		ClusterSD:              clusterSD,
		ClusterConfoundSD:      confoundSD,
		ConfoundMeanShift:      ConfoundMeanShift(confoundSD, k.ClustersPerArm),
		ErrorSD:                k.ErrorSD,
		TotalSD:                totalSD,
		AverageTreatmentEffect: DeriveATE(k.CohensD, totalSD),
		ICC:                    k.ICC,
		CohensD:                k.CohensD,
		TotalN:                 2 * k.PatientsPerCluster * k.ClustersPerArm,
		DegreesOfFreedom:       2*k.ClustersPerArm - 2,
	}, nil
}

// Clusters returns the total number of clusters across both arms.
func (p Parameters) Clusters() int { return 2 * p.ClustersPerArm }

// ClusterVariance is the true variance of the cluster random intercept.
func (p Parameters) ClusterVariance() float64 { return p.ClusterSD * p.ClusterSD }

// ErrorVariance is the true residual variance.
func (p Parameters) ErrorVariance() float64 { return p.ErrorSD * p.ErrorSD }

// ClusterSDFromICC returns the cluster SD that yields icc against error_sd:
// sqrt(icc/(1-icc)) * error_sd.
func ClusterSDFromICC(icc, errorSD float64) (float64, error) {
	if !(icc >= 0 && icc < 1) {
		return 0, fmt.Errorf("%w: icc=%v", core.ErrICCOutOfRange, icc)
	}
	return math.Sqrt(icc/(1-icc)) * errorSD, nil
}

// ICCFromSD is the inverse of ClusterSDFromICC.
func ICCFromSD(clusterSD, errorSD float64) float64 {
	cv := clusterSD * clusterSD
	ev := errorSD * errorSD
	if cv+ev == 0 {
		return 0
	}
	return cv / (cv + ev)
}

// ConfoundMeanShift solves for the mean difference M between two equally sized
// groups of clusters (n2 each, 2*n2 in total) whose pooled sample SD equals
// confoundSD: M = 2*sqrt(sd^2 * (2*n2-1) / (2*n2)).
func ConfoundMeanShift(confoundSD float64, n2 int) float64 {
	n := float64(2 * n2)
	return 2 * math.Sqrt(confoundSD*confoundSD*(n-1)/n)
}

// PooledSD is the sample SD (n-1 denominator) of n2 values at 0 and n2 values
// at shift, the forward direction of ConfoundMeanShift.
func PooledSD(shift float64, n2 int) float64 {
	n := float64(2 * n2)
	return math.Sqrt(shift * shift / 4 * n / (n - 1))
}

// TotalSD combines the cluster, confound and error components.
func TotalSD(clusterSD, confoundSD, errorSD float64) float64 {
	return math.Sqrt(clusterSD*clusterSD + confoundSD*confoundSD + errorSD*errorSD)
}

// DeriveATE converts a standardized effect into the raw treatment effect.
func DeriveATE(cohensD, totalSD float64) float64 {
	return cohensD * totalSD
}
