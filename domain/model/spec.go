// Package model describes the statistical models fitted to every replicate
// and the estimates a fitter hands back.
package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"therapist-effects/domain/dataset"
)

// Term is a fixed-effect regressor
type Term string

const (
	TermIntercept Term = "intercept"
	TermTreatment Term = "treatment"
	TermCovariate Term = "covariate"
)

// Spec is one (outcome, fixed terms, clustering) triple. Grouping is empty
// for models without a cluster random intercept.
type Spec struct {
	Name     string         `json:"name"`
	Outcome  dataset.Column `json:"outcome"`
	Terms    []Term         `json:"terms"`
	Grouping dataset.Column `json:"grouping,omitempty"`
}

// Clustered reports whether the model has a cluster random intercept
func (s Spec) Clustered() bool {
	return s.Grouping != ""
}

// Formula renders the spec in the usual y ~ x + (1 | g) notation
func (s Spec) Formula() string {
	f := string(s.Outcome) + " ~"
	for i, term := range s.Terms {
		if i > 0 {
			f += " +"
		}
		f += " " + string(term)
	}
	if s.Clustered() {
		f += " + (1 | " + string(s.Grouping) + ")"
	}
	return f
}

// Validate checks that the spec refers to real columns and includes treatment
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("model spec needs a name")
	}
	if s.Outcome != dataset.ColConfoundedOutcome && s.Outcome != dataset.ColRandomOutcome {
		return fmt.Errorf("model %s: outcome %q is not an outcome column", s.Name, s.Outcome)
	}
	if s.Grouping != "" && s.Grouping != dataset.ColConfoundedCluster && s.Grouping != dataset.ColRandomCluster {
		return fmt.Errorf("model %s: grouping %q is not a cluster column", s.Name, s.Grouping)
	}
	hasTreatment := false
	for _, term := range s.Terms {
		switch term {
		case TermTreatment:
			hasTreatment = true
		case TermCovariate:
		default:
			return fmt.Errorf("model %s: unsupported term %q", s.Name, term)
		}
	}
	if !hasTreatment {
		return fmt.Errorf("model %s: treatment term is required", s.Name)
	}
	return nil
}

// Battery is the fixed set of models applied to every replicate
type Battery []Spec

// Model names of the default battery
const (
	ConfoundedOLS          = "conf_ols"
	ConfoundedOLSCovariate = "conf_ols_cov"
	ConfoundedLMM          = "conf_lmm"
	ConfoundedLMMCovariate = "conf_lmm_cov"
	RandomOLS              = "rand_ols"
	RandomLMM              = "rand_lmm"
)

// DefaultBattery returns the six models of the confounding-bias study: the four
// combinations of covariate adjustment and clustering on the confounded
// assignment, plus the unadjusted pair on the random assignment.
func DefaultBattery() Battery {
	treatment := []Term{TermTreatment}
	adjusted := []Term{TermTreatment, TermCovariate}
	return Battery{
		{Name: ConfoundedOLS, Outcome: dataset.ColConfoundedOutcome, Terms: treatment},
		{Name: ConfoundedOLSCovariate, Outcome: dataset.ColConfoundedOutcome, Terms: adjusted},
		{Name: ConfoundedLMM, Outcome: dataset.ColConfoundedOutcome, Terms: treatment, Grouping: dataset.ColConfoundedCluster},
		{Name: ConfoundedLMMCovariate, Outcome: dataset.ColConfoundedOutcome, Terms: adjusted, Grouping: dataset.ColConfoundedCluster},
		{Name: RandomOLS, Outcome: dataset.ColRandomOutcome, Terms: treatment},
		{Name: RandomLMM, Outcome: dataset.ColRandomOutcome, Terms: treatment, Grouping: dataset.ColRandomCluster},
	}
}

// Validate checks every spec and name uniqueness
func (b Battery) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("model battery is empty")
	}
	seen := make(map[string]bool, len(b))
	for _, s := range b {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate model name %s", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Lookup finds a spec by name
func (b Battery) Lookup(name string) (Spec, bool) {
	for _, s := range b {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// Coefficient is one fixed-effect estimate
type Coefficient struct {
	Estimate float64 `json:"estimate"`
	StdError float64 `json:"std_error"`
	DF       float64 `json:"df"`
	TValue   float64 `json:"t_value"`
	PValue   float64 `json:"p_value"`
}

// NewCoefficient fills in the t statistic and two-sided p-value
func NewCoefficient(estimate, stdErr, df float64) Coefficient {
	c := Coefficient{Estimate: estimate, StdError: stdErr, DF: df}
	if stdErr > 0 && df > 0 {
		c.TValue = estimate / stdErr
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		c.PValue = 2 * (1 - t.CDF(math.Abs(c.TValue)))
	} else {
		c.PValue = 1
	}
	return c
}

// ConfInt returns the two-sided t interval at the given level
func (c Coefficient) ConfInt(level float64) (lower, upper float64) {
	if c.DF <= 0 {
		return math.Inf(-1), math.Inf(1)
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: c.DF}
	q := t.Quantile(1 - (1-level)/2)
	return c.Estimate - q*c.StdError, c.Estimate + q*c.StdError
}

// Fit is what a model fitter returns for one spec on one table
type Fit struct {
	Model            string               `json:"model"`
	Coefficients     map[Term]Coefficient `json:"coefficients"`
	ResidualVariance float64              `json:"residual_variance"`
	// ClusterVariance is nil for models without a clustering term
	ClusterVariance *float64 `json:"cluster_variance,omitempty"`
	N               int      `json:"n"`
	Groups          int      `json:"groups,omitempty"`
}

// Treatment returns the treatment coefficient
func (f *Fit) Treatment() Coefficient {
	return f.Coefficients[TermTreatment]
}

// ICC returns cluster / (cluster + residual) variance for clustered fits
func (f *Fit) ICC() (float64, bool) {
	if f.ClusterVariance == nil {
		return 0, false
	}
	total := *f.ClusterVariance + f.ResidualVariance
	if total <= 0 {
		return 0, false
	}
	return *f.ClusterVariance / total, true
}
