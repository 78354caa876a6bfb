// Package fitter is the in-repo model fitter: ordinary least squares for
// models without clustering and a one-way random-intercept linear mixed
// model estimated by REML for clustered models.
package fitter

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"therapist-effects/domain/core"
	"therapist-effects/domain/dataset"
	"therapist-effects/domain/model"
)

// Fitter implements ports.ModelFitter
type Fitter struct {
	reml REMLOptions
}

// NewFitter creates a fitter with default REML settings
func NewFitter() *Fitter {
	return &Fitter{reml: DefaultREMLOptions()}
}

// NewFitterWithOptions creates a fitter with explicit REML settings
func NewFitterWithOptions(opts REMLOptions) *Fitter {
	return &Fitter{reml: opts}
}

// Fit dispatches on whether the spec has a clustering term
func (f *Fitter) Fit(ctx context.Context, table *dataset.Table, spec model.Spec) (*model.Fit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := buildDesign(table, spec)
	if err != nil {
		return nil, err
	}
	if spec.Clustered() {
		return fitREML(spec.Name, d, f.reml)
	}
	return fitOLS(spec.Name, d)
}

// design is the numeric form of one model on one table
type design struct {
	terms  []model.Term // column order of x, intercept first
	x      [][]float64  // row-major, n x p
	y      []float64
	groups []int // nil when the model has no clustering term
}

func (d *design) n() int { return len(d.y) }
func (d *design) p() int { return len(d.terms) }

func buildDesign(table *dataset.Table, spec model.Spec) (*design, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	y, err := table.Numeric(spec.Outcome)
	if err != nil {
		return nil, err
	}

	terms := append([]model.Term{model.TermIntercept}, spec.Terms...)
	cols := make([][]float64, len(spec.Terms))
	for i, term := range spec.Terms {
		var col dataset.Column
		switch term {
		case model.TermTreatment:
			col = dataset.ColTreatment
		case model.TermCovariate:
			col = dataset.ColCovariate
		}
		if cols[i], err = table.Numeric(col); err != nil {
			return nil, err
		}
	}

	n := len(y)
	x := make([][]float64, n)
	for r := 0; r < n; r++ {
		row := make([]float64, len(terms))
		row[0] = 1
		for c := range cols {
			row[c+1] = cols[c][r]
		}
		x[r] = row
	}

	d := &design{terms: terms, x: x, y: y}
	if spec.Clustered() {
		if d.groups, err = table.Grouping(spec.Grouping); err != nil {
			return nil, err
		}
	}
	if n <= d.p() {
		return nil, fmt.Errorf("%w: %d rows for %d coefficients", core.ErrSingularDesign, n, d.p())
	}
	return d, nil
}

// crossProducts returns X'X and X'y
func (d *design) crossProducts() (*mat.SymDense, *mat.VecDense) {
	p := d.p()
	xtx := mat.NewSymDense(p, nil)
	xty := mat.NewVecDense(p, nil)
	for r, row := range d.x {
		for i := 0; i < p; i++ {
			xty.SetVec(i, xty.AtVec(i)+row[i]*d.y[r])
			for j := i; j < p; j++ {
				xtx.SetSym(i, j, xtx.At(i, j)+row[i]*row[j])
			}
		}
	}
	return xtx, xty
}

func coefficients(terms []model.Term, beta *mat.VecDense, cov *mat.SymDense, scale float64, df func(model.Term) float64) map[model.Term]model.Coefficient {
	out := make(map[model.Term]model.Coefficient, len(terms))
	for i, term := range terms {
		v := scale * cov.At(i, i)
		se := 0.0
		if v > 0 {
			se = sqrt(v)
		}
		out[term] = model.NewCoefficient(beta.AtVec(i), se, df(term))
	}
	return out
}
