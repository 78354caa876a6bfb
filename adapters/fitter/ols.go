package fitter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"therapist-effects/domain/core"
	"therapist-effects/domain/model"
)

func sqrt(v float64) float64 { return math.Sqrt(v) }

// fitOLS solves the normal equations by Cholesky; df is N - p for every term.
func fitOLS(name string, d *design) (*model.Fit, error) {
	n, p := d.n(), d.p()
	xtx, xty := d.crossProducts()

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return nil, fmt.Errorf("%w: X'X is not positive definite", core.ErrSingularDesign)
	}
	beta := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(beta, xty); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}

	rss := 0.0
	for r, row := range d.x {
		fitted := 0.0
		for i := 0; i < p; i++ {
			fitted += row[i] * beta.AtVec(i)
		}
		e := d.y[r] - fitted
		rss += e * e
	}
	df := float64(n - p)
	sigma2 := rss / df

	return &model.Fit{
		Model:            name,
		Coefficients:     coefficients(d.terms, beta, &inv, sigma2, func(model.Term) float64 { return df }),
		ResidualVariance: sigma2,
		N:                n,
	}, nil
}
