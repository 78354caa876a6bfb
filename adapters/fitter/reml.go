package fitter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"therapist-effects/domain/core"
	"therapist-effects/domain/model"
)

// REMLOptions tunes the search over the log variance ratio
// theta = log(sigma_u^2 / sigma_e^2).
type REMLOptions struct {
	ThetaMin  float64
	ThetaMax  float64
	GridStep  float64
	MaxEvals  int
	Tolerance float64
}

// DefaultREMLOptions covers variance ratios from about 4.5e-5 to 150
func DefaultREMLOptions() REMLOptions {
	return REMLOptions{
		ThetaMin:  -10,
		ThetaMax:  5,
		GridStep:  0.5,
		MaxEvals:  400,
		Tolerance: 1e-10,
	}
}

// cluster holds the per-cluster sufficient statistics
type cluster struct {
	n    float64
	xSum []float64 // X_j' 1
	ySum float64   // 1' y_j
}

// remlProblem evaluates the profiled REML criterion for a one-way random
// intercept model. With H = I + lambda*ZZ' the per-cluster inverse is
// I - c_j J with c_j = lambda / (1 + n_j lambda), so every quantity reduces to
// sums over clusters.
type remlProblem struct {
	d        *design
	xtx      *mat.SymDense
	xty      *mat.VecDense
	yty      float64
	clusters []cluster
}

func newREMLProblem(d *design) (*remlProblem, error) {
	p := d.p()
	byID := make(map[int]*cluster)
	order := make([]int, 0)
	yty := 0.0
	for r, row := range d.x {
		g := d.groups[r]
		c, ok := byID[g]
		if !ok {
			c = &cluster{xSum: make([]float64, p)}
			byID[g] = c
			order = append(order, g)
		}
		c.n++
		c.ySum += d.y[r]
		for i := 0; i < p; i++ {
			c.xSum[i] += row[i]
		}
		yty += d.y[r] * d.y[r]
	}
	if len(order) < 2 {
		return nil, fmt.Errorf("%w: need at least two clusters, got %d", core.ErrSingularDesign, len(order))
	}

	clusters := make([]cluster, len(order))
	for i, g := range order {
		clusters[i] = *byID[g]
	}
	xtx, xty := d.crossProducts()
	return &remlProblem{d: d, xtx: xtx, xty: xty, yty: yty, clusters: clusters}, nil
}

// remlState is the GLS solution at one variance ratio
type remlState struct {
	lambda    float64
	beta      *mat.VecDense
	chol      mat.Cholesky
	quadratic float64 // r' H^-1 r
	objective float64 // -2 * profiled REML log-likelihood, up to a constant
}

func (rp *remlProblem) evaluate(lambda float64) (*remlState, error) {
	p := rp.d.p()
	a := mat.NewSymDense(p, nil)
	a.CopySym(rp.xtx)
	b := mat.NewVecDense(p, nil)
	b.CopyVec(rp.xty)
	yhy := rp.yty
	logDetH := 0.0

	for _, c := range rp.clusters {
		cj := lambda / (1 + c.n*lambda)
		logDetH += math.Log1p(c.n * lambda)
		yhy -= cj * c.ySum * c.ySum
		for i := 0; i < p; i++ {
			b.SetVec(i, b.AtVec(i)-cj*c.xSum[i]*c.ySum)
			for j := i; j < p; j++ {
				a.SetSym(i, j, a.At(i, j)-cj*c.xSum[i]*c.xSum[j])
			}
		}
	}

	s := &remlState{lambda: lambda, beta: mat.NewVecDense(p, nil)}
	if ok := s.chol.Factorize(a); !ok {
		return nil, fmt.Errorf("%w: X'H^-1X is not positive definite", core.ErrSingularDesign)
	}
	if err := s.chol.SolveVecTo(s.beta, b); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}

	s.quadratic = yhy - mat.Dot(b, s.beta)
	if !(s.quadratic > 0) {
		return nil, fmt.Errorf("%w: non-positive residual quadratic form", core.ErrSingularDesign)
	}
	dfResid := float64(rp.d.n() - p)
	s.objective = dfResid*math.Log(s.quadratic) + logDetH + s.chol.LogDet()
	return s, nil
}

func (rp *remlProblem) objectiveAt(theta float64) float64 {
	s, err := rp.evaluate(math.Exp(theta))
	if err != nil {
		return math.Inf(1)
	}
	return s.objective
}

// fitREML maximizes the profiled REML likelihood: a coarse grid over theta
// brackets the optimum, Nelder-Mead refines it, and the lambda = 0 boundary
// is taken when it is at least as good (a singular fit with zero cluster
// variance).
func fitREML(name string, d *design, opts REMLOptions) (*model.Fit, error) {
	rp, err := newREMLProblem(d)
	if err != nil {
		return nil, err
	}

	bestTheta, bestObj := math.NaN(), math.Inf(1)
	for theta := opts.ThetaMin; theta <= opts.ThetaMax+1e-12; theta += opts.GridStep {
		if obj := rp.objectiveAt(theta); obj < bestObj {
			bestTheta, bestObj = theta, obj
		}
	}
	if math.IsInf(bestObj, 1) {
		return nil, fmt.Errorf("%w: REML criterion undefined on the whole grid", core.ErrNonConvergence)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			theta := x[0]
			if theta < opts.ThetaMin-10 || theta > opts.ThetaMax+10 {
				return math.Inf(1)
			}
			return rp.objectiveAt(theta)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: opts.MaxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance,
			Iterations: 20,
		},
	}
	result, err := optimize.Minimize(problem, []float64{bestTheta}, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNonConvergence, err)
	}
	if math.IsNaN(result.F) || math.IsInf(result.X[0], 0) {
		return nil, fmt.Errorf("%w: optimizer stopped with status %v", core.ErrNonConvergence, result.Status)
	}

	lambda := math.Exp(result.X[0])
	if result.F > bestObj {
		lambda = math.Exp(bestTheta)
	}
	state, err := rp.evaluate(lambda)
	if err != nil {
		return nil, err
	}
	if boundary, err := rp.evaluate(0); err == nil && boundary.objective <= state.objective {
		state = boundary
	}

	return rp.buildFit(name, state)
}

func (rp *remlProblem) buildFit(name string, s *remlState) (*model.Fit, error) {
	n, p, g := rp.d.n(), rp.d.p(), len(rp.clusters)
	sigma2 := s.quadratic / float64(n-p)
	clusterVar := s.lambda * sigma2

	var inv mat.SymDense
	if err := s.chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}

	between, within, err := rp.betweenWithinDF()
	if err != nil {
		return nil, err
	}
	levels := rp.clusterLevelTerms()
	df := func(term model.Term) float64 {
		if levels[term] {
			return between
		}
		return within
	}

	return &model.Fit{
		Model:            name,
		Coefficients:     coefficients(rp.d.terms, s.beta, &inv, sigma2, df),
		ResidualVariance: sigma2,
		ClusterVariance:  &clusterVar,
		N:                n,
		Groups:           g,
	}, nil
}

// clusterLevelTerms marks terms that are constant within every cluster
// (the intercept and, with clusters nested in arms, treatment).
func (rp *remlProblem) clusterLevelTerms() map[model.Term]bool {
	first := make(map[int][]float64)
	constant := make([]bool, rp.d.p())
	for i := range constant {
		constant[i] = true
	}
	for r, row := range rp.d.x {
		g := rp.d.groups[r]
		ref, ok := first[g]
		if !ok {
			first[g] = row
			continue
		}
		for i := range row {
			if row[i] != ref[i] {
				constant[i] = false
			}
		}
	}
	out := make(map[model.Term]bool, len(constant))
	for i, term := range rp.d.terms {
		out[term] = constant[i]
	}
	return out
}

// betweenWithinDF partitions residual degrees of freedom into a between-cluster
// part for cluster-level terms (G minus the number of cluster-level
// coefficients) and a within-cluster part for the rest. For clusters nested in
// balanced arms the between part equals the Satterthwaite approximation.
func (rp *remlProblem) betweenWithinDF() (between, within float64, err error) {
	levels := rp.clusterLevelTerms()
	clusterTerms := 0
	for _, isCluster := range levels {
		if isCluster {
			clusterTerms++
		}
	}
	g := len(rp.clusters)
	between = float64(g - clusterTerms)
	within = float64(rp.d.n() - g - (rp.d.p() - clusterTerms))
	if between <= 0 || within <= 0 {
		return 0, 0, fmt.Errorf("%w: no residual degrees of freedom (between=%v within=%v)",
			core.ErrSingularDesign, between, within)
	}
	return between, within, nil
}
