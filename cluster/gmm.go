package cluster

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	emMaxIter = 100
	emTol     = 1e-3
	regCovar  = 1e-6 // diagonal jitter keeping covariances positive definite
	nkFloor   = 1e-10
)

// gmm is one fitted Gaussian mixture: component weights, means, and
// covariances under a single covariance family.
type gmm struct {
	k, d    int
	family  Covariance
	weights []float64
	means   [][]float64
	covs    []*mat.SymDense
	chols   []*mat.Cholesky
	comps   []*distmv.Normal

	logL      float64 // total log likelihood of the training points
	converged bool
}

// fitGMM runs EM for one (k, family) candidate, seeded from a k-means
// partition of the points.
func fitGMM(points [][]float64, k int, family Covariance, src rand.Source) (*gmm, error) {
	n := len(points)
	if n == 0 {
		return nil, ErrInsufficientData
	}
	d := len(points[0])

	g := &gmm{
		k:       k,
		d:       d,
		family:  family,
		weights: make([]float64, k),
		means:   make([][]float64, k),
		covs:    make([]*mat.SymDense, k),
		chols:   make([]*mat.Cholesky, k),
		comps:   make([]*distmv.Normal, k),
	}

	// One-hot responsibilities from the k-means labels give the first
	// M-step its starting partition.
	labels := kmeansInit(points, k, src)
	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
		resp[i][labels[i]] = 1
	}
	if err := g.mStep(points, resp); err != nil {
		return nil, err
	}

	prev := math.Inf(-1)
	for iter := 0; iter < emMaxIter; iter++ {
		logL := g.eStep(points, resp)
		if err := g.mStep(points, resp); err != nil {
			return nil, err
		}
		if math.Abs(logL-prev)/float64(n) < emTol {
			g.converged = true
			break
		}
		prev = logL
	}

	g.logL = g.totalLogLikelihood(points)
	return g, nil
}

// eStep fills resp with posterior component memberships and returns the
// total log likelihood under the current parameters.
func (g *gmm) eStep(points [][]float64, resp [][]float64) float64 {
	logW := make([]float64, g.k)
	for j, w := range g.weights {
		logW[j] = math.Log(w)
	}

	total := 0.0
	row := make([]float64, g.k)
	for i, p := range points {
		for j := 0; j < g.k; j++ {
			row[j] = logW[j] + g.comps[j].LogProb(p)
		}
		norm := floats.LogSumExp(row)
		total += norm
		for j := 0; j < g.k; j++ {
			resp[i][j] = math.Exp(row[j] - norm)
		}
	}
	return total
}

// mStep re-estimates weights, means, and covariances from the
// responsibilities, constrained to the candidate's covariance family.
func (g *gmm) mStep(points [][]float64, resp [][]float64) error {
	n := len(points)

	nk := make([]float64, g.k)
	for i := 0; i < n; i++ {
		for j := 0; j < g.k; j++ {
			nk[j] += resp[i][j]
		}
	}
	for j := range nk {
		// A component can lose all its mass on degenerate data; the floor
		// keeps it alive with ~zero weight instead of dividing by zero.
		if nk[j] < nkFloor {
			nk[j] = nkFloor
		}
	}

	for j := 0; j < g.k; j++ {
		g.weights[j] = nk[j] / float64(n)
		mu := make([]float64, g.d)
		for i, p := range points {
			r := resp[i][j]
			if r == 0 {
				continue
			}
			for t := 0; t < g.d; t++ {
				mu[t] += r * p[t]
			}
		}
		floats.Scale(1/nk[j], mu)
		g.means[j] = mu
	}

	switch g.family {
	case CovFull:
		for j := 0; j < g.k; j++ {
			s := g.scatter(points, resp, j)
			scaleSym(s, 1/nk[j])
			addDiag(s, regCovar)
			g.covs[j] = s
		}
	case CovTied:
		// Pooled within-component scatter shared by every component
		pooled := mat.NewSymDense(g.d, nil)
		for j := 0; j < g.k; j++ {
			s := g.scatter(points, resp, j)
			for t := 0; t < g.d; t++ {
				for u := t; u < g.d; u++ {
					pooled.SetSym(t, u, pooled.At(t, u)+s.At(t, u))
				}
			}
		}
		scaleSym(pooled, 1/float64(n))
		addDiag(pooled, regCovar)
		for j := 0; j < g.k; j++ {
			g.covs[j] = cloneSym(pooled)
		}
	case CovDiag:
		for j := 0; j < g.k; j++ {
			g.covs[j] = diagSym(g.axisVariances(points, resp, j, nk[j]))
		}
	case CovSpherical:
		for j := 0; j < g.k; j++ {
			vars := g.axisVariances(points, resp, j, nk[j])
			avg := floats.Sum(vars) / float64(g.d)
			for t := range vars {
				vars[t] = avg
			}
			g.covs[j] = diagSym(vars)
		}
	default:
		return fmt.Errorf("cluster: unknown covariance family %q", g.family)
	}

	for j := 0; j < g.k; j++ {
		var ch mat.Cholesky
		if !ch.Factorize(g.covs[j]) {
			addDiag(g.covs[j], 1e-4)
			if !ch.Factorize(g.covs[j]) {
				return fmt.Errorf("cluster: component %d covariance is not positive definite", j)
			}
		}
		g.chols[j] = &ch
		g.comps[j] = distmv.NewNormalChol(g.means[j], &ch, nil)
	}
	return nil
}

// scatter accumulates the responsibility-weighted outer products for
// component j around its mean.
func (g *gmm) scatter(points [][]float64, resp [][]float64, j int) *mat.SymDense {
	s := mat.NewSymDense(g.d, nil)
	mu := g.means[j]
	for i, p := range points {
		r := resp[i][j]
		if r == 0 {
			continue
		}
		for t := 0; t < g.d; t++ {
			dt := p[t] - mu[t]
			for u := t; u < g.d; u++ {
				s.SetSym(t, u, s.At(t, u)+r*dt*(p[u]-mu[u]))
			}
		}
	}
	return s
}

// axisVariances returns the per-axis responsibility-weighted variances for
// component j, already regularized.
func (g *gmm) axisVariances(points [][]float64, resp [][]float64, j int, nk float64) []float64 {
	vars := make([]float64, g.d)
	mu := g.means[j]
	for i, p := range points {
		r := resp[i][j]
		if r == 0 {
			continue
		}
		for t := 0; t < g.d; t++ {
			dt := p[t] - mu[t]
			vars[t] += r * dt * dt
		}
	}
	for t := range vars {
		vars[t] = vars[t]/nk + regCovar
	}
	return vars
}

func (g *gmm) totalLogLikelihood(points [][]float64) float64 {
	total := 0.0
	row := make([]float64, g.k)
	for _, p := range points {
		for j := 0; j < g.k; j++ {
			row[j] = math.Log(g.weights[j]) + g.comps[j].LogProb(p)
		}
		total += floats.LogSumExp(row)
	}
	return total
}

// paramCount counts the free parameters of the mixture: weights (k-1),
// means (k*d), and the covariance parameters of the family.
func (g *gmm) paramCount() int {
	var cov int
	switch g.family {
	case CovSpherical:
		cov = g.k
	case CovDiag:
		cov = g.k * g.d
	case CovTied:
		cov = g.d * (g.d + 1) / 2
	case CovFull:
		cov = g.k * g.d * (g.d + 1) / 2
	}
	return g.k*g.d + (g.k - 1) + cov
}

// bic is the Bayesian Information Criterion of the mixture on the given
// points; lower is better.
func (g *gmm) bic(points [][]float64) float64 {
	return -2*g.totalLogLikelihood(points) + float64(g.paramCount())*math.Log(float64(len(points)))
}

// membership returns the posterior probability of each component for one
// point; the entries sum to 1.
func (g *gmm) membership(pt []float64) []float64 {
	row := make([]float64, g.k)
	for j := 0; j < g.k; j++ {
		row[j] = math.Log(g.weights[j]) + g.comps[j].LogProb(pt)
	}
	norm := floats.LogSumExp(row)

	probs := make([]float64, g.k)
	for j := range row {
		probs[j] = math.Exp(row[j] - norm)
	}
	return probs
}

// sample draws n points from the mixture using the caller's random source
func (g *gmm) sample(n int, src rand.Source) [][]float64 {
	out := make([][]float64, n)
	if n == 0 {
		return out
	}

	pick := distuv.NewCategorical(g.weights, src)
	comps := make([]*distmv.Normal, g.k)
	for j := range comps {
		comps[j] = distmv.NewNormalChol(g.means[j], g.chols[j], src)
	}
	for i := range out {
		out[i] = comps[int(pick.Rand())].Rand(nil)
	}
	return out
}

func scaleSym(s *mat.SymDense, f float64) {
	n := s.SymmetricDim()
	for t := 0; t < n; t++ {
		for u := t; u < n; u++ {
			s.SetSym(t, u, s.At(t, u)*f)
		}
	}
}

func addDiag(s *mat.SymDense, v float64) {
	for t := 0; t < s.SymmetricDim(); t++ {
		s.SetSym(t, t, s.At(t, t)+v)
	}
}

func cloneSym(s *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.CopySym(s)
	return out
}

func diagSym(vars []float64) *mat.SymDense {
	s := mat.NewSymDense(len(vars), nil)
	for t, v := range vars {
		s.SetSym(t, t, v)
	}
	return s
}
