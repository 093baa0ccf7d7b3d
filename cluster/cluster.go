// Package cluster fits the zone model: a Gaussian mixture over 2D shot
// locations whose component count and covariance family are selected by
// cross-validated BIC. The fitted model labels shots with zones, reports
// zone-membership probabilities for any point, and samples new shot
// locations for the simulator.
package cluster

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// ErrInsufficientData indicates the shot sample is empty or too small to
// support the smallest candidate zone count.
var ErrInsufficientData = errors.New("insufficient shot data")

// Covariance identifies the parametric family constraining each
// component's covariance matrix
type Covariance string

const (
	CovSpherical Covariance = "spherical"
	CovTied      Covariance = "tied"
	CovDiag      Covariance = "diag"
	CovFull      Covariance = "full"
)

// Families lists every covariance family the selection grid tries
func Families() []Covariance {
	return []Covariance{CovSpherical, CovTied, CovDiag, CovFull}
}

// Options controls model selection. The zero value selects zones in
// [3, 15) across all families with 5-fold cross-validation.
type Options struct {
	MinZones int    // inclusive lower bound of the zone grid
	MaxZones int    // exclusive upper bound of the zone grid
	Zones    int    // > 0 pins the zone count; the family is still selected
	Folds    int    // cross-validation folds
	Seed     uint64 // seed for initialization randomness
}

func (o Options) withDefaults() Options {
	if o.MinZones <= 0 {
		o.MinZones = 3
	}
	if o.MaxZones <= 0 {
		o.MaxZones = 15
	}
	if o.Folds <= 0 {
		o.Folds = 5
	}
	return o
}

// Model is the fitted zone model. It is read-only after Fit and safe for
// concurrent use by the simulation workers.
type Model struct {
	mix   *gmm
	score float64
}

// Fit selects and fits the zone model. Every candidate on the
// (zones x family) grid is scored by its mean BIC across sequential
// cross-validation folds (fit on the training folds, BIC on the held-out
// fold); the candidate with the lowest mean BIC is refit on the full
// sample and returned.
func Fit(points [][]float64, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	if opts.MaxZones <= opts.MinZones {
		return nil, fmt.Errorf("cluster: invalid zone bounds [%d,%d)", opts.MinZones, opts.MaxZones)
	}

	minK := opts.MinZones
	if opts.Zones > 0 {
		minK = opts.Zones
	}
	n := len(points)
	if n < minK {
		return nil, fmt.Errorf("%w: have %d points, need at least %d", ErrInsufficientData, n, minK)
	}

	var ks []int
	if opts.Zones > 0 {
		ks = []int{opts.Zones}
	} else {
		for k := opts.MinZones; k < opts.MaxZones; k++ {
			ks = append(ks, k)
		}
	}

	folds := opts.Folds
	if folds > n {
		folds = n
	}

	selSrc := rand.NewSource(opts.Seed + 1)
	bestScore := math.Inf(1)
	bestK := 0
	var bestFamily Covariance
	for _, k := range ks {
		for _, family := range Families() {
			score, err := crossValScore(points, k, family, folds, selSrc)
			if err != nil {
				// Degenerate candidate on this sample; selection continues
				// over the rest of the grid.
				continue
			}
			if score < bestScore {
				bestScore = score
				bestK = k
				bestFamily = family
			}
		}
	}
	if bestK == 0 {
		return nil, fmt.Errorf("%w: no mixture candidate could be fit", ErrInsufficientData)
	}

	// Refit the winner on the full sample with a seed independent of how
	// much of the grid was scanned, so repeated fits agree.
	mix, err := fitGMM(points, bestK, bestFamily, rand.NewSource(opts.Seed))
	if err != nil {
		return nil, err
	}
	return &Model{mix: mix, score: bestScore}, nil
}

// crossValScore returns the candidate's mean held-out BIC across
// sequential contiguous folds. With fewer than two folds the BIC of a
// single full-sample fit is used instead.
func crossValScore(points [][]float64, k int, family Covariance, folds int, src rand.Source) (float64, error) {
	if folds < 2 {
		g, err := fitGMM(points, k, family, src)
		if err != nil {
			return 0, err
		}
		return g.bic(points), nil
	}

	n := len(points)
	total := 0.0
	for f := 0; f < folds; f++ {
		lo, hi := f*n/folds, (f+1)*n/folds
		train := make([][]float64, 0, n-(hi-lo))
		train = append(train, points[:lo]...)
		train = append(train, points[hi:]...)

		g, err := fitGMM(train, k, family, src)
		if err != nil {
			return 0, err
		}
		total += g.bic(points[lo:hi])
	}
	return total / float64(folds), nil
}

// Zones returns the selected component count K
func (m *Model) Zones() int {
	return m.mix.k
}

// Family returns the selected covariance family
func (m *Model) Family() Covariance {
	return m.mix.family
}

// BIC returns the winning candidate's mean cross-validated BIC
func (m *Model) BIC() float64 {
	return m.score
}

// Converged reports whether the final EM fit reached its tolerance before
// the iteration cap
func (m *Model) Converged() bool {
	return m.mix.converged
}

// Weights returns a copy of the mixture weights
func (m *Model) Weights() []float64 {
	w := make([]float64, m.mix.k)
	copy(w, m.mix.weights)
	return w
}

// Means returns a copy of the per-zone location means
func (m *Model) Means() [][]float64 {
	out := make([][]float64, m.mix.k)
	for j, mu := range m.mix.means {
		out[j] = make([]float64, len(mu))
		copy(out[j], mu)
	}
	return out
}

// MembershipProbs returns the posterior zone-membership probabilities of a
// point. The returned vector has length K and sums to 1.
func (m *Model) MembershipProbs(pt []float64) []float64 {
	return m.mix.membership(pt)
}

// PredictZone returns the most probable zone for a point
func (m *Model) PredictZone(pt []float64) int {
	probs := m.mix.membership(pt)
	best := 0
	for j, p := range probs {
		if p > probs[best] {
			best = j
		}
	}
	return best
}

// PredictZones labels every point with its most probable zone
func (m *Model) PredictZones(points [][]float64) []int {
	zones := make([]int, len(points))
	for i, p := range points {
		zones[i] = m.PredictZone(p)
	}
	return zones
}

// Sample draws n shot locations from the fitted density using the
// caller's random source
func (m *Model) Sample(n int, src rand.Source) [][]float64 {
	return m.mix.sample(n, src)
}
