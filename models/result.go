package models

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SimulationResult is the ordered sequence of per-game made-threes counts
// produced by one simulation run. It is never mutated once the run finishes.
type SimulationResult []int

// Distribution counts how many simulated games produced each make total
func (r SimulationResult) Distribution() map[int]int {
	dist := make(map[int]int)
	for _, makes := range r {
		dist[makes]++
	}
	return dist
}

// Summary holds the descriptive statistics reported alongside a result
type Summary struct {
	Games  int     `json:"games"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	P10    float64 `json:"p10"`
	P90    float64 `json:"p90"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
}

// Summarize computes the summary statistics for the result. An empty result
// yields a zero Summary.
func (r SimulationResult) Summarize() Summary {
	if len(r) == 0 {
		return Summary{}
	}

	vals := make([]float64, len(r))
	min, max := r[0], r[0]
	for i, makes := range r {
		vals[i] = float64(makes)
		if makes < min {
			min = makes
		}
		if makes > max {
			max = makes
		}
	}
	sort.Float64s(vals)

	s := Summary{
		Games:  len(r),
		Mean:   stat.Mean(vals, nil),
		Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
		P10:    stat.Quantile(0.1, stat.Empirical, vals, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, vals, nil),
		Min:    min,
		Max:    max,
	}
	if len(vals) > 1 {
		s.StdDev = stat.StdDev(vals, nil)
	}
	return s
}

// AttemptVolume parameterizes the simulator's per-game attempt draw with the
// bootstrap estimate of the player's attempt rate
type AttemptVolume struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}
