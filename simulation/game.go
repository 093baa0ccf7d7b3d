package simulation

import (
	"sync"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/threes-sim/engine/cluster"
	"github.com/threes-sim/engine/metrics"
	"github.com/threes-sim/engine/models"
)

const (
	// workerSeedStride separates the per-worker random streams
	workerSeedStride = 0x9E3779B97F4A7C15

	// progressBatch is how many games a worker completes between progress
	// callbacks
	progressBatch = 250
)

// Simulator runs the stochastic game loop against fully-prepared, read-only
// inputs. The zero worker count means a single worker.
type Simulator struct {
	Model       *cluster.Model
	PlayerRates models.RateTable
	Adjustment  models.AdjustmentVector
	Volume      models.AttemptVolume
	Workers     int

	// OnProgress, when set, receives completed-game deltas from the
	// workers while a run is in flight.
	OnProgress func(delta int)
}

// Run simulates the requested number of games and returns one made-threes
// count per game. Games are partitioned into contiguous ranges across the
// workers and each worker derives its own random stream from the run seed,
// so the output is bit-identical for a fixed seed, worker count, and
// inputs. Run(0) returns an empty result.
func (s *Simulator) Run(games int, seed uint64) models.SimulationResult {
	result := make(models.SimulationResult, games)
	if games == 0 {
		return result
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > games {
		workers = games
	}

	perWorker := games / workers
	remainder := games % workers

	var wg sync.WaitGroup
	start := 0
	for w := 0; w < workers; w++ {
		count := perWorker
		if w < remainder {
			count++
		}

		wg.Add(1)
		go func(workerID, start, count int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(seed + uint64(workerID)*workerSeedStride))
			done := 0
			for i := start; i < start+count; i++ {
				result[i] = s.playGame(rng)
				done++
				if done%progressBatch == 0 {
					s.reportProgress(progressBatch)
				}
			}
			if rem := done % progressBatch; rem != 0 {
				s.reportProgress(rem)
			}
		}(w, start, count)

		start += count
	}
	wg.Wait()

	metrics.RecordGamesSimulated(games)
	return result
}

// playGame runs one independent game trial: a two-stage attempt draw, then
// a location-weighted make/miss draw per shot.
func (s *Simulator) playGame(rng *rand.Rand) int {
	// Draw the latent attempt rate first so each game carries both the
	// estimation uncertainty and ordinary shot-count variance.
	lambda := distuv.Normal{Mu: s.Volume.Mean, Sigma: s.Volume.Std, Src: rng}.Rand()
	if lambda <= 0 {
		return 0
	}
	attempts := int(distuv.Poisson{Lambda: lambda, Src: rng}.Rand())
	if attempts == 0 {
		return 0
	}

	locations := s.Model.Sample(attempts, rng)

	makes := 0
	for _, loc := range locations {
		membership := s.Model.MembershipProbs(loc)
		p, clamped := models.EffectiveProbability(s.PlayerRates, s.Adjustment, membership)
		if clamped {
			metrics.RecordProbabilityClamp()
		}
		if (distuv.Bernoulli{P: p, Src: rng}).Rand() == 1 {
			makes++
		}
	}
	return makes
}

func (s *Simulator) reportProgress(delta int) {
	if s.OnProgress != nil {
		s.OnProgress(delta)
	}
}
