package simulation

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/threes-sim/engine/cluster"
	"github.com/threes-sim/engine/models"
)

// DefaultBootstrapSamples balances estimate stability against run time
const DefaultBootstrapSamples = 100000

// BootstrapAttempts estimates the sampling distribution of the player's
// mean attempts per game. Each of the samples resamples draws, with
// replacement, a sequence as long as the input and takes its mean; the
// returned parameters are the mean and standard deviation of those means.
// The standard deviation feeds game-to-game variance into the simulator
// instead of treating the historical mean as a fixed constant.
func BootstrapAttempts(counts []int, samples int, src rand.Source) (models.AttemptVolume, error) {
	if len(counts) == 0 {
		return models.AttemptVolume{}, fmt.Errorf("%w: no per-game attempt counts", cluster.ErrInsufficientData)
	}
	if samples <= 0 {
		return models.AttemptVolume{}, fmt.Errorf("bootstrap: samples must be positive, got %d", samples)
	}

	rnd := rand.New(src)
	n := len(counts)
	inv := 1 / float64(n)

	means := make([]float64, samples)
	for s := range means {
		sum := 0
		for i := 0; i < n; i++ {
			sum += counts[rnd.Intn(n)]
		}
		means[s] = float64(sum) * inv
	}

	vol := models.AttemptVolume{Mean: stat.Mean(means, nil)}
	if samples > 1 {
		vol.Std = stat.StdDev(means, nil)
	}
	return vol, nil
}
