package cluster

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const kmeansMaxIter = 25

// kmeansInit partitions points into k clusters with k-means++ seeding and a
// short Lloyd refinement. The labels seed the mixture fit's first
// responsibility matrix; exact convergence is not needed here.
func kmeansInit(points [][]float64, k int, src rand.Source) []int {
	n := len(points)
	rnd := rand.New(src)

	centers := make([][]float64, 0, k)
	centers = append(centers, points[rnd.Intn(n)])

	// k-means++: each new center is drawn with probability proportional to
	// the squared distance from the nearest chosen center.
	dist2 := make([]float64, n)
	for len(centers) < k {
		total := 0.0
		for i, p := range points {
			best := nearestDist2(p, centers)
			dist2[i] = best
			total += best
		}
		if total == 0 {
			// All remaining points coincide with a center; place the rest
			// arbitrarily and let empty clusters die off in the fit.
			centers = append(centers, points[rnd.Intn(n)])
			continue
		}
		pick := distuv.NewCategorical(dist2, src)
		centers = append(centers, points[int(pick.Rand())])
	}

	labels := make([]int, n)
	counts := make([]int, k)
	d := len(points[0])
	sums := make([][]float64, k)
	for j := range sums {
		sums[j] = make([]float64, d)
	}

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, p := range points {
			j := nearestCenter(p, centers)
			if labels[i] != j {
				labels[i] = j
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		for j := range sums {
			counts[j] = 0
			for t := range sums[j] {
				sums[j][t] = 0
			}
		}
		for i, p := range points {
			j := labels[i]
			counts[j]++
			floats.Add(sums[j], p)
		}
		for j := range centers {
			if counts[j] == 0 {
				// Revive an empty cluster on the point farthest from its
				// current center.
				centers[j] = points[farthestPoint(points, labels, centers)]
				continue
			}
			c := make([]float64, d)
			copy(c, sums[j])
			floats.Scale(1/float64(counts[j]), c)
			centers[j] = c
		}
	}

	// Final assignment against the last centers
	for i, p := range points {
		labels[i] = nearestCenter(p, centers)
	}
	return labels
}

func nearestDist2(p []float64, centers [][]float64) float64 {
	best := floats.Distance(p, centers[0], 2)
	best *= best
	for _, c := range centers[1:] {
		d := floats.Distance(p, c, 2)
		if d*d < best {
			best = d * d
		}
	}
	return best
}

func nearestCenter(p []float64, centers [][]float64) int {
	bestIdx := 0
	best := floats.Distance(p, centers[0], 2)
	for j, c := range centers[1:] {
		if d := floats.Distance(p, c, 2); d < best {
			best = d
			bestIdx = j + 1
		}
	}
	return bestIdx
}

func farthestPoint(points [][]float64, labels []int, centers [][]float64) int {
	bestIdx := 0
	best := -1.0
	for i, p := range points {
		if d := floats.Distance(p, centers[labels[i]], 2); d > best {
			best = d
			bestIdx = i
		}
	}
	return bestIdx
}
