package index

import (
	"math"
	"sort"
)

const kmeansIterations = 10

// ivfIndex is an inverted-file index: vectors are assigned to coarse
// clusters and a query only scans the lists of the nearest `probes`
// centroids. Higher probes raises recall and latency monotonically.
type ivfIndex struct {
	centroids [][]float32
	lists     [][]int // Vector indexes per centroid
}

// buildIVF clusters the vectors into at most `partitions` coarse cells.
// Seeding is deterministic (evenly spaced over the input) so rebuilds of
// the same corpus produce the same clustering.
func buildIVF(vectors [][]float32, partitions int) *ivfIndex {
	n := len(vectors)
	if n == 0 {
		return &ivfIndex{}
	}
	if partitions > n {
		partitions = n
	}

	dim := len(vectors[0])
	centroids := make([][]float32, partitions)
	for c := range centroids {
		seed := vectors[c*n/partitions]
		centroids[c] = append([]float32(nil), seed...)
	}

	assign := make([]int, n)
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		// Recompute centroids as member means; empty cells keep their
		// previous centroid so partition count stays stable.
		sums := make([][]float64, partitions)
		counts := make([]int, partitions)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for d, f := range v {
				sums[c][d] += float64(f)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			mean := make([]float32, dim)
			for d := range mean {
				mean[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = normalize(mean)
		}
	}

	lists := make([][]int, partitions)
	for i, c := range assign {
		lists[c] = append(lists[c], i)
	}

	return &ivfIndex{centroids: centroids, lists: lists}
}

// search returns the candidate vector indexes from the `probes` clusters
// nearest to the query.
func (ix *ivfIndex) search(query []float32, probes int) []int {
	if len(ix.centroids) == 0 {
		return nil
	}
	if probes > len(ix.centroids) {
		probes = len(ix.centroids)
	}

	type centroidDist struct {
		c   int
		sim float32
	}
	dists := make([]centroidDist, len(ix.centroids))
	for c, centroid := range ix.centroids {
		dists[c] = centroidDist{c: c, sim: dot(query, centroid)}
	}
	sort.Slice(dists, func(i, j int) bool {
		if dists[i].sim != dists[j].sim {
			return dists[i].sim > dists[j].sim
		}
		return dists[i].c < dists[j].c
	})

	var candidates []int
	for _, d := range dists[:probes] {
		candidates = append(candidates, ix.lists[d.c]...)
	}
	return candidates
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best, bestSim := 0, float32(math.Inf(-1))
	for c, centroid := range centroids {
		if sim := dot(v, centroid); sim > bestSim {
			best, bestSim = c, sim
		}
	}
	return best
}

// dot computes the inner product; on normalized vectors this is cosine
// similarity.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize returns a unit-length copy of the vector. Zero vectors are
// returned as-is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return append([]float32(nil), v...)
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f * inv
	}
	return out
}
