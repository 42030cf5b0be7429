// Package cluster groups leads by persona-embedding similarity within a
// single workorder.
package cluster

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/leads-cli/internal/embed"
)

// Noise is the sentinel label for unclusterable outliers. It never appears
// in Assign output; every noise point is relabeled to its own singleton
// cluster.
const Noise = -1

// reducedDims is the target dimensionality before clustering.
const reducedDims = 32

// minClusterSize is the smallest group the density step will form.
const minClusterSize = 2

// Assign gives every present embedding a non-negative cluster label, aligned
// with the input by index. Leads with no embedding (nil or undecodable bytes)
// get a nil label and are excluded from the computation entirely. Empty
// input yields all-nil output, never an error.
func Assign(embeddings [][]byte) []*int {
	labels := make([]*int, len(embeddings))

	var rows [][]float64
	var rowIdx []int
	dim := -1
	for i, b := range embeddings {
		if len(b) == 0 {
			continue
		}
		vec, err := embed.BytesToVector(b)
		if err != nil {
			zap.L().Warn("cluster: undecodable embedding, skipping",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		if dim == -1 {
			dim = len(vec)
		} else if len(vec) != dim {
			zap.L().Warn("cluster: embedding dimension mismatch, skipping",
				zap.Int("index", i),
				zap.Int("want", dim),
				zap.Int("got", len(vec)),
			)
			continue
		}
		row := make([]float64, len(vec))
		for j, v := range vec {
			row[j] = float64(v)
		}
		rows = append(rows, row)
		rowIdx = append(rowIdx, i)
	}

	if len(rows) == 0 {
		return labels
	}

	reduced := reduce(rows)
	assigned := relabelNoise(densityCluster(reduced))

	for j, idx := range rowIdx {
		v := assigned[j]
		labels[idx] = &v
	}
	return labels
}

// reduce lowers dimensionality to reducedDims. Batches larger than
// reducedDims go through a thin SVD projection fitted on this batch only;
// smaller batches are not statistically meaningful for SVD and are merely
// column-truncated when wider than reducedDims.
func reduce(rows [][]float64) [][]float64 {
	n := len(rows)
	d := len(rows[0])

	if n <= reducedDims {
		if d <= reducedDims {
			return rows
		}
		out := make([][]float64, n)
		for i, row := range rows {
			out[i] = row[:reducedDims]
		}
		return out
	}

	flat := make([]float64, 0, n*d)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	m := mat.NewDense(n, d, flat)

	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDThin) {
		zap.L().Warn("cluster: svd failed to converge, truncating columns instead")
		if d <= reducedDims {
			return rows
		}
		out := make([][]float64, n)
		for i, row := range rows {
			out[i] = row[:reducedDims]
		}
		return out
	}

	var u mat.Dense
	svd.UTo(&u)
	s := svd.Values(nil)

	k := reducedDims
	if len(s) < k {
		k = len(s)
	}

	// Project onto the top-k singular directions: U_k * diag(S_k).
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, k)
		for j := 0; j < k; j++ {
			row[j] = u.At(i, j) * s[j]
		}
		out[i] = row
	}
	return out
}

// densityCluster labels connected components of the eps-neighborhood graph.
// Components smaller than minClusterSize are marked Noise. With a minimum
// cluster size of two this is DBSCAN where any point with a neighbor is a
// core point.
func densityCluster(points [][]float64) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	if n == 0 {
		return labels
	}

	eps := neighborhoodRadius(points)

	visited := make([]bool, n)
	next := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}

		// BFS over the eps graph.
		component := []int{i}
		visited[i] = true
		for head := 0; head < len(component); head++ {
			p := component[head]
			for j := 0; j < n; j++ {
				if visited[j] {
					continue
				}
				if euclidean(points[p], points[j]) <= eps {
					visited[j] = true
					component = append(component, j)
				}
			}
		}

		if len(component) < minClusterSize {
			continue // stays Noise
		}
		for _, idx := range component {
			labels[idx] = next
		}
		next++
	}
	return labels
}

// neighborhoodRadius derives eps from the data: twice the median
// nearest-neighbor distance. Scale-free, so one constant works across
// embedding models.
func neighborhoodRadius(points [][]float64) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	nearest := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		best := math.Inf(1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if d := euclidean(points[i], points[j]); d < best {
				best = d
			}
		}
		nearest = append(nearest, best)
	}
	sort.Float64s(nearest)
	return 2 * nearest[n/2]
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// relabelNoise gives every noise point its own singleton cluster, numbered
// sequentially from one past the highest real label. The counter is an
// explicit accumulator over a single pass, so labels stay dense and no
// outlier information is collapsed into a shared bucket.
func relabelNoise(labels []int) []int {
	maxLabel := -1
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}

	next := maxLabel + 1
	out := make([]int, len(labels))
	for i, l := range labels {
		if l == Noise {
			out[i] = next
			next++
		} else {
			out[i] = l
		}
	}
	return out
}
