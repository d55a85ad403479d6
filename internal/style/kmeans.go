package style

import (
	"errors"
	"image"
	"math"
	"math/rand/v2"
)

// Static errors for k-means clustering.
var (
	// ErrTooFewClusters is returned when k-means is asked for fewer than one cluster.
	ErrTooFewClusters = errors.New("kmeans: k must be positive")
	// ErrNoPoints is returned when there is nothing to cluster.
	ErrNoPoints = errors.New("kmeans: no points to cluster")
)

// KMeansCriteria controls k-means termination and restarts.
type KMeansCriteria struct {
	// MaxIter bounds the refinement iterations of a single attempt.
	MaxIter int
	// Epsilon stops an attempt once no center moves farther than this.
	Epsilon float64
	// Attempts is the number of random restarts; the most compact wins.
	Attempts int
}

// DefaultKMeansCriteria matches the termination used by the cartoon and
// anime pipelines: 20 iterations or a shift below 1.0, 10 restarts.
var DefaultKMeansCriteria = KMeansCriteria{MaxIter: 20, Epsilon: 1.0, Attempts: 10}

type clustering struct {
	centers     [][3]float64
	labels      []int
	compactness float64
}

// kmeans partitions 3-D points into k clusters. Initial centers are drawn
// uniformly inside the bounding box of the data.
func kmeans(points [][3]float64, k int, crit KMeansCriteria, rng *rand.Rand) (*clustering, error) {
	if k < 1 {
		return nil, ErrTooFewClusters
	}
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	if k > len(points) {
		k = len(points)
	}
	attempts := max(crit.Attempts, 1)
	maxIter := max(crit.MaxIter, 1)
	eps2 := crit.Epsilon * crit.Epsilon

	lo, hi := points[0], points[0]
	for _, p := range points {
		for d := 0; d < 3; d++ {
			lo[d] = math.Min(lo[d], p[d])
			hi[d] = math.Max(hi[d], p[d])
		}
	}

	var best *clustering
	labels := make([]int, len(points))
	for a := 0; a < attempts; a++ {
		centers := make([][3]float64, k)
		for i := range centers {
			for d := 0; d < 3; d++ {
				centers[i][d] = lo[d] + rng.Float64()*(hi[d]-lo[d])
			}
		}

		for iter := 1; ; iter++ {
			assign(points, centers, labels)
			shift := recenter(points, centers, labels)
			if iter >= maxIter || shift <= eps2 {
				break
			}
		}
		compactness := assign(points, centers, labels)

		if best == nil || compactness < best.compactness {
			best = &clustering{
				centers:     centers,
				labels:      append([]int(nil), labels...),
				compactness: compactness,
			}
		}
	}
	return best, nil
}

// assign labels every point with its nearest center and returns the sum of
// squared distances.
func assign(points, centers [][3]float64, labels []int) float64 {
	var total float64
	for i, p := range points {
		bestK, bestD := 0, math.MaxFloat64
		for k, c := range centers {
			d := sqDist(p, c)
			if d < bestD {
				bestK, bestD = k, d
			}
		}
		labels[i] = bestK
		total += bestD
	}
	return total
}

// recenter moves every center to the mean of its points and returns the
// largest squared shift. An empty cluster takes over the point of the
// largest cluster that lies farthest from that cluster's center.
func recenter(points, centers [][3]float64, labels []int) float64 {
	k := len(centers)
	sums := make([][3]float64, k)
	counts := make([]int, k)
	for i, p := range points {
		l := labels[i]
		counts[l]++
		for d := 0; d < 3; d++ {
			sums[l][d] += p[d]
		}
	}

	for e := 0; e < k; e++ {
		if counts[e] > 0 {
			continue
		}
		big := 0
		for c := 1; c < k; c++ {
			if counts[c] > counts[big] {
				big = c
			}
		}
		if counts[big] < 2 {
			continue
		}
		far, farD := -1, -1.0
		for i, p := range points {
			if labels[i] != big {
				continue
			}
			if d := sqDist(p, centers[big]); d > farD {
				far, farD = i, d
			}
		}
		labels[far] = e
		counts[big]--
		counts[e]++
		for d := 0; d < 3; d++ {
			sums[big][d] -= points[far][d]
			sums[e][d] += points[far][d]
		}
	}

	var maxShift float64
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		var next [3]float64
		for d := 0; d < 3; d++ {
			next[d] = sums[c][d] / float64(counts[c])
		}
		maxShift = math.Max(maxShift, sqDist(next, centers[c]))
		centers[c] = next
	}
	return maxShift
}

func sqDist(a, b [3]float64) float64 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dr*dr + dg*dg + db*db
}

// quantizeKMeans replaces every pixel with the (truncated) centroid color of
// its k-means cluster.
func quantizeKMeans(src *image.RGBA, k int, crit KMeansCriteria, rng *rand.Rand) (*image.RGBA, error) {
	n := src.Rect.Dx() * src.Rect.Dy()
	points := make([][3]float64, n)
	for i := range points {
		o := i * 4
		points[i] = [3]float64{float64(src.Pix[o]), float64(src.Pix[o+1]), float64(src.Pix[o+2])}
	}

	cl, err := kmeans(points, k, crit, rng)
	if err != nil {
		return nil, err
	}

	palette := make([][3]uint8, len(cl.centers))
	for i, c := range cl.centers {
		for d := 0; d < 3; d++ {
			palette[i][d] = uint8(math.Max(0, math.Min(255, c[d])))
		}
	}

	dst := image.NewRGBA(src.Rect)
	for i, l := range cl.labels {
		o := i * 4
		c := palette[l]
		dst.Pix[o], dst.Pix[o+1], dst.Pix[o+2], dst.Pix[o+3] = c[0], c[1], c[2], 0xff
	}
	return dst, nil
}
