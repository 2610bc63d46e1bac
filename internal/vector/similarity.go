package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric is the distance function an index is built with.
type Metric string

const (
	// MetricCosine uses 1 - cosine similarity as distance.
	MetricCosine Metric = "cosine"
	// MetricL2 uses Euclidean distance.
	MetricL2 Metric = "l2"
)

// ParseMetric parses a metric name; empty defaults to cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case MetricCosine, "":
		return MetricCosine, nil
	case MetricL2, "euclidean":
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unknown vector metric: %s (supported: cosine, l2)", s)
	}
}

// Distance returns the distance between a and b under the metric. Lower is closer.
func (m Metric) Distance(a, b []float32) float64 {
	if m == MetricL2 {
		return L2Distance(a, b)
	}
	return CosineDistance(a, b)
}

// Similarity converts a distance into a similarity score where higher is closer.
// Cosine yields the cosine similarity in [-1, 1]; L2 yields 1/(1+d) in (0, 1].
func (m Metric) Similarity(distance float64) float64 {
	if m == MetricL2 {
		return 1 / (1 + distance)
	}
	return 1 - distance
}

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - InnerProduct(a, b)/(na*nb)
}

// L2Distance returns the Euclidean distance between a and b.
func L2Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
