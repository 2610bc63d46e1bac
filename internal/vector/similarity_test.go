package vector

import (
	"math"
	"testing"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"", MetricCosine, false},
		{"cosine", MetricCosine, false},
		{"L2", MetricL2, false},
		{"euclidean", MetricL2, false},
		{"dot", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMetric(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMetric(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{2, 0}); math.Abs(d) > 1e-9 {
		t.Errorf("parallel vectors: distance %f, want 0", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 1}); math.Abs(d-1) > 1e-9 {
		t.Errorf("orthogonal vectors: distance %f, want 1", d)
	}
	if d := CosineDistance([]float32{0, 0}, []float32{0, 1}); d != 1 {
		t.Errorf("zero vector: distance %f, want 1", d)
	}
}

func TestL2Distance(t *testing.T) {
	if d := L2Distance([]float32{0, 0}, []float32{3, 4}); math.Abs(d-5) > 1e-9 {
		t.Errorf("distance %f, want 5", d)
	}
	if d := L2Distance([]float32{0}, []float32{3, 4}); !math.IsInf(d, 1) {
		t.Errorf("length mismatch should be +Inf, got %f", d)
	}
}

func TestMetric_Similarity(t *testing.T) {
	if s := MetricCosine.Similarity(0); s != 1 {
		t.Errorf("cosine similarity at distance 0 = %f", s)
	}
	if s := MetricL2.Similarity(0); s != 1 {
		t.Errorf("l2 similarity at distance 0 = %f", s)
	}
	if MetricL2.Similarity(1) <= MetricL2.Similarity(2) {
		t.Error("similarity should decrease with distance")
	}
}
