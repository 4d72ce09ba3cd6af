package knowledge

import (
	"math"
	"testing"
)

func TestDistanceToScore(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     float64
	}{
		{name: "identical vectors", distance: 0, want: 1},
		{name: "orthogonal vectors", distance: 1, want: 0.5},
		{name: "opposite vectors", distance: 2, want: 0},
		{name: "typical distance", distance: 0.6, want: 0.7},
		{name: "negative distance clamps high", distance: -0.1, want: 1},
		{name: "out of range clamps low", distance: 2.5, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := distanceToScore(tt.distance)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("distanceToScore(%v) = %v, want %v", tt.distance, got, tt.want)
			}
		})
	}
}

func TestPointKey(t *testing.T) {
	got := PointKey("guides_install.md", "guides_install.md_chunk_2", "abc123")
	want := "guides_install.md|guides_install.md_chunk_2|abc123"
	if got != want {
		t.Errorf("PointKey = %q, want %q", got, want)
	}
}

func TestNewPGVectorStore_Validation(t *testing.T) {
	if _, err := NewPGVectorStore(nil, "knowledge_chunks", 1536, nil); err == nil {
		t.Error("expected error for nil pool")
	}
}
