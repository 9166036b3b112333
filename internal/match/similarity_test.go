package match_test

import (
	"math"
	"testing"

	"github.com/zikrgate/zikrgate/internal/match"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 1.0},
		{"left empty", "", "subhanallah", 0.0},
		{"right empty", "subhanallah", "", 0.0},
		{"identical", "subhanallah", "subhanallah", 1.0},
		{"one substitution", "subhanallah", "subhanallzh", 1.0 - 1.0/11.0},
		{"one deletion", "subhanallah", "subhanalah", 1.0 - 1.0/11.0},
		{"disjoint", "abc", "xyz", 0.0},
		{"length normalized by longer", "ab", "abcd", 0.5},
		{"multibyte runes", "سبحان", "سبحانه", 1.0 - 1.0/6.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := match.Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarity_Bounds(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"", ""},
		{"a", ""},
		{"subhanallah", "alhamdulillah"},
		{"short", "a much longer unrelated string"},
		{"سبحان الله", "subhan allah"},
	}

	for _, p := range pairs {
		got := match.Similarity(p[0], p[1])
		if got < 0.0 || got > 1.0 {
			t.Errorf("Similarity(%q, %q) = %v, outside [0, 1]", p[0], p[1], got)
		}
	}
}
