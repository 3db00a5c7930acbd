package forest

import (
	"reflect"
	"testing"
)

func TestNaturalSort(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{
			in:   []string{"Sc010", "Sc2", "Sc001"},
			want: []string{"Sc001", "Sc2", "Sc010"},
		},
		{
			in:   []string{"houdini19.5", "houdini18.5", "houdini19.0"},
			want: []string{"houdini18.5", "houdini19.0", "houdini19.5"},
		},
		{
			// Case folds, digits beat their string ordering.
			in:   []string{"beta", "Alpha", "v10", "v9"},
			want: []string{"Alpha", "beta", "v9", "v10"},
		},
		{
			in:   []string{"a1b10", "a1b2", "a1"},
			want: []string{"a1", "a1b2", "a1b10"},
		},
	}
	for _, tt := range tests {
		got := make([]string, len(tt.in))
		copy(got, tt.in)
		NaturalSort(got)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NaturalSort(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNaturalLessLeadingZeros(t *testing.T) {
	if !naturalLess("Sc001", "Sc2") {
		t.Error("Sc001 should sort before Sc2")
	}
	if naturalLess("Sc2", "Sc2") {
		t.Error("equal strings are not less")
	}
	if !naturalLess("Sc2", "Sc2x") {
		t.Error("prefix sorts first")
	}
}
