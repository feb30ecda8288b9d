package game

import "testing"

func TestPercent(t *testing.T) {
	tests := []struct {
		name  string
		count int
		total int
		want  float64
	}{
		{"half", 1, 2, 50},
		{"all", 3, 3, 100},
		{"none answered", 0, 0, 0},
		{"zero count nonzero total", 0, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percent(tt.count, tt.total); got != tt.want {
				t.Errorf("Percent(%d, %d) = %v, want %v", tt.count, tt.total, got, tt.want)
			}
		})
	}
}
