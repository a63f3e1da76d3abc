package cortex

import "testing"

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		complexity float64
		want       bool
	}{
		{"confident low complexity", "The answer is 42.", 0.2, false},
		{"high complexity", "The answer is 42.", 0.9, true},
		{"at threshold", "fine", 0.7, true},
		{"hedging", "I'm not sure, but it could be related to DNS.", 0.1, true},
		{"hedging uppercase", "It DEPENDS on the workload.", 0.1, true},
		{"unclear marker", "The requirements are unclear here.", 0.3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldEscalate(tt.response, tt.complexity, 0.7); got != tt.want {
				t.Errorf("ShouldEscalate(%q, %v) = %v, want %v", tt.response, tt.complexity, got, tt.want)
			}
		})
	}
}
