package settings

import "testing"

func TestTransition_Observe(t *testing.T) {
	tests := []struct {
		name    string
		initial bool
		steps   []bool
		want    []bool
	}{
		{"enable from off", false, []bool{true}, []bool{true}},
		{"stays on", true, []bool{true, true}, []bool{false, false}},
		{"off then on", true, []bool{false, true}, []bool{false, true}},
		{"repeated enables fire once", false, []bool{true, true, false, true}, []bool{true, false, false, true}},
		{"stays off", false, []bool{false}, []bool{false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransition(tt.initial)
			for i, v := range tt.steps {
				if got := tr.Observe(v); got != tt.want[i] {
					t.Errorf("step %d Observe(%v) = %v, want %v", i, v, got, tt.want[i])
				}
			}
		})
	}
}

func TestTransition_Independent(t *testing.T) {
	a, b := NewTransition(false), NewTransition(false)
	a.Observe(true)
	if !b.Observe(true) {
		t.Error("trackers must not share state")
	}
}
