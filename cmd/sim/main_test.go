package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		rounds  int
		step    time.Duration
		chance  float64
		wantErr bool
	}{
		{"defaults", 1, 500 * time.Millisecond, 0.02, false},
		{"zero step", 1, 0, 0.02, true},
		{"negative step", 1, -time.Second, 0.02, true},
		{"no rounds", 0, time.Second, 0.02, true},
		{"chance above one", 1, time.Second, 1.5, true},
		{"always complete", 3, time.Second, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(tt.rounds, tt.step, tt.chance)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
