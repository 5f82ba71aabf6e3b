package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleSectionScore(t *testing.T) {
	tests := []struct {
		name    string
		correct int
		total   int
		want    int
	}{
		{"no questions", 0, 0, 0},
		{"all wrong", 0, 100, 5},
		{"all correct", 100, 100, 495},
		{"half", 50, 100, 250},
		{"partial test scaled", 10, 20, 250},
		{"over total clamps", 120, 100, 495},
		{"negative clamps", -3, 100, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleSectionScore(tt.correct, tt.total)
			assert.Equal(t, tt.want, got)
			if tt.total > 0 {
				assert.Zero(t, got%5, "score must be a multiple of 5")
			}
		})
	}
}

func TestEstimateLevel(t *testing.T) {
	assert.Equal(t, "International Professional", EstimateLevel(990))
	assert.Equal(t, "Limited Working Proficiency", EstimateLevel(605))
	assert.Equal(t, "Basic Proficiency", EstimateLevel(10))
}

func TestAbilityToScore(t *testing.T) {
	assert.Equal(t, 600, AbilityToScore(0))
	assert.Equal(t, 750, AbilityToScore(1))
	assert.Equal(t, 990, AbilityToScore(10))
	assert.Equal(t, 10, AbilityToScore(-10))
}
