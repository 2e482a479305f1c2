package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signalHub/internal/domain"
)

func TestProfileFor(t *testing.T) {
	tests := []struct {
		level    domain.RiskLevel
		expected Profile
	}{
		{domain.RiskLow, Profile{2.5, 3.0, 0.005}},
		{domain.RiskMedium, Profile{2.0, 2.5, 0.01}},
		{domain.RiskHigh, Profile{1.5, 2.0, 0.02}},
		{domain.RiskAggressive, Profile{1.2, 1.5, 0.03}},
		{domain.RiskLevel("unknown"), Profile{2.0, 2.5, 0.01}},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.expected, ProfileFor(tt.level))
		})
	}
}

func TestStopLossAndTakeProfits(t *testing.T) {
	assert.Equal(t, 95.0, StopLoss(100, 5, domain.Buy))
	assert.Equal(t, 105.0, StopLoss(100, 5, domain.Sell))

	assert.Equal(t, []float64{110, 120, 130}, TakeProfits(100, 10, domain.Buy, 3))
	assert.Equal(t, []float64{90, 80, 70}, TakeProfits(100, 10, domain.Sell, 3))
	assert.Empty(t, TakeProfits(100, 10, domain.Buy, 0))
}

func TestCheckCeiling(t *testing.T) {
	assert.NoError(t, CheckCeiling(2, 3))
	assert.Error(t, CheckCeiling(3, 3))
	assert.Error(t, CheckCeiling(3, 0), "zero ceiling falls back to the default of 3")
	assert.NoError(t, CheckCeiling(0, 1))
}
