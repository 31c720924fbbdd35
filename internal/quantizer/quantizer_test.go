package quantizer

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		value float64
		step  float64
		want  string
	}{
		{0.0034, 0.001, "0.003"},
		{1.23456, 0.01, "1.23"},
		{1.239999, 0.01, "1.23"},
		{2.5, 1, "2"},
		{123.456, 0.1, "123.4"},
		{0.3, 0.1, "0.3"},
		{0.0009, 0.001, "0.000"},
		{0, 0.001, "0.000"},
		{31250.75, 0.1, "31250.7"},
		{100, 10, "100"},
		{105, 10, "100"},
	}
	for _, tt := range tests {
		got := RoundToStep(tt.value, tt.step)
		assert.Equal(t, tt.want, got, "RoundToStep(%v, %v)", tt.value, tt.step)
	}
}

func TestRoundToStepNeverExceedsValue(t *testing.T) {
	steps := []float64{1, 0.1, 0.01, 0.001, 0.0001, 0.00001}
	values := []float64{0.00123, 0.987654, 1.5, 17.3333, 1234.5678, 0.1 + 0.2}
	for _, step := range steps {
		for _, value := range values {
			out := RoundToStep(value, step)

			got, err := decimal.NewFromString(out)
			require.NoError(t, err)
			assert.True(t, got.LessThanOrEqual(decimal.NewFromFloat(value)), "%s > %v", out, value)
			assert.False(t, got.IsNegative())

			// 结果是 step 的整数倍
			ratio := got.Div(decimal.NewFromFloat(step))
			assert.True(t, ratio.Equal(ratio.Floor()), "%s is not a multiple of %v", out, step)

			// 小数位数与 step 一致
			places := 0
			if i := strings.IndexByte(out, '.'); i >= 0 {
				places = len(out) - i - 1
			}
			assert.Equal(t, Decimals(step), places, "decimals of %s", out)
		}
	}
}

func TestRoundToStepCoarseSteps(t *testing.T) {
	tests := []struct {
		value float64
		step  float64
		want  string
	}{
		{0.75, 0.5, "0.5"},
		{0.75, 0.25, "0.75"},
		{0.8, 0.25, "0.75"},
		{7.5, 5, "5"},
		{12, 2.5, "10.0"},
		{0.0034, 0.001, "0.003"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundToStep(tt.value, tt.step), "RoundToStep(%v, %v)", tt.value, tt.step)
	}
	assert.InDelta(t, 0.5, Floor(0.75, 0.5), 1e-12)
}

func TestDecimals(t *testing.T) {
	assert.Equal(t, 3, Decimals(0.001))
	assert.Equal(t, 0, Decimals(1))
	assert.Equal(t, 0, Decimals(10))
	assert.Equal(t, 8, Decimals(0.00000001))
	assert.Equal(t, 0, Decimals(0))
}

func TestNonPositiveStep(t *testing.T) {
	assert.Equal(t, "1.2345", RoundToStep(1.2345, 0))
	assert.Equal(t, 1.2345, Floor(1.2345, -1))
}

func TestFloor(t *testing.T) {
	assert.InDelta(t, 0.003, Floor(0.0034, 0.001), 1e-12)
	assert.InDelta(t, 42.5, Floor(42.59, 0.1), 1e-12)
}
