package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBedrooms(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"Studio | 1 Bath | 540 sq ft", 0},
		{"STUDIO", 0},
		{"1 Bed 1 Bath", 1},
		{"2BR/2BA", 2},
		{"3 Bedrooms, 2 Baths", 3},
		{"2 bd 1 ba", 2},
		{"The Aspen", 1},
		{"", 1},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, Bedrooms(tc.text))
		})
	}
}

func TestParseBedrooms_ReportsMiss(t *testing.T) {
	_, ok := ParseBedrooms("Plan A2")
	assert.False(t, ok)

	n, ok := ParseBedrooms("Studio")
	assert.True(t, ok)
	assert.Equal(t, 0, n)
}

func TestPlanCodeBedrooms(t *testing.T) {
	tests := []struct {
		code   string
		want   int
		wantOK bool
	}{
		{"S1", 0, true},
		{"A2", 1, true},
		{"B1", 2, true},
		{"C3", 3, true},
		{"Plan B2a", 2, true},
		{"The Birch", 0, false},
		{"D1", 0, false},
		{"a2", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			got, ok := PlanCodeBedrooms(tc.code)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBathrooms(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"1 Bed 1.5 Bath", 1.5},
		{"2BR/2BA", 2},
		{"3 Bedrooms 2 Bathrooms", 2},
		{"Studio", 1},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, Bathrooms(tc.text))
		})
	}
}
