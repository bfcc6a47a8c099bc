package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want RentRange
	}{
		{"range", "$1,500 - $1,800", RentRange{Min: 1500, Max: 1800}},
		{"single", "$1,650", RentRange{Min: 1650, Max: 1650}},
		{"no match", "Call for details", RentRange{}},
		{"starting at", "Starting at $2,105/mo", RentRange{Min: 2105, Max: 2105}},
		{"to range", "$1,395 to $1,455", RentRange{Min: 1395, Max: 1455}},
		{"en dash", "$1,200–1,350", RentRange{Min: 1200, Max: 1350}},
		{"reversed", "$1,800 - $1,500", RentRange{Min: 1500, Max: 1800}},
		{"cents", "$1,499.00", RentRange{Min: 1499, Max: 1499}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Rent(tc.text))
		})
	}
}

func TestRentRange_Parsed(t *testing.T) {
	assert.False(t, RentRange{}.Parsed())
	assert.True(t, RentRange{Min: 900, Max: 900}.Parsed())
}

func TestSquareFeet(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin int
		wantMax int
		wantNil bool
	}{
		{name: "range", text: "750 - 820 sq ft", wantMin: 750, wantMax: 820},
		{name: "single", text: "1 Bed | 1 Bath | 742 Sq. Ft.", wantMin: 742, wantMax: 742},
		{name: "thousands", text: "1,105 sqft", wantMin: 1105, wantMax: 1105},
		{name: "bare range", text: "980-1,040", wantMin: 980, wantMax: 1040},
		{name: "bare single", text: "2 Bed 2 Bath 1150", wantMin: 1150, wantMax: 1150},
		{name: "unit beats rent", text: "$1,450 | 690 SF", wantMin: 690, wantMax: 690},
		{name: "rent only", text: "$1,450", wantNil: true},
		{name: "nothing", text: "Studio", wantNil: true},
		{name: "phone is not a range", text: "A1 1 Bed 1 Bath Call 404-555-0111", wantNil: true},
		{name: "parenthesized phone", text: "Call (404) 555-0111 today", wantNil: true},
		{name: "phone beside area", text: "Call 404-555-0111 | 725", wantMin: 725, wantMax: 725},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lo, hi := SquareFeet(tc.text)
			if tc.wantNil {
				assert.Nil(t, lo)
				assert.Nil(t, hi)
				return
			}
			if assert.NotNil(t, lo) && assert.NotNil(t, hi) {
				assert.Equal(t, tc.wantMin, *lo)
				assert.Equal(t, tc.wantMax, *hi)
			}
		})
	}
}
