package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apt_scrooper/models"
)

func TestClassifyDiscount(t *testing.T) {
	tests := []struct {
		text   string
		want   models.DiscountType
		wantOK bool
	}{
		{"1 Month Free!", models.DiscountMonthsFree, true},
		{"Get 6 weeks free on select homes", models.DiscountMonthsFree, true},
		{"Free month of rent", models.DiscountMonthsFree, true},
		{"1 month free plus $500 off move-in", models.DiscountMonthsFree, true},
		{"$500 off your first month's rent", models.DiscountReducedRent, true},
		{"Reduced rates on 2 bedrooms", models.DiscountReducedRent, true},
		{"Save $300 when you tour today", models.DiscountReducedRent, true},
		{"Application fee waived", models.DiscountWaivedFees, true},
		{"No application or admin fees", models.DiscountWaivedFees, true},
		{"Free application this weekend", models.DiscountWaivedFees, true},
		{"$250 Amazon gift card at move-in", models.DiscountGiftCard, true},
		{"Receive a $200 Visa card", models.DiscountGiftCard, true},
		{"Ask about our specials", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := ClassifyDiscount(tc.text)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDiscountTypeOf_DefaultsToOther(t *testing.T) {
	assert.Equal(t, models.DiscountOther, DiscountTypeOf("Ask about our specials"))
	assert.Equal(t, models.DiscountMonthsFree, DiscountTypeOf("2 months free"))
}

func TestDiscountValue(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.DiscountType
		text    string
		want    float64
		wantNil bool
	}{
		{name: "months", kind: models.DiscountMonthsFree, text: "2 Months Free", want: 2},
		{name: "weeks", kind: models.DiscountMonthsFree, text: "6 weeks free", want: 1.5},
		{name: "word", kind: models.DiscountMonthsFree, text: "One month free rent", want: 1},
		{name: "first month", kind: models.DiscountMonthsFree, text: "First Month Free", want: 1},
		{name: "lease term first", kind: models.DiscountMonthsFree, text: "Sign a 12 month lease, get 1 month free", want: 1},
		{name: "half", kind: models.DiscountMonthsFree, text: "Half a month free", want: 0.5},
		{name: "no quantity", kind: models.DiscountMonthsFree, text: "Rent free!", wantNil: true},
		{name: "dollar", kind: models.DiscountReducedRent, text: "$1,000 off", want: 1000},
		{name: "first dollar wins", kind: models.DiscountReducedRent, text: "$500 off, originally $1800", want: 500},
		{name: "waived", kind: models.DiscountWaivedFees, text: "$0 admin fee, save $150", want: 0},
		{name: "gift card", kind: models.DiscountGiftCard, text: "$250 gift card", want: 250},
		{name: "other", kind: models.DiscountOther, text: "$99 deposit", wantNil: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DiscountValue(tc.kind, tc.text)
			if tc.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, tc.want, *got, 0.0001)
		})
	}
}
