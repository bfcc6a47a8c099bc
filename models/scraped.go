package models

import "time"

type DiscountType string

const (
	DiscountMonthsFree  DiscountType = "months_free"
	DiscountReducedRent DiscountType = "reduced_rent"
	DiscountWaivedFees  DiscountType = "waived_fees"
	DiscountGiftCard    DiscountType = "gift_card"
	DiscountOther       DiscountType = "other"
)

// DollarDenominated reports whether DiscountValue holds a dollar amount.
func (d DiscountType) DollarDenominated() bool {
	switch d {
	case DiscountReducedRent, DiscountWaivedFees, DiscountGiftCard:
		return true
	}
	return false
}

// ScrapedBuilding is what a provider extracts from one property site.
// It is input to reconciliation and is never stored as-is.
type ScrapedBuilding struct {
	Name             string             `json:"name"`
	Address          string             `json:"address"`
	City             string             `json:"city"`
	State            string             `json:"state"`
	Zip              string             `json:"zip"`
	Lat              *float64           `json:"lat,omitempty"`
	Lng              *float64           `json:"lng,omitempty"`
	Phone            string             `json:"phone,omitempty"`
	PhotoURLs        []string           `json:"photo_urls,omitempty"`
	Amenities        []string           `json:"amenities,omitempty"`
	PetFriendly      bool               `json:"pet_friendly"`
	ParkingAvailable bool               `json:"parking_available"`
	ListingURL       string             `json:"listing_url"`
	FloorPlansURL    string             `json:"floor_plans_url,omitempty"`
	FloorPlans       []ScrapedFloorPlan `json:"floor_plans"`
	Specials         []ScrapedSpecial   `json:"specials"`
}

type ScrapedFloorPlan struct {
	Name           string  `json:"name,omitempty"`
	Bedrooms       int     `json:"bedrooms"` // 0 = studio
	Bathrooms      float64 `json:"bathrooms"`
	SqFtMin        *int    `json:"sqft_min,omitempty"`
	SqFtMax        *int    `json:"sqft_max,omitempty"`
	RentMin        int     `json:"rent_min"` // 0 = unparsed, not free
	RentMax        int     `json:"rent_max"`
	AvailableCount int     `json:"available_count"`
	PhotoURL       string  `json:"photo_url,omitempty"`
}

type ScrapedSpecial struct {
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	DiscountType  *DiscountType      `json:"discount_type"`
	DiscountValue *float64           `json:"discount_value"`
	Conditions    *SpecialConditions `json:"conditions,omitempty"`
	StartDate     *time.Time         `json:"start_date,omitempty"`
	EndDate       *time.Time         `json:"end_date,omitempty"`
	RawMarkup     string             `json:"raw_markup,omitempty"`
	TargetPlans   []string           `json:"target_plans"` // nil = building-wide
}

// SpecialConditions holds the fine print we can parse out of promo text
type SpecialConditions struct {
	MinLeaseMonths   *int       `json:"min_lease_months,omitempty"`
	MoveInBy         *time.Time `json:"move_in_by,omitempty"`
	NewResidentsOnly bool       `json:"new_residents_only,omitempty"`
	SelectUnitsOnly  bool       `json:"select_units_only,omitempty"`
}

// Empty reports whether no condition was found.
func (c *SpecialConditions) Empty() bool {
	return c == nil || (c.MinLeaseMonths == nil && c.MoveInBy == nil && !c.NewResidentsOnly && !c.SelectUnitsOnly)
}
