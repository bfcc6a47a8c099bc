package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Building is a persisted catalog row for one apartment community
type Building struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	Provider         string          `json:"provider" db:"provider"`
	Name             string          `json:"name" db:"name"`
	Address          string          `json:"address" db:"address"`
	AddressKey       string          `json:"address_key" db:"address_key"` // identity.NormalizeAddress(Address)
	City             string          `json:"city" db:"city"`
	State            string          `json:"state" db:"state"`
	Zip              string          `json:"zip" db:"zip"`
	Lat              *float64        `json:"lat" db:"lat"`
	Lng              *float64        `json:"lng" db:"lng"`
	Phone            string          `json:"phone" db:"phone"`
	PhotoURLs        json.RawMessage `json:"photo_urls" db:"photo_urls"`
	Amenities        json.RawMessage `json:"amenities" db:"amenities"`
	PetFriendly      bool            `json:"pet_friendly" db:"pet_friendly"`
	ParkingAvailable bool            `json:"parking_available" db:"parking_available"`
	ListingURL       string          `json:"listing_url" db:"listing_url"`
	FloorPlansURL    string          `json:"floor_plans_url" db:"floor_plans_url"`
	LastScrapedAt    *time.Time      `json:"last_scraped_at" db:"last_scraped_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Unit is one floor plan offered by a building
type Unit struct {
	ID             uuid.UUID `json:"id" db:"id"`
	BuildingID     uuid.UUID `json:"building_id" db:"building_id"`
	PlanKey        string    `json:"plan_key" db:"plan_key"`
	Name           string    `json:"name" db:"name"`
	Bedrooms       int       `json:"bedrooms" db:"bedrooms"`
	Bathrooms      float64   `json:"bathrooms" db:"bathrooms"`
	SqFtMin        *int      `json:"sqft_min" db:"sqft_min"`
	SqFtMax        *int      `json:"sqft_max" db:"sqft_max"`
	RentMin        int       `json:"rent_min" db:"rent_min"`
	RentMax        int       `json:"rent_max" db:"rent_max"`
	AvailableCount int       `json:"available_count" db:"available_count"`
	PhotoURL       string    `json:"photo_url" db:"photo_url"`
	LastSeenAt     time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Special is the durable promotional record. At most one active row per
// (BuildingID, Title).
type Special struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	BuildingID    uuid.UUID          `json:"building_id" db:"building_id"`
	Provider      string             `json:"provider" db:"provider"`
	Title         string             `json:"title" db:"title"`
	Description   string             `json:"description" db:"description"`
	DiscountType  *DiscountType      `json:"discount_type" db:"discount_type"`
	DiscountValue *float64           `json:"discount_value" db:"discount_value"`
	Conditions    *SpecialConditions `json:"conditions" db:"conditions"`
	StartDate     *time.Time         `json:"start_date" db:"start_date"`
	EndDate       *time.Time         `json:"end_date" db:"end_date"`
	SourceURL     string             `json:"source_url" db:"source_url"`
	RawMarkup     string             `json:"raw_markup" db:"raw_markup"`
	TargetPlans   []string           `json:"target_plans" db:"target_plans"`
	ScrapedAt     time.Time          `json:"scraped_at" db:"scraped_at"`
	IsActive      bool               `json:"is_active" db:"is_active"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// ApplyScraped copies the mutable fields of a scraped special onto the record.
func (s *Special) ApplyScraped(in *ScrapedSpecial, sourceURL string) {
	s.Description = in.Description
	s.DiscountType = in.DiscountType
	s.DiscountValue = in.DiscountValue
	s.Conditions = in.Conditions
	s.StartDate = in.StartDate
	s.EndDate = in.EndDate
	s.SourceURL = sourceURL
	s.RawMarkup = in.RawMarkup
	s.TargetPlans = in.TargetPlans
}

// ScrapeResult is the uniform return shape of every provider scrape
type ScrapeResult struct {
	Provider  string            `json:"provider"`
	Buildings []ScrapedBuilding `json:"buildings"`
	Errors    []string          `json:"errors"`
	ScrapedAt time.Time         `json:"scraped_at"`
}
