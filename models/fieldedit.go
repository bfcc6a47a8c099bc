package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EditSource string

// EditSourceLocator marks a human edit. Scraper writes never create edit rows.
const EditSourceLocator EditSource = "locator"

type ConflictResolution string

const (
	ResolveKeepLocator   ConflictResolution = "keep_locator"
	ResolveAcceptScraper ConflictResolution = "accept_scraper"
)

// EditTarget points at exactly one unit or building
type EditTarget struct {
	UnitID     *uuid.UUID `json:"unit_id,omitempty"`
	BuildingID *uuid.UUID `json:"building_id,omitempty"`
}

func UnitTarget(id uuid.UUID) EditTarget {
	return EditTarget{UnitID: &id}
}

func BuildingTarget(id uuid.UUID) EditTarget {
	return EditTarget{BuildingID: &id}
}

func (t EditTarget) Validate() error {
	if (t.UnitID == nil) == (t.BuildingID == nil) {
		return ErrInvalidTarget
	}
	return nil
}

func (t EditTarget) String() string {
	if t.UnitID != nil {
		return "unit:" + t.UnitID.String()
	}
	if t.BuildingID != nil {
		return "building:" + t.BuildingID.String()
	}
	return "none"
}

// FieldEdit is one entry in the append-only override log for (target, field).
// Only HasConflict and ConflictValue change after insert.
type FieldEdit struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UnitID        *uuid.UUID      `json:"unit_id" db:"unit_id"`
	BuildingID    *uuid.UUID      `json:"building_id" db:"building_id"`
	FieldName     string          `json:"field_name" db:"field_name"`
	PreviousValue json.RawMessage `json:"previous_value" db:"previous_value"`
	NewValue      json.RawMessage `json:"new_value" db:"new_value"`
	Source        EditSource      `json:"source" db:"source"`
	EditorID      string          `json:"editor_id" db:"editor_id"`
	HasConflict   bool            `json:"has_conflict" db:"has_conflict"`
	ConflictValue json.RawMessage `json:"conflict_value" db:"conflict_value"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

func (e *FieldEdit) Target() EditTarget {
	return EditTarget{UnitID: e.UnitID, BuildingID: e.BuildingID}
}

func (e *FieldEdit) String() string {
	return fmt.Sprintf("%s %s.%s", e.ID, e.Target(), e.FieldName)
}

// Editable fields per target kind. Names match catalog column names.
var (
	buildingFields = map[string]bool{
		"name": true, "address": true, "city": true, "state": true, "zip": true,
		"lat": true, "lng": true, "phone": true, "photo_urls": true, "amenities": true,
		"pet_friendly": true, "parking_available": true, "floor_plans_url": true,
	}
	unitFields = map[string]bool{
		"name": true, "bedrooms": true, "bathrooms": true, "sqft_min": true, "sqft_max": true,
		"rent_min": true, "rent_max": true, "available_count": true, "photo_url": true,
	}
)

// EditableField reports whether field may carry a human override on t.
func EditableField(t EditTarget, field string) bool {
	if t.UnitID != nil {
		return unitFields[field]
	}
	return buildingFields[field]
}
