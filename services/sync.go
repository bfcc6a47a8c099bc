package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"apt_scrooper/identity"
	"apt_scrooper/metrics"
	"apt_scrooper/models"
	"apt_scrooper/storage"
)

// SyncService writes scraped buildings and their floor plans to the catalog.
// Existing rows go through the field edit overlay so human corrections stick.
type SyncService struct {
	store storage.CatalogStore
	edits *FieldEditService
	log   *logrus.Logger
	now   func() time.Time
}

func NewSyncService(store storage.CatalogStore, edits *FieldEditService, log *logrus.Logger) *SyncService {
	return &SyncService{store: store, edits: edits, log: log, now: time.Now}
}

// SyncReport counts what one provider batch wrote. Synced holds the input
// buildings whose rows were written, for the specials pass.
type SyncReport struct {
	BuildingsNew     int                      `json:"buildings_new"`
	BuildingsUpdated int                      `json:"buildings_updated"`
	UnitsWritten     int                      `json:"units_written"`
	Conflicts        int                      `json:"conflicts"`
	Errors           []string                 `json:"errors"`
	Synced           []models.ScrapedBuilding `json:"-"`
}

// SyncBuildings upserts every building and its units. A failure on one
// building is recorded and the batch continues.
func (s *SyncService) SyncBuildings(ctx context.Context, provider string, buildings []models.ScrapedBuilding) *SyncReport {
	report := &SyncReport{}

	for i := range buildings {
		b := &buildings[i]
		if b.ListingURL == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("%q: missing listing url", b.Name))
			continue
		}

		row, created, conflicts, err := s.upsertBuilding(ctx, provider, b)
		report.Conflicts += conflicts
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", b.ListingURL, err))
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrWrite).Inc()
			continue
		}
		if created {
			report.BuildingsNew++
		} else {
			report.BuildingsUpdated++
		}

		for j := range b.FloorPlans {
			n, err := s.upsertUnit(ctx, row.ID, &b.FloorPlans[j])
			report.Conflicts += n
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: unit %s: %v", b.ListingURL, identity.PlanKey(&b.FloorPlans[j]), err))
				metrics.ErrorsTotal.WithLabelValues(metrics.ErrWrite).Inc()
				continue
			}
			report.UnitsWritten++
		}

		report.Synced = append(report.Synced, *b)
	}

	s.log.WithFields(logrus.Fields{
		"provider":          provider,
		"buildings_new":     report.BuildingsNew,
		"buildings_updated": report.BuildingsUpdated,
		"units":             report.UnitsWritten,
		"conflicts":         report.Conflicts,
		"errors":            len(report.Errors),
	}).Info("Catalog sync finished")
	return report
}

func (s *SyncService) findBuilding(ctx context.Context, provider string, b *models.ScrapedBuilding) (*models.Building, error) {
	row, err := s.store.GetBuildingByListingURL(ctx, b.ListingURL)
	if err != nil || row != nil {
		return row, err
	}
	return s.store.GetBuildingByAddress(ctx, identity.NormalizeAddress(b.Address), provider)
}

func (s *SyncService) upsertBuilding(ctx context.Context, provider string, b *models.ScrapedBuilding) (*models.Building, bool, int, error) {
	now := s.now()

	existing, err := s.findBuilding(ctx, provider, b)
	if err != nil {
		return nil, false, 0, fmt.Errorf("find building: %w", err)
	}

	photos := jsonList(b.PhotoURLs)
	amenities := jsonList(b.Amenities)

	if existing == nil {
		row := &models.Building{
			ID:               uuid.New(),
			Provider:         provider,
			Name:             b.Name,
			Address:          b.Address,
			AddressKey:       identity.NormalizeAddress(b.Address),
			City:             b.City,
			State:            b.State,
			Zip:              b.Zip,
			Lat:              b.Lat,
			Lng:              b.Lng,
			Phone:            b.Phone,
			PhotoURLs:        photos,
			Amenities:        amenities,
			PetFriendly:      b.PetFriendly,
			ParkingAvailable: b.ParkingAvailable,
			ListingURL:       b.ListingURL,
			FloorPlansURL:    b.FloorPlansURL,
			LastScrapedAt:    &now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.store.InsertBuilding(ctx, row); err != nil {
			return nil, false, 0, fmt.Errorf("insert building: %w", err)
		}
		return row, true, 0, nil
	}

	o := &overlay{ctx: ctx, edits: s.edits, target: models.BuildingTarget(existing.ID)}
	apply(o, "name", &existing.Name, b.Name)
	apply(o, "address", &existing.Address, b.Address)
	apply(o, "city", &existing.City, b.City)
	apply(o, "state", &existing.State, b.State)
	apply(o, "zip", &existing.Zip, b.Zip)
	apply(o, "lat", &existing.Lat, b.Lat)
	apply(o, "lng", &existing.Lng, b.Lng)
	apply(o, "phone", &existing.Phone, b.Phone)
	apply(o, "photo_urls", &existing.PhotoURLs, photos)
	apply(o, "amenities", &existing.Amenities, amenities)
	apply(o, "pet_friendly", &existing.PetFriendly, b.PetFriendly)
	apply(o, "parking_available", &existing.ParkingAvailable, b.ParkingAvailable)
	apply(o, "floor_plans_url", &existing.FloorPlansURL, b.FloorPlansURL)
	if o.err != nil {
		return nil, false, o.conflicts, o.err
	}

	existing.Provider = provider
	existing.AddressKey = identity.NormalizeAddress(existing.Address)
	existing.ListingURL = b.ListingURL
	existing.LastScrapedAt = &now
	existing.UpdatedAt = now
	if err := s.store.UpdateBuilding(ctx, existing); err != nil {
		return nil, false, o.conflicts, fmt.Errorf("update building: %w", err)
	}
	return existing, false, o.conflicts, nil
}

// upsertUnit writes one floor plan keyed by plan key. An unparsed (zero)
// rent is not a scraped value: the stored rent and any conflict on it are
// left alone.
func (s *SyncService) upsertUnit(ctx context.Context, buildingID uuid.UUID, fp *models.ScrapedFloorPlan) (int, error) {
	now := s.now()
	key := identity.PlanKey(fp)

	existing, err := s.store.GetUnitByPlanKey(ctx, buildingID, key)
	if err != nil {
		return 0, fmt.Errorf("find unit: %w", err)
	}

	if existing == nil {
		u := &models.Unit{
			ID:             uuid.New(),
			BuildingID:     buildingID,
			PlanKey:        key,
			Name:           fp.Name,
			Bedrooms:       fp.Bedrooms,
			Bathrooms:      fp.Bathrooms,
			SqFtMin:        fp.SqFtMin,
			SqFtMax:        fp.SqFtMax,
			RentMin:        fp.RentMin,
			RentMax:        fp.RentMax,
			AvailableCount: fp.AvailableCount,
			PhotoURL:       fp.PhotoURL,
			LastSeenAt:     now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return 0, s.store.InsertUnit(ctx, u)
	}

	o := &overlay{ctx: ctx, edits: s.edits, target: models.UnitTarget(existing.ID)}
	apply(o, "name", &existing.Name, fp.Name)
	apply(o, "bedrooms", &existing.Bedrooms, fp.Bedrooms)
	apply(o, "bathrooms", &existing.Bathrooms, fp.Bathrooms)
	apply(o, "sqft_min", &existing.SqFtMin, fp.SqFtMin)
	apply(o, "sqft_max", &existing.SqFtMax, fp.SqFtMax)
	if fp.RentMin != 0 || fp.RentMax != 0 {
		apply(o, "rent_min", &existing.RentMin, fp.RentMin)
		apply(o, "rent_max", &existing.RentMax, fp.RentMax)
	}
	apply(o, "available_count", &existing.AvailableCount, fp.AvailableCount)
	apply(o, "photo_url", &existing.PhotoURL, fp.PhotoURL)
	if o.err != nil {
		return o.conflicts, o.err
	}

	existing.LastSeenAt = now
	existing.UpdatedAt = now
	if err := s.store.UpdateUnit(ctx, existing); err != nil {
		return o.conflicts, fmt.Errorf("update unit: %w", err)
	}
	return o.conflicts, nil
}

// overlay threads the first error through a run of apply calls.
type overlay struct {
	ctx       context.Context
	edits     *FieldEditService
	target    models.EditTarget
	conflicts int
	err       error
}

func apply[T any](o *overlay, field string, dst *T, scraped T) {
	if o.err != nil {
		return
	}
	v, conflict, err := Overlay(o.ctx, o.edits, o.target, field, scraped)
	if err != nil {
		o.err = fmt.Errorf("%s: %w", field, err)
		return
	}
	if conflict {
		o.conflicts++
	}
	*dst = v
}

func jsonList(items []string) json.RawMessage {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return data
}
