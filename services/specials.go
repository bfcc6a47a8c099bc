package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"apt_scrooper/identity"
	"apt_scrooper/metrics"
	"apt_scrooper/models"
	"apt_scrooper/storage"
)

const DefaultStaleHours = 48

// SpecialsService reconciles scraped promotions with the catalog. Title is
// the only identity key within a building.
type SpecialsService struct {
	store storage.CatalogStore
	log   *logrus.Logger
	now   func() time.Time
}

func NewSpecialsService(store storage.CatalogStore, log *logrus.Logger) *SpecialsService {
	return &SpecialsService{store: store, log: log, now: time.Now}
}

type UpsertResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

type SyncResult struct {
	TotalCreated int      `json:"total_created"`
	TotalUpdated int      `json:"total_updated"`
	Errors       []string `json:"errors"`
}

// Upsert writes each special by (building, title): update the active row,
// else reactivate an inactive row, else insert. Blank titles are skipped; titles
// are matched byte for byte.
// A failed special is reported in the joined error and the rest still land.
func (s *SpecialsService) Upsert(ctx context.Context, buildingID uuid.UUID, provider string, specials []models.ScrapedSpecial, sourceURL string) (*UpsertResult, error) {
	result := &UpsertResult{}
	now := s.now()
	var errs []error

	for i := range specials {
		in := &specials[i]
		title := in.Title
		if strings.TrimSpace(title) == "" {
			continue
		}

		existing, err := s.store.FindSpecialByTitle(ctx, buildingID, title, true)
		if err != nil {
			errs = append(errs, fmt.Errorf("find active special %q: %w", title, err))
			continue
		}
		action := "updated"
		if existing == nil {
			existing, err = s.store.FindSpecialByTitle(ctx, buildingID, title, false)
			if err != nil {
				errs = append(errs, fmt.Errorf("find inactive special %q: %w", title, err))
				continue
			}
			action = "reactivated"
		}

		if existing != nil {
			existing.ApplyScraped(in, sourceURL)
			existing.Provider = provider
			existing.ScrapedAt = now
			existing.IsActive = true
			existing.UpdatedAt = now
			if err := s.store.UpdateSpecial(ctx, existing); err != nil {
				errs = append(errs, fmt.Errorf("update special %q: %w", title, err))
				continue
			}
			result.Updated++
			metrics.SpecialsUpserted.WithLabelValues(action).Inc()
			continue
		}

		sp := &models.Special{
			ID:         uuid.New(),
			BuildingID: buildingID,
			Provider:   provider,
			Title:      title,
			ScrapedAt:  now,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		sp.ApplyScraped(in, sourceURL)
		if err := s.store.InsertSpecial(ctx, sp); err != nil {
			errs = append(errs, fmt.Errorf("insert special %q: %w", title, err))
			continue
		}
		result.Created++
		metrics.SpecialsUpserted.WithLabelValues("created").Inc()
	}

	return result, errors.Join(errs...)
}

// DeactivateStale deactivates a provider's active specials not re-scraped
// within hours. Non-positive hours uses the default window.
func (s *SpecialsService) DeactivateStale(ctx context.Context, provider string, hours int) (int, error) {
	if hours <= 0 {
		hours = DefaultStaleHours
	}
	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)

	n, err := s.store.DeactivateStaleSpecials(ctx, provider, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale: %w", err)
	}
	if n > 0 {
		metrics.SpecialsDeactivated.WithLabelValues("stale").Add(float64(n))
		s.log.WithFields(logrus.Fields{
			"provider": provider,
			"hours":    hours,
			"count":    n,
		}).Info("Deactivated stale specials")
	}
	return int(n), nil
}

// DeactivateExpired deactivates active specials of any provider whose end
// date is before today. A special ending today stays active.
func (s *SpecialsService) DeactivateExpired(ctx context.Context) (int, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	n, err := s.store.DeactivateExpiredSpecials(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	if n > 0 {
		metrics.SpecialsDeactivated.WithLabelValues("expired").Add(float64(n))
		s.log.WithField("count", n).Info("Deactivated expired specials")
	}
	return int(n), nil
}

// SyncFromBuildings resolves each scraped building to its catalog row and
// upserts its specials. Misses and write failures are collected, not fatal.
func (s *SpecialsService) SyncFromBuildings(ctx context.Context, buildings []models.ScrapedBuilding, provider string) *SyncResult {
	result := &SyncResult{}

	for i := range buildings {
		b := &buildings[i]

		row, err := s.resolveBuilding(ctx, b, provider)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: resolve building: %v", b.ListingURL, err))
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrResolve).Inc()
			continue
		}
		if row == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: no catalog building for %q (%s)", b.ListingURL, b.Name, b.Address))
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrResolve).Inc()
			continue
		}

		sourceURL := b.ListingURL
		if b.FloorPlansURL != "" {
			sourceURL = b.FloorPlansURL
		}
		res, err := s.Upsert(ctx, row.ID, provider, b.Specials, sourceURL)
		if res != nil {
			result.TotalCreated += res.Created
			result.TotalUpdated += res.Updated
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", b.ListingURL, err))
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrWrite).Inc()
		}
	}

	return result
}

// resolveBuilding matches by listing URL first, then by normalized address
// within the provider.
func (s *SpecialsService) resolveBuilding(ctx context.Context, b *models.ScrapedBuilding, provider string) (*models.Building, error) {
	if b.ListingURL != "" {
		row, err := s.store.GetBuildingByListingURL(ctx, b.ListingURL)
		if err != nil || row != nil {
			return row, err
		}
	}
	key := identity.NormalizeAddress(b.Address)
	if key == "" {
		return nil, nil
	}
	return s.store.GetBuildingByAddress(ctx, key, provider)
}

// GetAllActiveSpecials returns every active special across providers.
func (s *SpecialsService) GetAllActiveSpecials(ctx context.Context) ([]models.Special, error) {
	return s.store.ListActiveSpecials(ctx)
}
