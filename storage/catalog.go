package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"apt_scrooper/models"
)

// CatalogStore is the catalog surface the sync and reconcile services need.
// Lookups return (nil, nil) when nothing matches.
type CatalogStore interface {
	GetBuilding(ctx context.Context, id uuid.UUID) (*models.Building, error)
	GetBuildingByListingURL(ctx context.Context, listingURL string) (*models.Building, error)
	GetBuildingByAddress(ctx context.Context, addressKey, provider string) (*models.Building, error)
	InsertBuilding(ctx context.Context, b *models.Building) error
	UpdateBuilding(ctx context.Context, b *models.Building) error
	ListBuildingURLs(ctx context.Context, provider string) ([]string, error)

	GetUnitByPlanKey(ctx context.Context, buildingID uuid.UUID, planKey string) (*models.Unit, error)
	InsertUnit(ctx context.Context, u *models.Unit) error
	UpdateUnit(ctx context.Context, u *models.Unit) error

	FindSpecialByTitle(ctx context.Context, buildingID uuid.UUID, title string, active bool) (*models.Special, error)
	InsertSpecial(ctx context.Context, sp *models.Special) error
	UpdateSpecial(ctx context.Context, sp *models.Special) error
	DeactivateStaleSpecials(ctx context.Context, provider string, cutoff time.Time) (int64, error)
	DeactivateExpiredSpecials(ctx context.Context, today time.Time) (int64, error)
	ListActiveSpecials(ctx context.Context) ([]models.Special, error)

	EditLog
}

// EditLog is the append-only field edit history plus the live catalog read
// used to seed PreviousValue.
type EditLog interface {
	LatestFieldEdit(ctx context.Context, target models.EditTarget, field string) (*models.FieldEdit, error)
	GetFieldEdit(ctx context.Context, id uuid.UUID) (*models.FieldEdit, error)
	InsertFieldEdit(ctx context.Context, e *models.FieldEdit) error
	SetFieldEditConflict(ctx context.Context, id uuid.UUID, hasConflict bool, value json.RawMessage) error
	ListFieldEdits(ctx context.Context, target models.EditTarget, field string) ([]models.FieldEdit, error)
	ListOpenConflicts(ctx context.Context) ([]models.FieldEdit, error)
	CatalogFieldValue(ctx context.Context, target models.EditTarget, field string) (json.RawMessage, error)
}

var (
	_ CatalogStore = (*PostgresStore)(nil)
	_ CatalogStore = (*MemoryStore)(nil)
)
