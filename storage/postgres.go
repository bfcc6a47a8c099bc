package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"apt_scrooper/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Buildings
// =============================================================================

const buildingColumns = `id, provider, name, address, address_key, city, state, zip, lat, lng,
	phone, photo_urls, amenities, pet_friendly, parking_available, listing_url, floor_plans_url,
	last_scraped_at, created_at, updated_at`

func scanBuilding(row pgx.Row) (*models.Building, error) {
	var b models.Building
	err := row.Scan(
		&b.ID, &b.Provider, &b.Name, &b.Address, &b.AddressKey, &b.City, &b.State, &b.Zip, &b.Lat, &b.Lng,
		&b.Phone, &b.PhotoURLs, &b.Amenities, &b.PetFriendly, &b.ParkingAvailable, &b.ListingURL, &b.FloorPlansURL,
		&b.LastScrapedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) GetBuilding(ctx context.Context, id uuid.UUID) (*models.Building, error) {
	return scanBuilding(s.pool.QueryRow(ctx, `SELECT `+buildingColumns+` FROM buildings WHERE id = $1`, id))
}

func (s *PostgresStore) GetBuildingByListingURL(ctx context.Context, listingURL string) (*models.Building, error) {
	return scanBuilding(s.pool.QueryRow(ctx, `SELECT `+buildingColumns+` FROM buildings WHERE listing_url = $1`, listingURL))
}

func (s *PostgresStore) GetBuildingByAddress(ctx context.Context, addressKey, provider string) (*models.Building, error) {
	if addressKey == "" {
		return nil, nil
	}
	query := `SELECT ` + buildingColumns + ` FROM buildings
		WHERE address_key = $1 AND provider = $2
		ORDER BY updated_at DESC LIMIT 1`
	return scanBuilding(s.pool.QueryRow(ctx, query, addressKey, provider))
}

func (s *PostgresStore) InsertBuilding(ctx context.Context, b *models.Building) error {
	query := `
		INSERT INTO buildings (
			id, provider, name, address, address_key, city, state, zip, lat, lng,
			phone, photo_urls, amenities, pet_friendly, parking_available, listing_url, floor_plans_url,
			last_scraped_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.Provider, b.Name, b.Address, b.AddressKey, b.City, b.State, b.Zip, b.Lat, b.Lng,
		b.Phone, b.PhotoURLs, b.Amenities, b.PetFriendly, b.ParkingAvailable, b.ListingURL, b.FloorPlansURL,
		b.LastScrapedAt, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateBuilding(ctx context.Context, b *models.Building) error {
	query := `
		UPDATE buildings SET
			name = $2, address = $3, address_key = $4, city = $5, state = $6, zip = $7,
			lat = $8, lng = $9, phone = $10, photo_urls = $11, amenities = $12,
			pet_friendly = $13, parking_available = $14, listing_url = $15, floor_plans_url = $16,
			last_scraped_at = $17, updated_at = $18
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.Name, b.Address, b.AddressKey, b.City, b.State, b.Zip,
		b.Lat, b.Lng, b.Phone, b.PhotoURLs, b.Amenities,
		b.PetFriendly, b.ParkingAvailable, b.ListingURL, b.FloorPlansURL,
		b.LastScrapedAt, b.UpdatedAt,
	)
	return err
}

// ListBuildingURLs returns the listing URLs already in the catalog for a provider
func (s *PostgresStore) ListBuildingURLs(ctx context.Context, provider string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT listing_url FROM buildings WHERE provider = $1 ORDER BY listing_url`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// =============================================================================
// Units
// =============================================================================

const unitColumns = `id, building_id, plan_key, name, bedrooms, bathrooms, sqft_min, sqft_max,
	rent_min, rent_max, available_count, photo_url, last_seen_at, created_at, updated_at`

func (s *PostgresStore) GetUnitByPlanKey(ctx context.Context, buildingID uuid.UUID, planKey string) (*models.Unit, error) {
	var u models.Unit
	err := s.pool.QueryRow(ctx, `SELECT `+unitColumns+` FROM units WHERE building_id = $1 AND plan_key = $2`,
		buildingID, planKey).Scan(
		&u.ID, &u.BuildingID, &u.PlanKey, &u.Name, &u.Bedrooms, &u.Bathrooms, &u.SqFtMin, &u.SqFtMax,
		&u.RentMin, &u.RentMax, &u.AvailableCount, &u.PhotoURL, &u.LastSeenAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) InsertUnit(ctx context.Context, u *models.Unit) error {
	query := `
		INSERT INTO units (
			id, building_id, plan_key, name, bedrooms, bathrooms, sqft_min, sqft_max,
			rent_min, rent_max, available_count, photo_url, last_seen_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.BuildingID, u.PlanKey, u.Name, u.Bedrooms, u.Bathrooms, u.SqFtMin, u.SqFtMax,
		u.RentMin, u.RentMax, u.AvailableCount, u.PhotoURL, u.LastSeenAt, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateUnit(ctx context.Context, u *models.Unit) error {
	query := `
		UPDATE units SET
			name = $2, bedrooms = $3, bathrooms = $4, sqft_min = $5, sqft_max = $6,
			rent_min = $7, rent_max = $8, available_count = $9, photo_url = $10,
			last_seen_at = $11, updated_at = $12
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.Name, u.Bedrooms, u.Bathrooms, u.SqFtMin, u.SqFtMax,
		u.RentMin, u.RentMax, u.AvailableCount, u.PhotoURL,
		u.LastSeenAt, u.UpdatedAt,
	)
	return err
}

// =============================================================================
// Specials
// =============================================================================

const specialColumns = `id, building_id, provider, title, description, discount_type, discount_value,
	conditions, start_date, end_date, source_url, raw_markup, target_plans, scraped_at, is_active,
	created_at, updated_at`

func scanSpecial(row pgx.Row) (*models.Special, error) {
	var sp models.Special
	var discountType *string
	err := row.Scan(
		&sp.ID, &sp.BuildingID, &sp.Provider, &sp.Title, &sp.Description, &discountType, &sp.DiscountValue,
		&sp.Conditions, &sp.StartDate, &sp.EndDate, &sp.SourceURL, &sp.RawMarkup, &sp.TargetPlans, &sp.ScrapedAt, &sp.IsActive,
		&sp.CreatedAt, &sp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if discountType != nil {
		dt := models.DiscountType(*discountType)
		sp.DiscountType = &dt
	}
	return &sp, nil
}

func discountTypeParam(dt *models.DiscountType) *string {
	if dt == nil {
		return nil
	}
	s := string(*dt)
	return &s
}

// FindSpecialByTitle returns the newest special in a building with exactly this
// title and activity state.
func (s *PostgresStore) FindSpecialByTitle(ctx context.Context, buildingID uuid.UUID, title string, active bool) (*models.Special, error) {
	query := `SELECT ` + specialColumns + ` FROM specials
		WHERE building_id = $1 AND title = $2 AND is_active = $3
		ORDER BY scraped_at DESC LIMIT 1`
	return scanSpecial(s.pool.QueryRow(ctx, query, buildingID, title, active))
}

func (s *PostgresStore) InsertSpecial(ctx context.Context, sp *models.Special) error {
	query := `
		INSERT INTO specials (
			id, building_id, provider, title, description, discount_type, discount_value,
			conditions, start_date, end_date, source_url, raw_markup, target_plans, scraped_at, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.pool.Exec(ctx, query,
		sp.ID, sp.BuildingID, sp.Provider, sp.Title, sp.Description, discountTypeParam(sp.DiscountType), sp.DiscountValue,
		sp.Conditions, sp.StartDate, sp.EndDate, sp.SourceURL, sp.RawMarkup, sp.TargetPlans, sp.ScrapedAt, sp.IsActive,
		sp.CreatedAt, sp.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateSpecial(ctx context.Context, sp *models.Special) error {
	query := `
		UPDATE specials SET
			provider = $2, description = $3, discount_type = $4, discount_value = $5, conditions = $6,
			start_date = $7, end_date = $8, source_url = $9, raw_markup = $10, target_plans = $11,
			scraped_at = $12, is_active = $13, updated_at = $14
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		sp.ID, sp.Provider, sp.Description, discountTypeParam(sp.DiscountType), sp.DiscountValue, sp.Conditions,
		sp.StartDate, sp.EndDate, sp.SourceURL, sp.RawMarkup, sp.TargetPlans,
		sp.ScrapedAt, sp.IsActive, sp.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) DeactivateStaleSpecials(ctx context.Context, provider string, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE specials SET is_active = FALSE, updated_at = NOW()
		WHERE provider = $1 AND is_active AND scraped_at < $2`, provider, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeactivateExpiredSpecials deactivates active specials whose end date is
// before the given day.
func (s *PostgresStore) DeactivateExpiredSpecials(ctx context.Context, today time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE specials SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND end_date IS NOT NULL AND end_date < $1::date`, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListActiveSpecials(ctx context.Context) ([]models.Special, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+specialColumns+` FROM specials WHERE is_active ORDER BY building_id, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specials []models.Special
	for rows.Next() {
		sp, err := scanSpecial(rows)
		if err != nil {
			return nil, err
		}
		specials = append(specials, *sp)
	}
	return specials, rows.Err()
}

// =============================================================================
// Field edits
// =============================================================================

const fieldEditColumns = `id, unit_id, building_id, field_name, previous_value, new_value, source,
	editor_id, has_conflict, conflict_value, created_at`

func scanFieldEdit(row pgx.Row) (*models.FieldEdit, error) {
	var e models.FieldEdit
	err := row.Scan(
		&e.ID, &e.UnitID, &e.BuildingID, &e.FieldName, &e.PreviousValue, &e.NewValue, &e.Source,
		&e.EditorID, &e.HasConflict, &e.ConflictValue, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// targetClause returns the WHERE fragment and id for a target.
func targetClause(t models.EditTarget) (string, uuid.UUID) {
	if t.UnitID != nil {
		return "unit_id", *t.UnitID
	}
	return "building_id", *t.BuildingID
}

func (s *PostgresStore) LatestFieldEdit(ctx context.Context, target models.EditTarget, field string) (*models.FieldEdit, error) {
	col, id := targetClause(target)
	query := `SELECT ` + fieldEditColumns + ` FROM field_edits
		WHERE ` + col + ` = $1 AND field_name = $2 AND source = $3
		ORDER BY created_at DESC, seq DESC LIMIT 1`
	return scanFieldEdit(s.pool.QueryRow(ctx, query, id, field, models.EditSourceLocator))
}

func (s *PostgresStore) GetFieldEdit(ctx context.Context, id uuid.UUID) (*models.FieldEdit, error) {
	return scanFieldEdit(s.pool.QueryRow(ctx, `SELECT `+fieldEditColumns+` FROM field_edits WHERE id = $1`, id))
}

func (s *PostgresStore) InsertFieldEdit(ctx context.Context, e *models.FieldEdit) error {
	query := `
		INSERT INTO field_edits (
			id, unit_id, building_id, field_name, previous_value, new_value, source,
			editor_id, has_conflict, conflict_value, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.UnitID, e.BuildingID, e.FieldName, e.PreviousValue, e.NewValue, e.Source,
		e.EditorID, e.HasConflict, e.ConflictValue, e.CreatedAt,
	)
	return err
}

// SetFieldEditConflict is the only mutation allowed on an edit row.
func (s *PostgresStore) SetFieldEditConflict(ctx context.Context, id uuid.UUID, hasConflict bool, value json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE field_edits SET has_conflict = $2, conflict_value = $3 WHERE id = $1`,
		id, hasConflict, value)
	return err
}

// ListFieldEdits returns the full history for (target, field), oldest first.
func (s *PostgresStore) ListFieldEdits(ctx context.Context, target models.EditTarget, field string) ([]models.FieldEdit, error) {
	col, id := targetClause(target)
	query := `SELECT ` + fieldEditColumns + ` FROM field_edits
		WHERE ` + col + ` = $1 AND field_name = $2
		ORDER BY created_at, seq`
	return s.queryFieldEdits(ctx, query, id, field)
}

func (s *PostgresStore) ListOpenConflicts(ctx context.Context) ([]models.FieldEdit, error) {
	return s.queryFieldEdits(ctx, `SELECT `+fieldEditColumns+` FROM field_edits WHERE has_conflict ORDER BY created_at`)
}

func (s *PostgresStore) queryFieldEdits(ctx context.Context, query string, args ...any) ([]models.FieldEdit, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edits []models.FieldEdit
	for rows.Next() {
		e, err := scanFieldEdit(rows)
		if err != nil {
			return nil, err
		}
		edits = append(edits, *e)
	}
	return edits, rows.Err()
}

// CatalogFieldValue reads the live column behind an editable field as JSON.
func (s *PostgresStore) CatalogFieldValue(ctx context.Context, target models.EditTarget, field string) (json.RawMessage, error) {
	if !models.EditableField(target, field) {
		return nil, models.ErrUnknownField
	}
	table := "buildings"
	if target.UnitID != nil {
		table = "units"
	}
	_, id := targetClause(target)

	query := fmt.Sprintf(`SELECT to_jsonb(%s) FROM %s WHERE id = $1`, pgx.Identifier{field}.Sanitize(), table)
	var raw []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
