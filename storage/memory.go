package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"apt_scrooper/models"
)

var ErrDuplicateActiveSpecial = errors.New("an active special with this title already exists for the building")

// MemoryStore is an in-process catalog with the same contract as
// PostgresStore. Used for dry runs and tests.
type MemoryStore struct {
	mu sync.RWMutex

	buildings map[uuid.UUID]models.Building
	units     map[uuid.UUID]models.Unit
	specials  map[uuid.UUID]models.Special
	edits     []models.FieldEdit // append-only, insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buildings: map[uuid.UUID]models.Building{},
		units:     map[uuid.UUID]models.Unit{},
		specials:  map[uuid.UUID]models.Special{},
	}
}

// ---- buildings ----

func (m *MemoryStore) GetBuilding(_ context.Context, id uuid.UUID) (*models.Building, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.buildings[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetBuildingByListingURL(_ context.Context, listingURL string) (*models.Building, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.buildings {
		if b.ListingURL == listingURL {
			return &b, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetBuildingByAddress(_ context.Context, addressKey, provider string) (*models.Building, error) {
	if addressKey == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.buildings {
		if b.AddressKey == addressKey && b.Provider == provider {
			return &b, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) InsertBuilding(_ context.Context, b *models.Building) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.buildings {
		if existing.ListingURL == b.ListingURL {
			return errors.New("duplicate listing_url")
		}
	}
	m.buildings[b.ID] = *b
	return nil
}

func (m *MemoryStore) UpdateBuilding(_ context.Context, b *models.Building) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.buildings[b.ID]
	if !ok {
		return errors.New("building not found")
	}
	b.CreatedAt = existing.CreatedAt
	m.buildings[b.ID] = *b
	return nil
}

func (m *MemoryStore) ListBuildingURLs(_ context.Context, provider string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var urls []string
	for _, b := range m.buildings {
		if b.Provider == provider {
			urls = append(urls, b.ListingURL)
		}
	}
	sort.Strings(urls)
	return urls, nil
}

// ---- units ----

func (m *MemoryStore) GetUnitByPlanKey(_ context.Context, buildingID uuid.UUID, planKey string) (*models.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.units {
		if u.BuildingID == buildingID && u.PlanKey == planKey {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) InsertUnit(_ context.Context, u *models.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[u.ID] = *u
	return nil
}

func (m *MemoryStore) UpdateUnit(_ context.Context, u *models.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.units[u.ID]
	if !ok {
		return errors.New("unit not found")
	}
	u.CreatedAt = existing.CreatedAt
	m.units[u.ID] = *u
	return nil
}

// Units returns every unit of a building, ordered by plan key.
func (m *MemoryStore) Units(buildingID uuid.UUID) []models.Unit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Unit
	for _, u := range m.units {
		if u.BuildingID == buildingID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanKey < out[j].PlanKey })
	return out
}

// ---- specials ----

func (m *MemoryStore) FindSpecialByTitle(_ context.Context, buildingID uuid.UUID, title string, active bool) (*models.Special, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *models.Special
	for _, sp := range m.specials {
		if sp.BuildingID != buildingID || sp.Title != title || sp.IsActive != active {
			continue
		}
		if found == nil || sp.ScrapedAt.After(found.ScrapedAt) {
			sp := sp
			found = &sp
		}
	}
	return found, nil
}

func (m *MemoryStore) InsertSpecial(_ context.Context, sp *models.Special) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sp.IsActive && m.hasActiveTitle(sp.BuildingID, sp.Title, sp.ID) {
		return ErrDuplicateActiveSpecial
	}
	m.specials[sp.ID] = *sp
	return nil
}

func (m *MemoryStore) UpdateSpecial(_ context.Context, sp *models.Special) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.specials[sp.ID]
	if !ok {
		return errors.New("special not found")
	}
	if sp.IsActive && m.hasActiveTitle(existing.BuildingID, existing.Title, sp.ID) {
		return ErrDuplicateActiveSpecial
	}
	sp.BuildingID = existing.BuildingID
	sp.Title = existing.Title
	sp.CreatedAt = existing.CreatedAt
	m.specials[sp.ID] = *sp
	return nil
}

func (m *MemoryStore) hasActiveTitle(buildingID uuid.UUID, title string, except uuid.UUID) bool {
	for id, sp := range m.specials {
		if id != except && sp.IsActive && sp.BuildingID == buildingID && sp.Title == title {
			return true
		}
	}
	return false
}

func (m *MemoryStore) DeactivateStaleSpecials(_ context.Context, provider string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sp := range m.specials {
		if sp.IsActive && sp.Provider == provider && sp.ScrapedAt.Before(cutoff) {
			sp.IsActive = false
			sp.UpdatedAt = time.Now()
			m.specials[id] = sp
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeactivateExpiredSpecials(_ context.Context, today time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sp := range m.specials {
		if sp.IsActive && sp.EndDate != nil && sp.EndDate.Before(today) {
			sp.IsActive = false
			sp.UpdatedAt = time.Now()
			m.specials[id] = sp
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListActiveSpecials(_ context.Context) ([]models.Special, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Special
	for _, sp := range m.specials {
		if sp.IsActive {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BuildingID != out[j].BuildingID {
			return out[i].BuildingID.String() < out[j].BuildingID.String()
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

// Specials returns every special row, active or not, for a building.
func (m *MemoryStore) Specials(buildingID uuid.UUID) []models.Special {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Special
	for _, sp := range m.specials {
		if sp.BuildingID == buildingID {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ---- field edits ----

func sameTarget(e *models.FieldEdit, t models.EditTarget) bool {
	if t.UnitID != nil {
		return e.UnitID != nil && *e.UnitID == *t.UnitID
	}
	return t.BuildingID != nil && e.BuildingID != nil && *e.BuildingID == *t.BuildingID
}

func (m *MemoryStore) LatestFieldEdit(_ context.Context, target models.EditTarget, field string) (*models.FieldEdit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.edits) - 1; i >= 0; i-- {
		e := m.edits[i]
		if e.FieldName == field && e.Source == models.EditSourceLocator && sameTarget(&e, target) {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetFieldEdit(_ context.Context, id uuid.UUID) (*models.FieldEdit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.edits {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) InsertFieldEdit(_ context.Context, e *models.FieldEdit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, *e)
	return nil
}

func (m *MemoryStore) SetFieldEditConflict(_ context.Context, id uuid.UUID, hasConflict bool, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.edits {
		if m.edits[i].ID == id {
			m.edits[i].HasConflict = hasConflict
			m.edits[i].ConflictValue = value
			return nil
		}
	}
	return models.ErrEditNotFound
}

func (m *MemoryStore) ListFieldEdits(_ context.Context, target models.EditTarget, field string) ([]models.FieldEdit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.FieldEdit
	for _, e := range m.edits {
		if e.FieldName == field && sameTarget(&e, target) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListOpenConflicts(_ context.Context) ([]models.FieldEdit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.FieldEdit
	for _, e := range m.edits {
		if e.HasConflict {
			out = append(out, e)
		}
	}
	return out, nil
}

// CatalogFieldValue reads the live value through the row's JSON shape, whose
// keys match the column names.
func (m *MemoryStore) CatalogFieldValue(_ context.Context, target models.EditTarget, field string) (json.RawMessage, error) {
	if !models.EditableField(target, field) {
		return nil, models.ErrUnknownField
	}
	m.mu.RLock()
	var row any
	if target.UnitID != nil {
		if u, ok := m.units[*target.UnitID]; ok {
			row = u
		}
	} else if b, ok := m.buildings[*target.BuildingID]; ok {
		row = b
	}
	m.mu.RUnlock()

	if row == nil {
		return nil, nil
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var cols map[string]json.RawMessage
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, err
	}
	return cols[field], nil
}
