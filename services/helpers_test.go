package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"apt_scrooper/identity"
	"apt_scrooper/logging"
	"apt_scrooper/models"
	"apt_scrooper/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    *storage.MemoryStore
	clock    *fakeClock
	edits    *FieldEditService
	specials *SpecialsService
	sync     *SyncService
}

func newFixture() *fixture {
	store := storage.NewMemoryStore()
	clock := newFakeClock()
	log := logging.Discard()

	edits := NewFieldEditService(store, log)
	edits.now = clock.Now
	specials := NewSpecialsService(store, log)
	specials.now = clock.Now
	syncSvc := NewSyncService(store, edits, log)
	syncSvc.now = clock.Now

	return &fixture{store: store, clock: clock, edits: edits, specials: specials, sync: syncSvc}
}

func (f *fixture) addBuilding(t *testing.T, provider, name, address, listingURL string) *models.Building {
	t.Helper()
	now := f.clock.Now()
	b := &models.Building{
		ID:         uuid.New(),
		Provider:   provider,
		Name:       name,
		Address:    address,
		AddressKey: identity.NormalizeAddress(address),
		ListingURL: listingURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.store.InsertBuilding(context.Background(), b))
	return b
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func discount(d models.DiscountType) *models.DiscountType { return &d }
