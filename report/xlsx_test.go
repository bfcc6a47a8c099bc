package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"apt_scrooper/logging"
	"apt_scrooper/models"
	"apt_scrooper/services"
	"apt_scrooper/storage"
)

func TestCollectAndBuild(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	log := logging.Discard()
	edits := services.NewFieldEditService(store, log)
	specials := services.NewSpecialsService(store, log)

	b := &models.Building{ID: uuid.New(), Provider: "crescent", Name: "NOVEL Midtown", ListingURL: "https://novelmidtown.test/"}
	require.NoError(t, store.InsertBuilding(ctx, b))

	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	kind := models.DiscountReducedRent
	value := 500.0
	require.NoError(t, store.InsertSpecial(ctx, &models.Special{
		ID: uuid.New(), BuildingID: b.ID, Provider: "crescent", Title: "Summer Savings",
		DiscountType: &kind, DiscountValue: &value, EndDate: &end,
		TargetPlans: []string{"B1", "C3"}, SourceURL: "https://novelmidtown.test/floorplans",
		ScrapedAt: now, CreatedAt: now, UpdatedAt: now, IsActive: true,
	}))

	target := models.BuildingTarget(b.ID)
	_, err := edits.RecordEdit(ctx, target, "phone", json.RawMessage(`"404-555-0199"`), "alice")
	require.NoError(t, err)
	conflict, err := edits.RecordScrapedValue(ctx, target, "phone", json.RawMessage(`"404-555-0100"`))
	require.NoError(t, err)
	require.True(t, conflict)

	data, err := Collect(ctx, store, specials, edits)
	require.NoError(t, err)
	require.Len(t, data.Specials, 1)
	require.Len(t, data.Conflicts, 1)
	assert.Equal(t, "NOVEL Midtown", data.BuildingNames[b.ID])

	raw, err := Build(data)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SpecialsSheet, ConflictsSheet}, f.GetSheetList())

	rows, err := f.GetRows(SpecialsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, specialsHeader, rows[0])
	assert.Equal(t, []string{
		"crescent", "NOVEL Midtown", "Summer Savings", "reduced_rent", "500",
		"2026-07-31", "B1, C3", "https://novelmidtown.test/floorplans", "2026-05-10 12:00",
	}, rows[1])

	rows, err = f.GetRows(ConflictsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, conflictsHeader, rows[0])
	assert.Equal(t, "NOVEL Midtown", rows[1][2])
	assert.Equal(t, "phone", rows[1][3])
	assert.Equal(t, `"404-555-0199"`, rows[1][4])
	assert.Equal(t, `"404-555-0100"`, rows[1][5])
	assert.Equal(t, "alice", rows[1][6])
}

func TestBuild_Empty(t *testing.T) {
	raw, err := Build(&Data{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SpecialsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, specialsHeader, rows[0])
}
