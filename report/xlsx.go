// Package report renders the operator workbook: every active special and
// every open field edit conflict.
package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"apt_scrooper/models"
	"apt_scrooper/services"
	"apt_scrooper/storage"
)

const (
	SpecialsSheet  = "Specials"
	ConflictsSheet = "Conflicts"
)

var specialsHeader = []string{
	"Provider", "Building", "Title", "Discount Type", "Discount Value",
	"End Date", "Target Plans", "Source URL", "Scraped At",
}

var conflictsHeader = []string{
	"Edit ID", "Target", "Building", "Field", "Edited Value", "Scraped Value", "Editor", "Edited At",
}

// Data is everything the workbook shows.
type Data struct {
	Specials      []models.Special
	Conflicts     []models.FieldEdit
	BuildingNames map[uuid.UUID]string
}

// Collect reads active specials and open conflicts and resolves building
// names for both.
func Collect(ctx context.Context, catalog storage.CatalogStore, specials *services.SpecialsService, edits *services.FieldEditService) (*Data, error) {
	active, err := specials.GetAllActiveSpecials(ctx)
	if err != nil {
		return nil, fmt.Errorf("list specials: %w", err)
	}
	conflicts, err := edits.OpenConflicts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}

	d := &Data{Specials: active, Conflicts: conflicts, BuildingNames: map[uuid.UUID]string{}}
	lookup := func(id uuid.UUID) error {
		if _, ok := d.BuildingNames[id]; ok {
			return nil
		}
		b, err := catalog.GetBuilding(ctx, id)
		if err != nil {
			return fmt.Errorf("building %s: %w", id, err)
		}
		if b != nil {
			d.BuildingNames[id] = b.Name
		}
		return nil
	}
	for _, sp := range active {
		if err := lookup(sp.BuildingID); err != nil {
			return nil, err
		}
	}
	for _, e := range conflicts {
		if e.BuildingID != nil {
			if err := lookup(*e.BuildingID); err != nil {
				return nil, err
			}
		}
	}
	return d, nil
}

// Build renders the workbook and returns the xlsx bytes.
func Build(d *Data) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SpecialsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(ConflictsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := writeHeader(f, SpecialsSheet, specialsHeader, headerStyle); err != nil {
		return nil, err
	}
	for i, sp := range d.Specials {
		if err := writeRow(f, SpecialsSheet, i+2, specialRow(sp, d.BuildingNames)); err != nil {
			return nil, err
		}
	}

	if err := writeHeader(f, ConflictsSheet, conflictsHeader, headerStyle); err != nil {
		return nil, err
	}
	for i, e := range d.Conflicts {
		if err := writeRow(f, ConflictsSheet, i+2, conflictRow(e, d.BuildingNames)); err != nil {
			return nil, err
		}
	}

	for _, sheet := range []string{SpecialsSheet, ConflictsSheet} {
		if err := f.SetColWidth(sheet, "A", "I", 22); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := writeRow(f, sheet, 1, row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func specialRow(sp models.Special, names map[uuid.UUID]string) []interface{} {
	var kind, value, end string
	if sp.DiscountType != nil {
		kind = string(*sp.DiscountType)
	}
	if sp.DiscountValue != nil {
		value = fmt.Sprintf("%g", *sp.DiscountValue)
	}
	if sp.EndDate != nil {
		end = sp.EndDate.Format("2006-01-02")
	}
	return []interface{}{
		sp.Provider,
		names[sp.BuildingID],
		sp.Title,
		kind,
		value,
		end,
		strings.Join(sp.TargetPlans, ", "),
		sp.SourceURL,
		sp.ScrapedAt.Format("2006-01-02 15:04"),
	}
}

func conflictRow(e models.FieldEdit, names map[uuid.UUID]string) []interface{} {
	building := ""
	if e.BuildingID != nil {
		building = names[*e.BuildingID]
	}
	return []interface{}{
		e.ID.String(),
		e.Target().String(),
		building,
		e.FieldName,
		string(e.NewValue),
		string(e.ConflictValue),
		e.EditorID,
		e.CreatedAt.Format("2006-01-02 15:04"),
	}
}
