package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"apt_scrooper/metrics"
	"apt_scrooper/models"
	"apt_scrooper/storage"
)

// FieldEditService is the human override layer over scraped catalog fields.
// Edits are appended, never rewritten; the newest locator edit for a
// (target, field) pair wins over whatever the scraper reports.
type FieldEditService struct {
	store storage.EditLog
	log   *logrus.Logger
	now   func() time.Time
}

func NewFieldEditService(store storage.EditLog, log *logrus.Logger) *FieldEditService {
	return &FieldEditService{store: store, log: log, now: time.Now}
}

// EffectiveValue is what a reader of (target, field) should see.
type EffectiveValue struct {
	CurrentValue json.RawMessage   `json:"current_value"`
	ScrapedValue json.RawMessage   `json:"scraped_value"`
	LastEdit     *models.FieldEdit `json:"last_edit"`
	HasConflict  bool              `json:"has_conflict"`
}

// GetEffectiveValue returns the standing human value if there is one, else
// the scraped value.
func (s *FieldEditService) GetEffectiveValue(ctx context.Context, target models.EditTarget, field string, scraped json.RawMessage) (*EffectiveValue, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	latest, err := s.store.LatestFieldEdit(ctx, target, field)
	if err != nil {
		return nil, fmt.Errorf("latest edit: %w", err)
	}

	ev := &EffectiveValue{CurrentValue: scraped, ScrapedValue: scraped}
	if latest != nil {
		ev.CurrentValue = latest.NewValue
		ev.LastEdit = latest
		ev.HasConflict = latest.HasConflict
	}
	return ev, nil
}

// RecordEdit appends a locator edit. PreviousValue is the prior effective
// value: the latest edit's value, or the live catalog column.
func (s *FieldEditService) RecordEdit(ctx context.Context, target models.EditTarget, field string, newValue json.RawMessage, editorID string) (*models.FieldEdit, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if !models.EditableField(target, field) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownField, field)
	}
	if !json.Valid(newValue) {
		return nil, fmt.Errorf("new value for %s is not valid JSON", field)
	}

	latest, err := s.store.LatestFieldEdit(ctx, target, field)
	if err != nil {
		return nil, fmt.Errorf("latest edit: %w", err)
	}

	var previous json.RawMessage
	if latest != nil {
		previous = latest.NewValue
	} else {
		previous, err = s.store.CatalogFieldValue(ctx, target, field)
		if err != nil {
			return nil, fmt.Errorf("catalog value: %w", err)
		}
	}

	edit := &models.FieldEdit{
		ID:            uuid.New(),
		UnitID:        target.UnitID,
		BuildingID:    target.BuildingID,
		FieldName:     field,
		PreviousValue: previous,
		NewValue:      newValue,
		Source:        models.EditSourceLocator,
		EditorID:      editorID,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertFieldEdit(ctx, edit); err != nil {
		return nil, fmt.Errorf("insert edit: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"target": target.String(),
		"field":  field,
		"editor": editorID,
	}).Info("Field edit recorded")
	return edit, nil
}

// RecordScrapedValue compares a fresh scraped value with the standing human
// edit and flags or clears the conflict on that edit. It never appends and
// never changes the effective value.
func (s *FieldEditService) RecordScrapedValue(ctx context.Context, target models.EditTarget, field string, scraped json.RawMessage) (bool, error) {
	if err := target.Validate(); err != nil {
		return false, err
	}
	_, conflict, err := s.reconcile(ctx, target, field, scraped)
	return conflict, err
}

// reconcile returns the standing edit (if any) after updating its conflict
// state against scraped.
func (s *FieldEditService) reconcile(ctx context.Context, target models.EditTarget, field string, scraped json.RawMessage) (*models.FieldEdit, bool, error) {
	latest, err := s.store.LatestFieldEdit(ctx, target, field)
	if err != nil {
		return nil, false, fmt.Errorf("latest edit: %w", err)
	}
	if latest == nil {
		return nil, false, nil
	}

	if ValuesEqual(latest.NewValue, scraped) {
		if latest.HasConflict {
			if err := s.store.SetFieldEditConflict(ctx, latest.ID, false, nil); err != nil {
				return nil, false, fmt.Errorf("clear conflict: %w", err)
			}
			latest.HasConflict = false
			latest.ConflictValue = nil
		}
		return latest, false, nil
	}

	if latest.HasConflict && ValuesEqual(latest.ConflictValue, scraped) {
		return latest, true, nil
	}

	if err := s.store.SetFieldEditConflict(ctx, latest.ID, true, scraped); err != nil {
		return nil, false, fmt.Errorf("set conflict: %w", err)
	}
	latest.HasConflict = true
	latest.ConflictValue = scraped
	metrics.EditConflicts.Inc()

	s.log.WithFields(logrus.Fields{
		"edit_id": latest.ID,
		"target":  target.String(),
		"field":   field,
	}).Warn("Scraped value conflicts with human edit")
	return latest, true, nil
}

// ResolveConflict settles an open conflict. keep_locator clears the flag.
// accept_scraper appends a new locator edit carrying the scraped value and
// returns it.
func (s *FieldEditService) ResolveConflict(ctx context.Context, editID uuid.UUID, resolution models.ConflictResolution, editorID string) (*models.FieldEdit, error) {
	edit, err := s.store.GetFieldEdit(ctx, editID)
	if err != nil {
		return nil, fmt.Errorf("get edit: %w", err)
	}
	if edit == nil {
		return nil, models.ErrEditNotFound
	}
	if !edit.HasConflict {
		return nil, models.ErrNoConflict
	}

	var accepted *models.FieldEdit
	switch resolution {
	case models.ResolveKeepLocator:
	case models.ResolveAcceptScraper:
		accepted = &models.FieldEdit{
			ID:            uuid.New(),
			UnitID:        edit.UnitID,
			BuildingID:    edit.BuildingID,
			FieldName:     edit.FieldName,
			PreviousValue: edit.NewValue,
			NewValue:      edit.ConflictValue,
			Source:        models.EditSourceLocator,
			EditorID:      editorID,
			CreatedAt:     s.now(),
		}
		if err := s.store.InsertFieldEdit(ctx, accepted); err != nil {
			return nil, fmt.Errorf("insert edit: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidResolution, resolution)
	}

	if err := s.store.SetFieldEditConflict(ctx, edit.ID, false, nil); err != nil {
		return nil, fmt.Errorf("clear conflict: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"edit_id":    edit.ID,
		"field":      edit.FieldName,
		"resolution": resolution,
	}).Info("Conflict resolved")
	return accepted, nil
}

// History returns every edit for (target, field), oldest first.
func (s *FieldEditService) History(ctx context.Context, target models.EditTarget, field string) ([]models.FieldEdit, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListFieldEdits(ctx, target, field)
}

// OpenConflicts lists flagged edits that are still the standing edit for
// their field. A flag left on a superseded edit is not actionable.
func (s *FieldEditService) OpenConflicts(ctx context.Context) ([]models.FieldEdit, error) {
	flagged, err := s.store.ListOpenConflicts(ctx)
	if err != nil {
		return nil, err
	}

	var open []models.FieldEdit
	for _, e := range flagged {
		latest, err := s.store.LatestFieldEdit(ctx, e.Target(), e.FieldName)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.ID == e.ID {
			open = append(open, e)
		}
	}
	return open, nil
}

// Overlay is what sync writes for one field of an existing row: the scraped
// value, unless a human edit stands. Conflict state is updated on the way.
func Overlay[T any](ctx context.Context, s *FieldEditService, target models.EditTarget, field string, scraped T) (T, bool, error) {
	raw, err := json.Marshal(scraped)
	if err != nil {
		return scraped, false, err
	}

	edit, conflict, err := s.reconcile(ctx, target, field, raw)
	if err != nil || edit == nil {
		return scraped, false, err
	}

	var out T
	if err := json.Unmarshal(edit.NewValue, &out); err != nil {
		return scraped, conflict, fmt.Errorf("decode edit %s: %w", edit.ID, err)
	}
	return out, conflict, nil
}

// ValuesEqual compares two JSON values structurally, so 1500 equals 1500.0
// and key order is ignored. Empty input is JSON null.
func ValuesEqual(a, b json.RawMessage) bool {
	va, errA := decodeJSON(a)
	vb, errB := decodeJSON(b)
	if errA != nil || errB != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	return reflect.DeepEqual(va, vb)
}

func decodeJSON(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var v any
	err := json.Unmarshal(raw, &v)
	return v, err
}
