package db

import (
	"context"
	"errors"
	"time"

	"memochain/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RosterRepository reads the student roster from postgres.
type RosterRepository struct {
	db *gorm.DB
}

func NewRosterRepository(db *gorm.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

func (r *RosterRepository) Get(ctx context.Context, id string) (domain.RosterEntry, error) {
	if r.db == nil {
		return domain.RosterEntry{}, errDBUnavailable
	}
	var m StudentModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RosterEntry{}, domain.ErrNotFound
		}
		return domain.RosterEntry{}, err
	}
	return toRosterEntry(m), nil
}

func (r *RosterRepository) List(ctx context.Context) ([]domain.RosterEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []StudentModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RosterEntry, 0, len(models))
	for _, m := range models {
		out = append(out, toRosterEntry(m))
	}
	return out, nil
}

// Upsert inserts entries or overwrites the existing rows with the same id.
func (r *RosterRepository) Upsert(ctx context.Context, entries []domain.RosterEntry) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]StudentModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, StudentModel{
			ID:         e.ID,
			Name:       e.Name,
			College:    e.College,
			NationalID: stringPtr(e.NationalID),
			UpdatedAt:  now,
		})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "college", "national_id", "updated_at"}),
	}).Create(&models).Error
}

func toRosterEntry(m StudentModel) domain.RosterEntry {
	return domain.RosterEntry{
		ID:         m.ID,
		Name:       m.Name,
		College:    m.College,
		NationalID: derefString(m.NationalID),
	}
}
