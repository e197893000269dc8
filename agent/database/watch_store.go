package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wallet-watch/agent/internal/models"
)

// WatchStore is the registry of watch entries.
type WatchStore struct {
	db *gorm.DB
}

func NewWatchStore(db *gorm.DB) *WatchStore {
	return &WatchStore{db: db}
}

func (s *WatchStore) ListAll(ctx context.Context) ([]models.WatchEntry, error) {
	var entries []models.WatchEntry
	if err := s.db.WithContext(ctx).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list watch entries: %w", err)
	}
	return entries, nil
}

func (s *WatchStore) ListByOwner(ctx context.Context, owner string) ([]models.WatchEntry, error) {
	entries := []models.WatchEntry{}
	err := s.db.WithContext(ctx).Where("owner_id = ?", owner).Order("created_at DESC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list watch entries for owner: %w", err)
	}
	return entries, nil
}

// Create registers a new entry. The checkpoint starts at creation time so
// history before registration never produces alerts.
func (s *WatchStore) Create(ctx context.Context, e *models.WatchEntry) error {
	if e.LastCheckedAt.IsZero() {
		e.LastCheckedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateWatch
		}
		return fmt.Errorf("create watch entry: %w", err)
	}
	return nil
}

func (s *WatchStore) Get(ctx context.Context, owner string, id uint) (models.WatchEntry, error) {
	var e models.WatchEntry
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, owner).First(&e).Error
	if notFound(err) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("get watch entry %d: %w", id, err)
	}
	return e, nil
}

func (s *WatchStore) UpdateLabel(ctx context.Context, owner string, id uint, label string) (models.WatchEntry, error) {
	res := s.db.WithContext(ctx).Model(&models.WatchEntry{}).
		Where("id = ? AND owner_id = ?", id, owner).
		Update("label", label)
	if res.Error != nil {
		return models.WatchEntry{}, fmt.Errorf("update label of watch entry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.WatchEntry{}, ErrNotFound
	}
	return s.Get(ctx, owner, id)
}

func (s *WatchStore) Delete(ctx context.Context, owner string, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, owner).Delete(&models.WatchEntry{})
	if res.Error != nil {
		return fmt.Errorf("delete watch entry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByOwners removes every entry of the given owners. Used by the account
// lifecycle job when a trial lapses.
func (s *WatchStore) DeleteByOwners(ctx context.Context, owners []string) (int64, error) {
	if len(owners) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("owner_id IN ?", owners).Delete(&models.WatchEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete watch entries of %d owners: %w", len(owners), res.Error)
	}
	return res.RowsAffected, nil
}

// AdvanceCheckpoint moves last_checked_at forward to `to`. It never moves it
// backwards; the returned bool reports whether the row changed.
func (s *WatchStore) AdvanceCheckpoint(ctx context.Context, id uint, to time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.WatchEntry{}).
		Where("id = ? AND last_checked_at < ?", id, to).
		Updates(map[string]interface{}{
			"last_checked_at": to,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("advance checkpoint of watch entry %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
