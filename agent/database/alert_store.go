package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wallet-watch/agent/internal/models"
	"wallet-watch/shared/types"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateWatch = errors.New("watch entry already exists")
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// AlertStore persists alerts. Uniqueness of (owner, chain, wallet, tx) is
// enforced by idx_alerts_owner_chain_wallet_tx.
type AlertStore struct {
	db *gorm.DB
}

func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

type AlertPage struct {
	Alerts      []models.Alert `json:"alerts"`
	Total       int64          `json:"total"`
	UnreadCount int64          `json:"unreadCount"`
	Page        int            `json:"page"`
	PageSize    int            `json:"pageSize"`
}

// CreateAlertIfAbsent inserts the alert unless one already exists for the same
// owner, chain, wallet and tx hash. It reports whether a row was written.
func (s *AlertStore) CreateAlertIfAbsent(ctx context.Context, a *models.Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "owner_id"}, {Name: "chain"}, {Name: "wallet_address"}, {Name: "tx_hash"},
			},
			DoNothing: true,
		}).
		Create(a)
	if res.Error != nil {
		return false, fmt.Errorf("create alert for tx %s: %w", a.TxHash, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExistingTxHashes returns the subset of hashes already alerted for the owner's wallet.
func (s *AlertStore) ExistingTxHashes(ctx context.Context, owner string, chain types.Chain, wallet string, hashes []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	var found []string
	err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("owner_id = ? AND chain = ? AND wallet_address = ? AND tx_hash IN ?", owner, chain, wallet, hashes).
		Pluck("tx_hash", &found).Error
	if err != nil {
		return nil, fmt.Errorf("lookup existing alerts: %w", err)
	}
	for _, h := range found {
		out[h] = struct{}{}
	}
	return out, nil
}

// ListByOwner returns one page of the owner's alerts, newest first.
func (s *AlertStore) ListByOwner(ctx context.Context, owner string, page, pageSize int) (AlertPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	result := AlertPage{Page: page, PageSize: pageSize, Alerts: []models.Alert{}}

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Alert{}).Where("owner_id = ?", owner).Count(&result.Total).Error; err != nil {
		return result, fmt.Errorf("count alerts: %w", err)
	}
	if err := db.Model(&models.Alert{}).Where("owner_id = ? AND is_read = ?", owner, false).Count(&result.UnreadCount).Error; err != nil {
		return result, fmt.Errorf("count unread alerts: %w", err)
	}
	err := db.Where("owner_id = ?", owner).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&result.Alerts).Error
	if err != nil {
		return result, fmt.Errorf("list alerts: %w", err)
	}
	return result, nil
}

// UnreadCount is the number of the owner's alerts not yet marked read.
func (s *AlertStore) UnreadCount(ctx context.Context, owner string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("owner_id = ? AND is_read = ?", owner, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unread alerts: %w", err)
	}
	return n, nil
}

// MarkRead flags the given alerts of the owner as read. Ids that are not
// UUIDs or belong to someone else are ignored.
func (s *AlertStore) MarkRead(ctx context.Context, owner string, ids []string) (int64, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("owner_id = ? AND id IN ?", owner, valid).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark alerts read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteRead removes every read alert of the owner. Unread alerts are kept.
func (s *AlertStore) DeleteRead(ctx context.Context, owner string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_read = ?", owner, true).
		Delete(&models.Alert{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete read alerts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
