package database

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wallet-watch/agent/internal/models"
)

// LinkCodeTTL bounds how long a Telegram link code can be redeemed.
const LinkCodeTTL = 15 * time.Minute

var ErrInvalidLinkCode = errors.New("invalid or expired link code")

// editableColumns are the columns PUT /preferences may change. The Telegram
// link columns are only written by the link flow.
var editableColumns = []string{
	"transfer_alerts", "whale_alerts", "exchange_flow_alerts", "daily_summary",
	"min_whale_usd", "min_transfer_usd", "webhook_url", "updated_at",
}

type PreferenceStore struct {
	db *gorm.DB
}

func NewPreferenceStore(db *gorm.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the owner's preferences, or the defaults when none are stored.
func (s *PreferenceStore) Get(ctx context.Context, owner string) (models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := s.db.WithContext(ctx).Where("owner_id = ?", owner).First(&pref).Error
	if notFound(err) {
		return models.DefaultPreference(owner), nil
	}
	if err != nil {
		return pref, fmt.Errorf("get preferences for %s: %w", owner, err)
	}
	return pref, nil
}

// Upsert writes the switches, thresholds and webhook, including false flags
// and zero thresholds. The linked Telegram chat is left untouched.
func (s *PreferenceStore) Upsert(ctx context.Context, pref *models.NotificationPreference) error {
	insert := append([]string{"owner_id"}, editableColumns...)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns(editableColumns),
		}).
		Select(insert).
		Create(pref).Error
	if err != nil {
		return fmt.Errorf("upsert preferences for %s: %w", pref.OwnerID, err)
	}
	return nil
}

// LinkCode returns the owner's pending link code, issuing a new one when
// none is valid at now. A preference that is already linked is returned as is.
func (s *PreferenceStore) LinkCode(ctx context.Context, owner string, now time.Time) (models.NotificationPreference, error) {
	pref, err := s.Get(ctx, owner)
	if err != nil {
		return pref, err
	}
	if pref.TelegramChatID != 0 {
		return pref, nil
	}
	if pref.TelegramLinkCode != "" && pref.TelegramLinkExpiresAt != nil && pref.TelegramLinkExpiresAt.After(now) {
		return pref, nil
	}

	expires := now.Add(LinkCodeTTL).UTC()
	pref.TelegramLinkExpiresAt = &expires
	for attempt := 0; attempt < 3; attempt++ {
		if pref.TelegramLinkCode, err = newLinkCode(); err != nil {
			return pref, err
		}
		err = s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "owner_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"telegram_link_code", "telegram_link_expires_at"}),
			}).
			Select("*").
			Create(&pref).Error
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return pref, fmt.Errorf("issue telegram link code for %s: %w", owner, err)
	}
	return pref, nil
}

// LinkTelegramChat redeems a link code for chatID. The chat is moved away
// from any owner it was linked to before.
func (s *PreferenceStore) LinkTelegramChat(ctx context.Context, code string, chatID int64, now time.Time) (models.NotificationPreference, error) {
	var pref models.NotificationPreference
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || chatID == 0 {
		return pref, ErrInvalidLinkCode
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("telegram_link_code = ? AND telegram_link_expires_at > ?", code, now).
			First(&pref).Error
		if notFound(err) {
			return ErrInvalidLinkCode
		}
		if err != nil {
			return err
		}
		err = tx.Model(&models.NotificationPreference{}).
			Where("telegram_chat_id = ? AND owner_id <> ?", chatID, pref.OwnerID).
			Update("telegram_chat_id", 0).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.NotificationPreference{}).
			Where("owner_id = ?", pref.OwnerID).
			Updates(map[string]interface{}{
				"telegram_chat_id":         chatID,
				"telegram_link_code":       "",
				"telegram_link_expires_at": nil,
			}).Error
	})
	if errors.Is(err, ErrInvalidLinkCode) {
		return pref, err
	}
	if err != nil {
		return pref, fmt.Errorf("link telegram chat %d: %w", chatID, err)
	}
	pref.TelegramChatID = chatID
	pref.TelegramLinkCode = ""
	pref.TelegramLinkExpiresAt = nil
	return pref, nil
}

// UnlinkTelegram detaches the owner's chat. Unlinking an unlinked owner is a no-op.
func (s *PreferenceStore) UnlinkTelegram(ctx context.Context, owner string) error {
	err := s.db.WithContext(ctx).Model(&models.NotificationPreference{}).
		Where("owner_id = ?", owner).
		Update("telegram_chat_id", 0).Error
	if err != nil {
		return fmt.Errorf("unlink telegram for %s: %w", owner, err)
	}
	return nil
}

func (s *PreferenceStore) GetByTelegramChat(ctx context.Context, chatID int64) (models.NotificationPreference, error) {
	var pref models.NotificationPreference
	if chatID == 0 {
		return pref, ErrNotFound
	}
	err := s.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&pref).Error
	if notFound(err) {
		return pref, ErrNotFound
	}
	if err != nil {
		return pref, fmt.Errorf("get preferences for chat %d: %w", chatID, err)
	}
	return pref, nil
}

// SetFlag flips one classification switch on the preference linked to chatID.
func (s *PreferenceStore) SetFlag(ctx context.Context, chatID int64, class models.Classification, enabled bool) (models.NotificationPreference, error) {
	column, err := flagColumn(class)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	if chatID == 0 {
		return models.NotificationPreference{}, ErrNotFound
	}
	res := s.db.WithContext(ctx).Model(&models.NotificationPreference{}).
		Where("telegram_chat_id = ?", chatID).
		Update(column, enabled)
	if res.Error != nil {
		return models.NotificationPreference{}, fmt.Errorf("set %s for chat %d: %w", column, chatID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NotificationPreference{}, ErrNotFound
	}
	return s.GetByTelegramChat(ctx, chatID)
}

func flagColumn(class models.Classification) (string, error) {
	switch class {
	case models.ClassTransfer:
		return "transfer_alerts", nil
	case models.ClassWhale:
		return "whale_alerts", nil
	case models.ClassExchangeFlow:
		return "exchange_flow_alerts", nil
	}
	return "", fmt.Errorf("unknown classification %q", class)
}

// newLinkCode returns six upper-case hex characters.
func newLinkCode() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate link code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
