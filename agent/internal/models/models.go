package models

import (
	"time"

	"github.com/shopspring/decimal"

	"wallet-watch/shared/types"
)

// Classification is the alert category used for preference filtering.
type Classification string

const (
	ClassTransfer     Classification = "transfer"
	ClassWhale        Classification = "whale"
	ClassExchangeFlow Classification = "exchange_flow"
)

// Direction of the transaction relative to the watched wallet.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	DirectionSelf     Direction = "self"
	DirectionContract Direction = "contract"
)

// WatchEntry is a user's registration to monitor one (address, chain) pair.
type WatchEntry struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	OwnerID       string      `gorm:"not null;uniqueIndex:idx_watch_owner_addr_chain_token,priority:1" json:"ownerId"`
	Address       string      `gorm:"not null;uniqueIndex:idx_watch_owner_addr_chain_token,priority:2" json:"address"`
	Chain         types.Chain `gorm:"type:text;not null;uniqueIndex:idx_watch_owner_addr_chain_token,priority:3" json:"chain"`
	TokenFilter   string      `gorm:"not null;default:'';uniqueIndex:idx_watch_owner_addr_chain_token,priority:4" json:"tokenAddress,omitempty"`
	TokenSymbol   string      `gorm:"not null;default:''" json:"tokenSymbol,omitempty"`
	Label         string      `gorm:"not null;default:''" json:"label,omitempty"`
	LastCheckedAt time.Time   `gorm:"not null" json:"lastCheckedAt"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (WatchEntry) TableName() string { return "watch_entries" }

// Alert is one deduplicated notification-worthy transaction for an owner.
type Alert struct {
	ID             string              `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID        string              `gorm:"not null" json:"ownerId"`
	WatchEntryID   *uint               `json:"watchEntryId,omitempty"`
	Chain          types.Chain         `gorm:"type:text;not null" json:"chain"`
	WalletAddress  string              `gorm:"not null" json:"walletAddress"`
	TxHash         string              `gorm:"not null" json:"txHash"`
	Classification Classification      `gorm:"type:text;not null" json:"classification"`
	Direction      Direction           `gorm:"type:text;not null" json:"direction"`
	FromAddress    string              `gorm:"not null;default:''" json:"fromAddress"`
	ToAddress      string              `gorm:"not null;default:''" json:"toAddress"`
	TokenSymbol    string              `gorm:"not null;default:''" json:"tokenSymbol"`
	TokenAddress   string              `gorm:"not null;default:''" json:"tokenAddress,omitempty"`
	Amount         decimal.Decimal     `gorm:"type:numeric;not null" json:"amount"`
	USDValue       decimal.NullDecimal `gorm:"type:numeric" json:"usdValue"`
	Provider       string              `gorm:"not null;default:''" json:"provider"`
	BlockTime      time.Time           `gorm:"not null" json:"blockTime"`
	CreatedAt      time.Time           `gorm:"not null" json:"createdAt"`
	IsRead         bool                `gorm:"not null;default:false" json:"isRead"`
}

func (Alert) TableName() string { return "alerts" }

// NotificationPreference holds per-owner delivery switches and thresholds.
// A zero MinWhaleUSD means "use the global whale threshold".
type NotificationPreference struct {
	OwnerID            string          `gorm:"primaryKey" json:"ownerId"`
	TransferAlerts     bool            `gorm:"not null;default:true" json:"transferAlerts"`
	WhaleAlerts        bool            `gorm:"not null;default:true" json:"whaleAlerts"`
	ExchangeFlowAlerts bool            `gorm:"not null;default:true" json:"exchangeFlowAlerts"`
	DailySummary       bool            `gorm:"not null;default:true" json:"dailySummary"`
	MinWhaleUSD        decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"minWhaleUsd"`
	MinTransferUSD     decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"minTransferUsd"`
	TelegramChatID     int64           `gorm:"not null;default:0" json:"telegramChatId"`
	WebhookURL         string          `gorm:"not null;default:''" json:"webhookUrl"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`

	// Set through the bot with a one-time code; never writable over HTTP.
	TelegramLinkCode      string     `gorm:"not null;default:''" json:"-"`
	TelegramLinkExpiresAt *time.Time `json:"-"`
}

func (NotificationPreference) TableName() string { return "notification_preferences" }

// DefaultPreference mirrors the defaults of a freshly created settings row.
func DefaultPreference(ownerID string) NotificationPreference {
	return NotificationPreference{
		OwnerID:            ownerID,
		TransferAlerts:     true,
		WhaleAlerts:        true,
		ExchangeFlowAlerts: true,
		DailySummary:       true,
	}
}

// Wants reports whether the classification is switched on.
func (p NotificationPreference) Wants(c Classification) bool {
	switch c {
	case ClassWhale:
		return p.WhaleAlerts
	case ClassExchangeFlow:
		return p.ExchangeFlowAlerts
	default:
		return p.TransferAlerts
	}
}
