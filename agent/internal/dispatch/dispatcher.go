package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wallet-watch/agent/internal/metrics"
	"wallet-watch/agent/internal/models"
	"wallet-watch/shared/logger"
)

const (
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// Summary counts deliveries for one alert.
type Summary struct {
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s *Summary) Add(o Summary) {
	s.Delivered += o.Delivered
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

type PreferenceSource interface {
	Get(ctx context.Context, owner string) (models.NotificationPreference, error)
}

// MessageSender delivers a MarkdownV2 text to a Telegram chat.
type MessageSender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Options struct {
	WhaleFeedChatIDs []int64
	WebhookTimeout   time.Duration
}

// Dispatcher fans a freshly created alert out to its recipients. Every
// delivery is independent; failures are counted and logged, never returned.
type Dispatcher struct {
	prefs     PreferenceSource
	telegram  MessageSender
	http      *http.Client
	whaleFeed []int64
	appLogger *logger.Logger
}

// NewDispatcher wires the channels. telegram may be nil when no bot token is
// configured; Telegram recipients are then skipped.
func NewDispatcher(prefs PreferenceSource, telegram MessageSender, opts Options, appLogger *logger.Logger) *Dispatcher {
	if appLogger == nil {
		appLogger = logger.NewNop()
	}
	timeout := opts.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		prefs:     prefs,
		telegram:  telegram,
		http:      &http.Client{Timeout: timeout},
		whaleFeed: opts.WhaleFeedChatIDs,
		appLogger: appLogger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, a *models.Alert) Summary {
	var sum Summary
	alertFields := []interface{}{zap.String("alertId", a.ID), zap.String("owner", a.OwnerID), zap.String("txHash", a.TxHash)}

	pref, err := d.prefs.Get(ctx, a.OwnerID)
	if err != nil {
		// opt-outs are unknown, so the whale feed is held back as well
		d.appLogger.Error("Could not load notification preferences", append(alertFields, zap.Error(err))...)
		sum.Failed++
		metrics.NotificationsTotal.WithLabelValues("preferences", "failed").Inc()
		return sum
	}

	if !Allowed(pref, a) {
		sum.Skipped++
		metrics.NotificationsTotal.WithLabelValues("preferences", "skipped").Inc()
	} else {
		handles := 0
		if pref.TelegramChatID != 0 && d.telegram != nil {
			handles++
			sum.Add(d.deliverTelegram(ctx, pref.TelegramChatID, a))
		}
		if pref.WebhookURL != "" {
			handles++
			sum.Add(d.deliverWebhook(ctx, pref.WebhookURL, a))
		}
		if handles == 0 {
			sum.Skipped++
		}
	}

	// the owner's chat was served above or opted out
	if a.Classification == models.ClassWhale && d.telegram != nil {
		for _, chat := range d.whaleFeed {
			if chat == 0 || chat == pref.TelegramChatID {
				continue
			}
			sum.Add(d.deliverTelegram(ctx, chat, a))
		}
	}
	return sum
}

// Allowed applies the owner's switches and thresholds to an alert.
func Allowed(pref models.NotificationPreference, a *models.Alert) bool {
	if !pref.Wants(a.Classification) {
		return false
	}
	switch a.Classification {
	case models.ClassWhale:
		return meets(a.USDValue, pref.MinWhaleUSD)
	case models.ClassTransfer:
		return meets(a.USDValue, pref.MinTransferUSD)
	}
	return true
}

// meets treats a zero floor as no floor and an unknown value as below any floor.
func meets(usd decimal.NullDecimal, floor decimal.Decimal) bool {
	if !floor.IsPositive() {
		return true
	}
	return usd.Valid && usd.Decimal.GreaterThanOrEqual(floor)
}

func (d *Dispatcher) deliverTelegram(ctx context.Context, chatID int64, a *models.Alert) Summary {
	if err := d.telegram.Send(ctx, chatID, FormatTelegram(a)); err != nil {
		d.appLogger.Error("Telegram alert delivery failed",
			zap.String("alertId", a.ID), zap.Int64("chatId", chatID), zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues(ChannelTelegram, "failed").Inc()
		return Summary{Failed: 1}
	}
	metrics.NotificationsTotal.WithLabelValues(ChannelTelegram, "delivered").Inc()
	return Summary{Delivered: 1}
}

type webhookPayload struct {
	Event  string        `json:"event"`
	SentAt time.Time     `json:"sentAt"`
	Alert  *models.Alert `json:"alert"`
}

func (d *Dispatcher) deliverWebhook(ctx context.Context, url string, a *models.Alert) Summary {
	err := d.postWebhook(ctx, url, a)
	if err != nil {
		d.appLogger.Error("Webhook alert delivery failed",
			zap.String("alertId", a.ID), zap.String("owner", a.OwnerID), zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues(ChannelWebhook, "failed").Inc()
		return Summary{Failed: 1}
	}
	metrics.NotificationsTotal.WithLabelValues(ChannelWebhook, "delivered").Inc()
	return Summary{Delivered: 1}
}

func (d *Dispatcher) postWebhook(ctx context.Context, url string, a *models.Alert) error {
	body, err := json.Marshal(webhookPayload{Event: "wallet.alert", SentAt: time.Now().UTC(), Alert: a})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wallet-watch/1.0")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
