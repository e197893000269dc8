package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"go.uber.org/zap"

	"wallet-watch/agent/internal/models"
	"wallet-watch/shared/logger"
)

// PreferenceLinker finds and edits the preferences linked to a Telegram chat.
type PreferenceLinker interface {
	GetByTelegramChat(ctx context.Context, chatID int64) (models.NotificationPreference, error)
	SetFlag(ctx context.Context, chatID int64, class models.Classification, enabled bool) (models.NotificationPreference, error)
	LinkTelegramChat(ctx context.Context, code string, chatID int64, now time.Time) (models.NotificationPreference, error)
}

type UnreadCounter interface {
	UnreadCount(ctx context.Context, owner string) (int64, error)
}

type Replier interface {
	SendPlain(ctx context.Context, chatID int64, text string) error
}

// Bot answers the settings commands users send to the alert bot.
type Bot struct {
	prefs     PreferenceLinker
	alerts    UnreadCounter
	reply     Replier
	appLogger *logger.Logger
	now       func() time.Time
}

func New(prefs PreferenceLinker, alerts UnreadCounter, reply Replier, appLogger *logger.Logger) *Bot {
	if appLogger == nil {
		appLogger = logger.NewNop()
	}
	return &Bot{
		prefs:     prefs,
		alerts:    alerts,
		reply:     reply,
		appLogger: appLogger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartListening long-polls Telegram until ctx is cancelled.
func (b *Bot) StartListening(ctx context.Context, tg *telego.Bot) error {
	if tg == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	updates, err := tg.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        60,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	b.appLogger.Info("Listening for Telegram commands...")
	b.Listen(ctx, updates)
	return nil
}

// Listen handles updates until the channel closes or ctx is done.
func (b *Bot) Listen(ctx context.Context, updates <-chan telego.Update) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				b.appLogger.Info("Telegram update channel closed. Stopping listener.")
				return
			}
			msg := update.Message
			if msg == nil || !strings.HasPrefix(msg.Text, "/") {
				continue
			}
			b.appLogger.Debug("Received command message",
				zap.Int64("chatID", msg.Chat.ID),
				zap.String("text", msg.Text))
			go b.HandleCommand(ctx, msg.Chat.ID, msg.Text)

		case <-ctx.Done():
			b.appLogger.Info("Context cancelled. Stopping Telegram listener.")
			return
		}
	}
}
