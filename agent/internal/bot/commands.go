package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"wallet-watch/agent/database"
	"wallet-watch/agent/internal/models"
)

const helpText = `Wallet Watch bot

To receive alerts here, request a link code from your account settings and send:
/start <code>

Commands:
/link <code> - link this chat to your account
/whale on|off - whale alerts
/transfers on|off - transfer alerts
/exchange on|off - exchange flow alerts
/alerts - number of unread alerts
/help - show this message`

const notLinked = "This chat is not linked to an account yet. Request a link code in your settings and send /start <code>."

// HandleCommand executes one slash command and replies in the same chat.
func (b *Bot) HandleCommand(ctx context.Context, chatID int64, text string) {
	command, args := parseCommand(text)
	b.appLogger.Info("Processing command",
		zap.String("command", command),
		zap.Strings("args", args),
		zap.Int64("chatID", chatID))

	var reply string
	switch command {
	case "start", "link":
		if len(args) == 0 {
			reply = helpText
			break
		}
		reply = b.link(ctx, chatID, args[0])
	case "help":
		reply = helpText
	case "whale":
		reply = b.toggle(ctx, chatID, models.ClassWhale, "Whale alerts", args)
	case "transfers":
		reply = b.toggle(ctx, chatID, models.ClassTransfer, "Transfer alerts", args)
	case "exchange":
		reply = b.toggle(ctx, chatID, models.ClassExchangeFlow, "Exchange flow alerts", args)
	case "alerts":
		reply = b.unread(ctx, chatID)
	default:
		b.appLogger.Warn("Unknown command received", zap.String("command", command))
		reply = fmt.Sprintf("Unknown command: /%s. Send /help for the list.", command)
	}

	if err := b.reply.SendPlain(ctx, chatID, reply); err != nil {
		b.appLogger.Error("Failed to send reply message", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (b *Bot) link(ctx context.Context, chatID int64, code string) string {
	pref, err := b.prefs.LinkTelegramChat(ctx, code, chatID, b.now())
	if errors.Is(err, database.ErrInvalidLinkCode) {
		return "That code is invalid or has expired. Request a new one in your settings."
	}
	if err != nil {
		b.appLogger.Error("Failed to link Telegram chat", zap.Int64("chatID", chatID), zap.Error(err))
		return "An error occurred while linking this chat."
	}
	b.appLogger.Info("Telegram chat linked", zap.Int64("chatID", chatID), zap.String("owner", pref.OwnerID))
	return "✅ This chat is now linked. Alerts for your watchlist will arrive here."
}

func (b *Bot) toggle(ctx context.Context, chatID int64, class models.Classification, name string, args []string) string {
	if len(args) != 1 {
		return fmt.Sprintf("Usage: /%s on|off", commandFor(class))
	}
	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return fmt.Sprintf("Usage: /%s on|off", commandFor(class))
	}

	_, err := b.prefs.SetFlag(ctx, chatID, class, enabled)
	if errors.Is(err, database.ErrNotFound) {
		return notLinked
	}
	if err != nil {
		b.appLogger.Error("Failed to update preference from Telegram", zap.Int64("chatID", chatID), zap.String("classification", string(class)), zap.Error(err))
		return "An error occurred while saving your preference."
	}
	state := "off"
	if enabled {
		state = "on"
	}
	return fmt.Sprintf("%s are now %s.", name, state)
}

func (b *Bot) unread(ctx context.Context, chatID int64) string {
	pref, err := b.prefs.GetByTelegramChat(ctx, chatID)
	if errors.Is(err, database.ErrNotFound) {
		return notLinked
	}
	if err != nil {
		b.appLogger.Error("Failed to resolve chat owner", zap.Int64("chatID", chatID), zap.Error(err))
		return "An error occurred while loading your alerts."
	}
	n, err := b.alerts.UnreadCount(ctx, pref.OwnerID)
	if err != nil {
		b.appLogger.Error("Failed to count unread alerts", zap.String("owner", pref.OwnerID), zap.Error(err))
		return "An error occurred while loading your alerts."
	}
	if n == 0 {
		return "No unread alerts."
	}
	return fmt.Sprintf("You have %d unread alert(s).", n)
}

func commandFor(class models.Classification) string {
	switch class {
	case models.ClassWhale:
		return "whale"
	case models.ClassExchangeFlow:
		return "exchange"
	}
	return "transfers"
}

// parseCommand splits "/cmd@botname a b" into "cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}
