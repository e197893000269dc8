package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

// messageAPI is the slice of *telego.Bot the sender needs.
type messageAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

type Options struct {
	// RateLimit is messages per second across all chats.
	RateLimit  float64
	Burst      int
	MaxRetries int
	OpsChatID  int64
}

// TelegramSender delivers MarkdownV2 messages through the Bot API with a
// process-wide rate limiter and bounded retries.
type TelegramSender struct {
	bot        *telego.Bot
	api        messageAPI
	limiter    *rate.Limiter
	maxRetries int
	opsChatID  int64
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewTelegramSender builds the bot client and verifies the token with GetMe.
func NewTelegramSender(ctx context.Context, botToken string, opts Options) (*TelegramSender, error) {
	if botToken == "" {
		return nil, fmt.Errorf("critical error: TELEGRAM_BOT_TOKEN missing from configuration")
	}
	log.Println("Initializing Telegram bot API...")
	bot, err := telego.NewBot(botToken, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot API: %w", err)
	}
	log.Println("Verifying bot token with Telegram API (GetMe)...")
	me, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify bot token with GetMe API call: %w", err)
	}

	s := newSender(bot, opts)
	s.bot = bot
	log.Printf("Telegram bot initialized successfully for @%s (%.1f msg/s)", me.Username, opts.RateLimit)
	return s, nil
}

func newSender(api messageAPI, opts Options) *TelegramSender {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 25
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &TelegramSender{
		api:        api,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		maxRetries: opts.MaxRetries,
		opsChatID:  opts.OpsChatID,
		sleep:      sleepCtx,
	}
}

// Bot exposes the underlying client for the command listener.
func (s *TelegramSender) Bot() *telego.Bot {
	return s.bot
}

// Send delivers a MarkdownV2 formatted message to chatID.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	return s.send(ctx, tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeMarkdownV2))
}

// SendPlain delivers text without any parse mode.
func (s *TelegramSender) SendPlain(ctx context.Context, chatID int64, text string) error {
	return s.send(ctx, tu.Message(tu.ID(chatID), text))
}

// SendOpsMessage mirrors a log line to the operations chat. It never blocks
// the caller and never logs through the application logger.
func (s *TelegramSender) SendOpsMessage(text string) {
	if s == nil || s.opsChatID == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.SendPlain(ctx, s.opsChatID, truncate(text, 4000)); err != nil {
			log.Printf("ERROR: ops message to chat %d failed: %v", s.opsChatID, err)
		}
	}()
}

func (s *TelegramSender) send(ctx context.Context, msg *telego.SendMessageParams) error {
	if s == nil || s.api == nil {
		return errors.New("telegram bot is not initialized")
	}
	chatID := msg.ChatID.ID
	if chatID == 0 && msg.ChatID.Username == "" {
		return errors.New("target chatID is 0")
	}

	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limiter wait for chat %d: %w", chatID, err)
		}

		_, err := s.api.SendMessage(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *ta.Error
		if errors.As(err, &apiErr) {
			log.Printf("ERROR: Failed Telegram send to chat %d (Attempt %d/%d): API Err %d - %s",
				chatID, i+1, s.maxRetries, apiErr.ErrorCode, apiErr.Description)
			if apiErr.ErrorCode == 429 {
				retryAfter := 1
				if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
					retryAfter = apiErr.Parameters.RetryAfter
				}
				if err := s.sleep(ctx, time.Duration(retryAfter)*time.Second); err != nil {
					return fmt.Errorf("telegram send to chat %d: %w", chatID, err)
				}
				continue
			}
			if apiErr.ErrorCode == 400 || apiErr.ErrorCode == 403 {
				// chat not found, bot blocked, bad markup: retrying cannot help
				return fmt.Errorf("telegram rejected message for chat %d: %w", chatID, err)
			}
		} else {
			log.Printf("ERROR: Failed Telegram send to chat %d (Attempt %d/%d): %v", chatID, i+1, s.maxRetries, err)
		}

		if i < s.maxRetries-1 {
			wait := time.Duration(math.Pow(2, float64(i))) * time.Second
			if err := s.sleep(ctx, wait); err != nil {
				return fmt.Errorf("telegram send to chat %d: %w", chatID, err)
			}
		}
	}
	return fmt.Errorf("telegram message to chat %d failed after %d attempts: %w", chatID, s.maxRetries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

var markdownV2Replacer = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// EscapeMarkdownV2 escapes every character Telegram reserves in MarkdownV2.
func EscapeMarkdownV2(s string) string {
	return markdownV2Replacer.Replace(s)
}
