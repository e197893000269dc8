package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wallet-watch/shared/logger"
)

// preferencesRequest only overwrites the fields it carries. TelegramChatID is
// decoded only to be refused.
type preferencesRequest struct {
	TransferAlerts     *bool            `json:"transferAlerts"`
	WhaleAlerts        *bool            `json:"whaleAlerts"`
	ExchangeFlowAlerts *bool            `json:"exchangeFlowAlerts"`
	DailySummary       *bool            `json:"dailySummary"`
	MinWhaleUSD        *decimal.Decimal `json:"minWhaleUsd"`
	MinTransferUSD     *decimal.Decimal `json:"minTransferUsd"`
	TelegramChatID     *int64           `json:"telegramChatId"`
	WebhookURL         *string          `json:"webhookUrl"`
}

func handleGetPreferences(appLogger *logger.Logger, prefs PreferenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		pref, err := prefs.Get(c.Request.Context(), ownerOf(c))
		if err != nil {
			appLogger.Error("Failed to load preferences", requestIDField(c), zap.String("owner", ownerOf(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.JSON(http.StatusOK, pref)
	}
}

func handlePutPreferences(appLogger *logger.Logger, prefs PreferenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload preferencesRequest
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidPayload})
			return
		}
		if payload.TelegramChatID != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgChatIDReadOnly})
			return
		}

		pref, err := prefs.Get(c.Request.Context(), ownerOf(c))
		if err != nil {
			appLogger.Error("Failed to load preferences", requestIDField(c), zap.String("owner", ownerOf(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}

		if payload.TransferAlerts != nil {
			pref.TransferAlerts = *payload.TransferAlerts
		}
		if payload.WhaleAlerts != nil {
			pref.WhaleAlerts = *payload.WhaleAlerts
		}
		if payload.ExchangeFlowAlerts != nil {
			pref.ExchangeFlowAlerts = *payload.ExchangeFlowAlerts
		}
		if payload.DailySummary != nil {
			pref.DailySummary = *payload.DailySummary
		}
		if payload.MinWhaleUSD != nil {
			if payload.MinWhaleUSD.IsNegative() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "minWhaleUsd must not be negative"})
				return
			}
			pref.MinWhaleUSD = *payload.MinWhaleUSD
		}
		if payload.MinTransferUSD != nil {
			if payload.MinTransferUSD.IsNegative() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "minTransferUsd must not be negative"})
				return
			}
			pref.MinTransferUSD = *payload.MinTransferUSD
		}
		if payload.WebhookURL != nil {
			hook := strings.TrimSpace(*payload.WebhookURL)
			if hook != "" && !validWebhookURL(hook) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "webhookUrl must be an absolute http(s) URL"})
				return
			}
			pref.WebhookURL = hook
		}

		pref.OwnerID = ownerOf(c)
		if err := prefs.Upsert(c.Request.Context(), &pref); err != nil {
			appLogger.Error("Failed to save preferences", requestIDField(c), zap.String("owner", pref.OwnerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.JSON(http.StatusOK, pref)
	}
}

// handleTelegramLinkCode issues the one-time code the owner sends to the bot
// as "/start <code>".
func handleTelegramLinkCode(appLogger *logger.Logger, prefs PreferenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		pref, err := prefs.LinkCode(c.Request.Context(), ownerOf(c), time.Now().UTC())
		if err != nil {
			appLogger.Error("Failed to issue Telegram link code", requestIDField(c), zap.String("owner", ownerOf(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		if pref.TelegramChatID != 0 {
			c.JSON(http.StatusOK, gin.H{"connected": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"connected": false,
			"code":      pref.TelegramLinkCode,
			"expiresAt": pref.TelegramLinkExpiresAt,
		})
	}
}

func handleUnlinkTelegram(appLogger *logger.Logger, prefs PreferenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := prefs.UnlinkTelegram(c.Request.Context(), ownerOf(c)); err != nil {
			appLogger.Error("Failed to unlink Telegram", requestIDField(c), zap.String("owner", ownerOf(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
