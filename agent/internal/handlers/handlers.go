package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wallet-watch/agent/database"
	"wallet-watch/agent/internal/models"
	"wallet-watch/agent/internal/monitor"
	"wallet-watch/shared/logger"
)

const defaultOwnerHeader = "X-Owner-ID"

// CycleRunner starts one monitor cycle.
type CycleRunner interface {
	Run(ctx context.Context) (*monitor.RunReport, error)
}

type AlertManager interface {
	ListByOwner(ctx context.Context, owner string, page, pageSize int) (database.AlertPage, error)
	MarkRead(ctx context.Context, owner string, ids []string) (int64, error)
	DeleteRead(ctx context.Context, owner string) (int64, error)
}

type WatchManager interface {
	ListByOwner(ctx context.Context, owner string) ([]models.WatchEntry, error)
	Create(ctx context.Context, e *models.WatchEntry) error
	UpdateLabel(ctx context.Context, owner string, id uint, label string) (models.WatchEntry, error)
	Delete(ctx context.Context, owner string, id uint) error
}

type PreferenceManager interface {
	Get(ctx context.Context, owner string) (models.NotificationPreference, error)
	Upsert(ctx context.Context, pref *models.NotificationPreference) error
	LinkCode(ctx context.Context, owner string, now time.Time) (models.NotificationPreference, error)
	UnlinkTelegram(ctx context.Context, owner string) error
}

// API bundles what the routes need.
type API struct {
	Monitor       CycleRunner
	MonitorSecret string
	OwnerHeader   string
	Alerts        AlertManager
	Watches       WatchManager
	Preferences   PreferenceManager
}

func RegisterRoutes(router *gin.Engine, appLogger *logger.Logger) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "wallet-watch is running"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func RegisterAPIRoutes(router *gin.Engine, api API, appLogger *logger.Logger) {
	if api.OwnerHeader == "" {
		api.OwnerHeader = defaultOwnerHeader
	}

	router.POST("/monitor/run", handleRunMonitor(appLogger, api.Monitor, api.MonitorSecret))

	owned := router.Group("/", requireOwner(api.OwnerHeader))
	{
		owned.GET("/alerts", handleListAlerts(appLogger, api.Alerts))
		owned.PATCH("/alerts", handleMarkAlertsRead(appLogger, api.Alerts))
		owned.DELETE("/alerts", handleDeleteReadAlerts(appLogger, api.Alerts))

		owned.GET("/watchlist", handleListWatchlist(appLogger, api.Watches))
		owned.POST("/watchlist", handleAddToWatchlist(appLogger, api.Watches))
		owned.PATCH("/watchlist/:id", handleUpdateWatchLabel(appLogger, api.Watches))
		owned.DELETE("/watchlist/:id", handleRemoveFromWatchlist(appLogger, api.Watches))

		owned.GET("/preferences", handleGetPreferences(appLogger, api.Preferences))
		owned.PUT("/preferences", handlePutPreferences(appLogger, api.Preferences))
		owned.POST("/preferences/telegram/link-code", handleTelegramLinkCode(appLogger, api.Preferences))
		owned.DELETE("/preferences/telegram", handleUnlinkTelegram(appLogger, api.Preferences))
	}
	appLogger.Info("API routes registered", zap.String("ownerHeader", api.OwnerHeader))
}

// handleRunMonitor authenticates the scheduler before doing any work.
func handleRunMonitor(appLogger *logger.Logger, runner CycleRunner, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			appLogger.Error("Monitor trigger called but MONITOR_SECRET is not configured", requestIDField(c))
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": ErrMsgNotConfigured})
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			appLogger.Warn("Unauthorized monitor trigger", requestIDField(c), zap.String("remoteAddr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": ErrMsgUnauthorized})
			return
		}

		report, err := runner.Run(c.Request.Context())
		if err != nil {
			appLogger.Error("Monitor cycle failed", requestIDField(c), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// requireOwner resolves the caller from the gateway header or the owner query
// parameter. When both are present they must agree.
func requireOwner(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		fromHeader := strings.TrimSpace(c.GetHeader(header))
		fromQuery := strings.TrimSpace(c.Query("owner"))

		switch {
		case fromHeader != "" && fromQuery != "" && fromHeader != fromQuery:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrMsgOwnerMismatch})
			return
		case fromHeader == "" && fromQuery == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMsgMissingOwner})
			return
		}

		owner := fromHeader
		if owner == "" {
			owner = fromQuery
		}
		c.Set("owner", owner)
		c.Next()
	}
}

func ownerOf(c *gin.Context) string {
	return c.GetString("owner")
}
