package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-watch/shared/logger"
)

func handleListAlerts(appLogger *logger.Logger, alerts AlertManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "0"))

		result, err := alerts.ListByOwner(c.Request.Context(), ownerOf(c), page, pageSize)
		if err != nil {
			appLogger.Error("Failed to list alerts", requestIDField(c), zap.String("owner", ownerOf(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleMarkAlertsRead(appLogger *logger.Logger, alerts AlertManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload struct {
			AlertIDs []string `json:"alertIds"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil || len(payload.AlertIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgAlertIDsRequired})
			return
		}

		updated, err := alerts.MarkRead(c.Request.Context(), ownerOf(c), payload.AlertIDs)
		if err != nil {
			appLogger.Error("Failed to mark alerts read", requestIDField(c), zap.String("owner", ownerOf(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

func handleDeleteReadAlerts(appLogger *logger.Logger, alerts AlertManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := alerts.DeleteRead(c.Request.Context(), ownerOf(c))
		if err != nil {
			appLogger.Error("Failed to clear read alerts", requestIDField(c), zap.String("owner", ownerOf(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	}
}
