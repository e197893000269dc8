package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-watch/agent/database"
	"wallet-watch/agent/internal/models"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
)

type addWatchRequest struct {
	Address      string `json:"address"`
	Chain        string `json:"chain"`
	Label        string `json:"label"`
	TokenAddress string `json:"tokenAddress"`
	TokenSymbol  string `json:"tokenSymbol"`
}

func handleListWatchlist(appLogger *logger.Logger, watches WatchManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := watches.ListByOwner(c.Request.Context(), ownerOf(c))
		if err != nil {
			appLogger.Error("Failed to list watchlist", requestIDField(c), zap.String("owner", ownerOf(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.JSON(http.StatusOK, gin.H{"watchlist": entries})
	}
}

func handleAddToWatchlist(appLogger *logger.Logger, watches WatchManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload addWatchRequest
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidPayload})
			return
		}

		chain, err := types.ParseChain(payload.Chain)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		address, err := types.NormalizeAddress(chain, payload.Address)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokenFilter := strings.TrimSpace(payload.TokenAddress)
		if tokenFilter != "" {
			if tokenFilter, err = types.NormalizeAddress(chain, tokenFilter); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tokenAddress: " + err.Error()})
				return
			}
		}

		entry := models.WatchEntry{
			OwnerID:     ownerOf(c),
			Address:     address,
			Chain:       chain,
			TokenFilter: tokenFilter,
			TokenSymbol: strings.TrimSpace(payload.TokenSymbol),
			Label:       strings.TrimSpace(payload.Label),
		}
		err = watches.Create(c.Request.Context(), &entry)
		if errors.Is(err, database.ErrDuplicateWatch) {
			c.JSON(http.StatusConflict, gin.H{"error": ErrMsgWatchExists})
			return
		}
		if err != nil {
			appLogger.Error("Failed to add wallet to watchlist", requestIDField(c), zap.String("owner", entry.OwnerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}

		appLogger.Info("Wallet added to watchlist",
			zap.String("owner", entry.OwnerID), zap.String("chain", chain.String()), zap.String("address", address))
		c.JSON(http.StatusCreated, entry)
	}
}

func handleUpdateWatchLabel(appLogger *logger.Logger, watches WatchManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := watchID(c)
		if !ok {
			return
		}
		var payload struct {
			Label *string `json:"label"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil || payload.Label == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidPayload})
			return
		}

		entry, err := watches.UpdateLabel(c.Request.Context(), ownerOf(c), id, strings.TrimSpace(*payload.Label))
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrMsgWatchNotFound})
			return
		}
		if err != nil {
			appLogger.Error("Failed to update watch entry", requestIDField(c), zap.Uint("watchEntryId", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

func handleRemoveFromWatchlist(appLogger *logger.Logger, watches WatchManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := watchID(c)
		if !ok {
			return
		}
		err := watches.Delete(c.Request.Context(), ownerOf(c), id)
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrMsgWatchNotFound})
			return
		}
		if err != nil {
			appLogger.Error("Failed to delete watch entry", requestIDField(c), zap.Uint("watchEntryId", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternal})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func watchID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid watch entry id"})
		return 0, false
	}
	return uint(id), true
}
