package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"solroll-backend/internal/services"
)

type UserHandler struct {
	redisService  *services.RedisService
	ledgerService *services.LedgerService
}

func NewUserHandler(redisService *services.RedisService, ledgerService *services.LedgerService) *UserHandler {
	return &UserHandler{
		redisService:  redisService,
		ledgerService: ledgerService,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	participant := c.GetString("participant")
	sessionID := c.GetString("session_id")

	session, err := h.redisService.GetUserSession(participant, sessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
		return
	}

	balance, err := h.ledgerService.GetBalances(c.Request.Context(), participant)
	if err != nil {
		abortWithError(c, "Failed to get balance", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participant": participant,
		"session": gin.H{
			"session_id":    session.SessionID,
			"created_at":    session.CreatedAt,
			"last_accessed": session.LastAccessed,
		},
		"balance": balance,
	})
}

func (h *UserHandler) Logout(c *gin.Context) {
	participant := c.GetString("participant")
	sessionID := c.GetString("session_id")

	if err := h.redisService.DeleteUserSession(participant, sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
