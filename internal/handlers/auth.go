package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solroll-backend/internal/models"
	"solroll-backend/internal/services"
)

type AuthHandler struct {
	redisService  *services.RedisService
	ledgerService *services.LedgerService
	jwtService    *services.JWTService
	log           logrus.FieldLogger
}

func NewAuthHandler(redisService *services.RedisService, ledgerService *services.LedgerService, jwtService *services.JWTService, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		redisService:  redisService,
		ledgerService: ledgerService,
		jwtService:    jwtService,
		log:           log,
	}
}

// IssueToken opens a session for a participant key, minting a fresh key when
// the request carries none, and funds the wallet on first sight.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req models.TokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	participant := req.Participant
	if participant == "" {
		key, err := models.GenerateParticipantKey()
		if err != nil {
			abortWithError(c, "Failed to generate participant key", err)
			return
		}
		participant = key
	}

	if err := h.ledgerService.EnsureWallet(c.Request.Context(), participant); err != nil {
		abortWithError(c, "Failed to open wallet", err)
		return
	}

	sessionID := uuid.New().String()
	token, expiresAt, err := h.jwtService.GenerateToken(participant, sessionID)
	if err != nil {
		abortWithError(c, "Failed to issue token", err)
		return
	}

	now := time.Now()
	session := &models.UserSession{
		Participant:  participant,
		SessionID:    sessionID,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := h.redisService.StoreUserSession(session, h.jwtService.TTL()); err != nil {
		abortWithError(c, "Failed to store session", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"participant": participant,
		"session":     sessionID,
	}).Info("Session opened")

	c.JSON(http.StatusOK, models.TokenResponse{
		Token:       token,
		Participant: participant,
		SessionID:   sessionID,
		ExpiresAt:   expiresAt,
	})
}
