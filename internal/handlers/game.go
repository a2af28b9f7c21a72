package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"solroll-backend/internal/models"
	"solroll-backend/internal/services"
)

type GameHandler struct {
	ledgerService *services.LedgerService
	allowAirdrop  bool
}

func NewGameHandler(ledgerService *services.LedgerService, allowAirdrop bool) *GameHandler {
	return &GameHandler{
		ledgerService: ledgerService,
		allowAirdrop:  allowAirdrop,
	}
}

func (h *GameHandler) CommitBet(c *gin.Context) {
	participant := c.GetString("participant")

	var req models.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bet, err := h.ledgerService.PlaceBet(c.Request.Context(), participant, &req)
	if err != nil {
		abortWithError(c, "Failed to place bet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bet":     bet,
	})
}

func (h *GameHandler) ResolveBet(c *gin.Context) {
	participant := c.GetString("participant")

	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bet, err := h.ledgerService.ResolveBet(c.Request.Context(), participant, c.Param("id"), req.RevealNumber)
	if err != nil {
		abortWithError(c, "Failed to resolve bet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"bet":        bet,
		"settlement": bet.Settlement,
	})
}

func (h *GameHandler) GetBet(c *gin.Context) {
	bet, err := h.ledgerService.GetBet(c.GetString("participant"), c.Param("id"))
	if err != nil {
		abortWithError(c, "Failed to get bet", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bet": bet})
}

func (h *GameHandler) GetActiveBets(c *gin.Context) {
	bets, err := h.ledgerService.GetActiveBets(c.GetString("participant"))
	if err != nil {
		abortWithError(c, "Failed to get active bets", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bets":  bets,
		"count": len(bets),
	})
}

func (h *GameHandler) GetBetHistory(c *gin.Context) {
	limit := queryLimit(c)

	bets, err := h.ledgerService.GetBetHistory(c.GetString("participant"), limit)
	if err != nil {
		abortWithError(c, "Failed to get bet history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bets":  bets,
		"count": len(bets),
		"limit": limit,
	})
}

func (h *GameHandler) VerifyOutcome(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.ledgerService.VerifyOutcome(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, "Failed to verify outcome", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GameHandler) GetBalance(c *gin.Context) {
	balance, err := h.ledgerService.GetBalances(c.Request.Context(), c.GetString("participant"))
	if err != nil {
		abortWithError(c, "Failed to get balance", err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *GameHandler) GetTransactions(c *gin.Context) {
	limit := queryLimit(c)

	txs, err := h.ledgerService.GetTransactions(c.GetString("participant"), limit)
	if err != nil {
		abortWithError(c, "Failed to get transactions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

func (h *GameHandler) Airdrop(c *gin.Context) {
	if !h.allowAirdrop {
		c.JSON(http.StatusForbidden, gin.H{"error": "Airdrop disabled"})
		return
	}

	var req models.AirdropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tx, err := h.ledgerService.Airdrop(c.Request.Context(), c.GetString("participant"), req.Amount)
	if err != nil {
		abortWithError(c, "Failed to airdrop", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"transaction": tx,
	})
}

func queryLimit(c *gin.Context) int64 {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}
	return limit
}
