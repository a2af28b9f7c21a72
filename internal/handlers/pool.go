package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"solroll-backend/internal/models"
	"solroll-backend/internal/services"
)

type PoolHandler struct {
	ledgerService *services.LedgerService
}

func NewPoolHandler(ledgerService *services.LedgerService) *PoolHandler {
	return &PoolHandler{ledgerService: ledgerService}
}

func (h *PoolHandler) Deposit(c *gin.Context) {
	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.ledgerService.Deposit(c.Request.Context(), c.GetString("participant"), req.Amount)
	if err != nil {
		abortWithError(c, "Failed to deposit", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"amount":        res.Amount,
		"shares_minted": res.SharesMinted,
	})
}

func (h *PoolHandler) Withdraw(c *gin.Context) {
	var req models.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.ledgerService.Withdraw(c.Request.Context(), c.GetString("participant"), req.Shares)
	if err != nil {
		abortWithError(c, "Failed to withdraw", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"shares_burned": res.SharesBurned,
		"value":         res.Value,
	})
}

func (h *PoolHandler) GetPool(c *gin.Context) {
	stats, err := h.ledgerService.GetPoolStats(c.Request.Context())
	if err != nil {
		abortWithError(c, "Failed to get pool", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
