package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"solroll-backend/internal/custody"
	"solroll-backend/internal/game"
	"solroll-backend/internal/ledger"
	"solroll-backend/internal/services"
	"solroll-backend/internal/token"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrBetNotFound, http.StatusNotFound},
	{services.ErrHashUnavailable, http.StatusNotFound},
	{services.ErrBetResolved, http.StatusConflict},
	{services.ErrBetNotReady, http.StatusConflict},
	{game.ErrAlreadyResolved, http.StatusConflict},
	{services.ErrTxConflict, http.StatusServiceUnavailable},
	{services.ErrInvalidParticipant, http.StatusBadRequest},
	{services.ErrStakeTooSmall, http.StatusBadRequest},
	{game.ErrInvalidRollUnder, http.StatusBadRequest},
	{game.ErrInvalidAmount, http.StatusBadRequest},
	{game.ErrBelowFloor, http.StatusUnprocessableEntity},
	{ledger.ErrIncorrectProgramID, http.StatusForbidden},
	{token.ErrOwnerMismatch, http.StatusForbidden},
	{custody.ErrInvalidAmount, http.StatusBadRequest},
	{custody.ErrEmptyEscrow, http.StatusBadRequest},
	{custody.ErrNothingToMint, http.StatusBadRequest},
	{custody.ErrNothingToPay, http.StatusBadRequest},
	{token.ErrNotInitialized, http.StatusBadRequest},
	{token.ErrInsufficientShares, http.StatusBadRequest},
	{ledger.ErrInsufficientFunds, http.StatusBadRequest},
	{ledger.ErrLamportsOverflow, http.StatusBadRequest},
}

func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// abortWithError writes err with the status its cause maps to.
func abortWithError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": err.Error(),
	})
}
