package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fxreplay/sim"
	"fxreplay/store"
)

// fail translates an engine error into an HTTP status and a JSON body.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case isKind(err, sim.ErrNoActiveSimulation),
		isKind(err, sim.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case isKind(err, sim.ErrInvalidState),
		isKind(err, sim.ErrConflictingTrigger):
		return http.StatusConflict
	case isKind(err, sim.ErrInsufficientMargin),
		isKind(err, sim.ErrPriceUnavailable),
		isKind(err, sim.ErrEndOfData):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func isKind(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}

// badRequest reports a malformed request body or query parameter.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
