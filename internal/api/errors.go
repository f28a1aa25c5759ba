package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/hardware"
	"smart-locker-backend/internal/locker"
)

// errorMapping pairs a sentinel with the HTTP status and stop code it maps to.
// Order matters: the first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{locker.ErrInvalidCode, http.StatusForbidden, "INVALID_CODE"},
	{locker.ErrInvalidPIN, http.StatusUnauthorized, "INVALID_PIN"},
	{locker.ErrLockerNotFound, http.StatusNotFound, "LOCKER_NOT_FOUND"},
	{locker.ErrLockerOccupied, http.StatusConflict, "LOCKER_OCCUPIED"},
	{locker.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
	{locker.ErrNotSimulated, http.StatusBadRequest, "NOT_SIMULATED"},
	{hardware.ErrConfiguration, http.StatusUnprocessableEntity, "CONFIGURATION_ERROR"},
	{hardware.ErrHardware, http.StatusServiceUnavailable, "HARDWARE_ERROR"},
}

func (h *Handler) respondError(c *gin.Context, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				h.logger.Error("request failed", "path", c.FullPath(), "error", err)
			}
			abortWith(c, m.status, m.code, err.Error())
			return
		}
	}
	h.logger.Error("unexpected error", "path", c.FullPath(), "error", err)
	abortWith(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

func badRequest(c *gin.Context, msg string) {
	abortWith(c, http.StatusBadRequest, "INVALID_INPUT", msg)
}

func abortWith(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg, "code": code})
}
