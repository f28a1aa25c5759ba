package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/locker"
)

func lockerID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid locker id")
		return 0, false
	}
	return id, true
}

// Deposit handles POST /api/lockers/:id/deposit.
func (h *Handler) Deposit(c *gin.Context) {
	id, ok := lockerID(c)
	if !ok {
		return
	}
	res, err := h.svc.Deposit(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.changed()
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"locker_id":  res.LockerID,
		"code":       res.Code,
		"expires_at": res.ExpiresAt,
	})
}

type pickupRequest struct {
	Code string `json:"code" binding:"required"`
}

// Pickup handles POST /api/pickup.
func (h *Handler) Pickup(c *gin.Context) {
	var req pickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "code is required")
		return
	}
	res, err := h.svc.Pickup(c.Request.Context(), req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.changed()
	c.JSON(http.StatusOK, gin.H{"success": true, "locker_id": res.LockerID})
}

type statusResponse struct {
	Success bool `json:"success"`
	*locker.StatusReport
}

// Status handles GET /api/status.
func (h *Handler) Status(c *gin.Context) {
	report, err := h.svc.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Success: true, StatusReport: report})
}

// ListLockers handles GET /api/lockers.
func (h *Handler) ListLockers(c *gin.Context) {
	cfgs, err := h.svc.ListConfig(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lockers": cfgs})
}

type reconfigureRequest struct {
	BackendKind string  `json:"backend_kind" binding:"required"`
	ActuatorPin *int    `json:"actuator_pin" binding:"required"`
	SensorPin   *int    `json:"sensor_pin"`
	SpecialCode *string `json:"special_code"`
}

// Reconfigure handles PUT /api/lockers/:id/config.
func (h *Handler) Reconfigure(c *gin.Context) {
	id, ok := lockerID(c)
	if !ok {
		return
	}
	var req reconfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "backend_kind and actuator_pin are required")
		return
	}
	l, err := h.svc.Reconfigure(c.Request.Context(), locker.ReconfigureRequest{
		LockerID:    id,
		BackendKind: req.BackendKind,
		ActuatorPin: *req.ActuatorPin,
		SensorPin:   req.SensorPin,
		SpecialCode: req.SpecialCode,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.changed()
	c.JSON(http.StatusOK, gin.H{"success": true, "locker": locker.LockerConfig{
		ID:             l.ID,
		BackendKind:    l.BackendKind,
		ActuatorPin:    l.ActuatorPin,
		SensorPin:      l.SensorPin,
		HasSpecialCode: l.SpecialCode != nil,
		Occupied:       l.Occupied,
	}})
}

// CloseDoor handles POST /api/simulator/lockers/:id/close.
func (h *Handler) CloseDoor(c *gin.Context) {
	id, ok := lockerID(c)
	if !ok {
		return
	}
	if err := h.svc.ForceClose(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.changed()
	c.JSON(http.StatusOK, gin.H{"success": true, "locker_id": id})
}
