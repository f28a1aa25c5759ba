package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DeliveryPINHeader carries the courier PIN on delivery-only endpoints.
const DeliveryPINHeader = "X-Delivery-Pin"

type loginRequest struct {
	PIN string `json:"pin" binding:"required"`
}

// DeliveryLogin handles POST /api/delivery/login.
func (h *Handler) DeliveryLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "pin is required")
		return
	}
	u, err := h.svc.AuthenticateDelivery(c.Request.Context(), req.PIN)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "name": u.Name})
}

// RequireDeliveryPIN rejects requests without a valid courier PIN header.
func (h *Handler) RequireDeliveryPIN(c *gin.Context) {
	u, err := h.svc.AuthenticateDelivery(c.Request.Context(), c.GetHeader(DeliveryPINHeader))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Set("delivery_user", u.Name)
	c.Next()
}
