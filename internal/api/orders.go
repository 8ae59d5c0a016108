package api

import (
	"net/http"
	"strconv"

	"sinilikhain/internal/models"
	"sinilikhain/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrder handles checkout
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// listOrders handles GET /orders?artisanId=&status=
func (h *Handler) listOrders(c *gin.Context) {
	filter := models.OrderFilter{Status: c.Query("status")}
	if v := c.Query("artisanId"); v != "" {
		artisanID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, "Invalid artisanId", err)
			return
		}
		filter.ArtisanID = artisanID
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) listBuyerOrders(c *gin.Context) {
	buyerID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	orders, err := h.orders.ListBuyerOrders(c.Request.Context(), actorFrom(c), buyerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) listArtisanItems(c *gin.Context) {
	artisanID, ok := idParam(c, "artisanId")
	if !ok {
		return
	}
	items, err := h.orders.ListArtisanItems(c.Request.Context(), actorFrom(c), artisanID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), actorFrom(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updatePaymentStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	order, err := h.orders.UpdatePaymentStatus(c.Request.Context(), actorFrom(c), id, req.PaymentStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
