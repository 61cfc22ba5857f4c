package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
)

func (s *Server) CreateOrder(c *gin.Context) {
	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("pickup_lat/lng must be numbers"))
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	result, err := s.ordersvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Deduped {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"id": result.Order.ID, "status": result.Order.Status})
}

func (s *Server) ListOrders(c *gin.Context) {
	var req orderdomain.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	orders, err := s.ordersvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) GetOrderByID(c *gin.Context) {
	order, err := s.ordersvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) ListOrderEvents(c *gin.Context) {
	events, err := s.ordersvc.ListEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

type appendEventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) AppendOrderEvent(c *gin.Context) {
	var body appendEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payload, err := decodePayload(body.Payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	err = s.ordersvc.AppendEvent(c.Request.Context(), orderdomain.AppendEventRequest{
		OrderID: c.Param("id"),
		Type:    body.Type,
		Payload: payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

// decodePayload enforces that payload, when present, is a key-value
// document. null and absent both mean empty.
func decodePayload(raw json.RawMessage) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, orderdomain.ErrInvalidPayload
	}
	return payload, nil
}
