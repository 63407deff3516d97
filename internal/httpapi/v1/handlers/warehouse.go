package handlers

import (
	"github.com/gin-gonic/gin"

	"recuento/internal/domain/warehouse"
	"recuento/internal/httpapi/v1/dto"
)

// WarehouseHandler serves the warehouse set and the current-warehouse setting.
type WarehouseHandler struct {
	*BaseHandler
	warehouses *warehouse.Service
}

// NewWarehouseHandler creates a warehouse handler.
func NewWarehouseHandler(base *BaseHandler, svc *warehouse.Service) *WarehouseHandler {
	return &WarehouseHandler{BaseHandler: base, warehouses: svc}
}

// List returns the user's warehouses, seeding defaults on first use.
func (h *WarehouseHandler) List(c *gin.Context) {
	list, err := h.warehouses.List(c.Request.Context(), h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, list)
}

// Create adds one warehouse.
func (h *WarehouseHandler) Create(c *gin.Context) {
	var req dto.CreateWarehouseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	wh, err := h.warehouses.Create(c.Request.Context(), h.GetUserID(c), req.Name)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, wh.ID)
}

// Delete removes one warehouse.
func (h *WarehouseHandler) Delete(c *gin.Context) {
	if err := h.warehouses.Delete(c.Request.Context(), h.GetUserID(c), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Current returns the user's current warehouse ID.
func (h *WarehouseHandler) Current(c *gin.Context) {
	id, err := h.warehouses.Current(c.Request.Context(), h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.CurrentWarehouseResponse{WarehouseID: id})
}

// SetCurrent switches the current warehouse.
func (h *WarehouseHandler) SetCurrent(c *gin.Context) {
	var req dto.SetCurrentWarehouseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.warehouses.SetCurrent(c.Request.Context(), h.GetUserID(c), req.WarehouseID); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "current warehouse updated")
}

// RegisterRoutes wires warehouse endpoints.
func (h *WarehouseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.DELETE("/:id", h.Delete)
	rg.GET("/current", h.Current)
	rg.PUT("/current", h.SetCurrent)
}
