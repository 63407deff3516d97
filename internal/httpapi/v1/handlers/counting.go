package handlers

import (
	"github.com/gin-gonic/gin"

	"recuento/internal/domain/counting"
	"recuento/internal/domain/warehouse"
	"recuento/internal/httpapi/v1/dto"
)

// CountingHandler serves the counting session: bind, scan, line mutations
// and the confirmation dialog.
type CountingHandler struct {
	*BaseHandler
	manager    *counting.Manager
	warehouses *warehouse.Service
}

// NewCountingHandler creates a counting handler.
func NewCountingHandler(base *BaseHandler, manager *counting.Manager, warehouses *warehouse.Service) *CountingHandler {
	return &CountingHandler{BaseHandler: base, manager: manager, warehouses: warehouses}
}

// Bind opens (or rebinds) the user's counting session. With no warehouse in
// the body the current warehouse is used; an explicit one becomes current.
func (h *CountingHandler) Bind(c *gin.Context) {
	var req dto.BindRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	userID := h.GetUserID(c)

	warehouseID := req.WarehouseID
	if warehouseID == "" {
		current, err := h.warehouses.Current(ctx, userID)
		if err != nil {
			h.Error(c, err)
			return
		}
		warehouseID = current
	} else if err := h.warehouses.SetCurrent(ctx, userID, warehouseID); err != nil {
		h.Error(c, err)
		return
	}

	session, err := h.manager.Bind(ctx, userID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.linesResponse(session))
}

// Lines returns the replicated counted list for the bound warehouse.
func (h *CountingHandler) Lines(c *gin.Context) {
	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.linesResponse(session))
}

// Scan ingests one barcode.
func (h *CountingHandler) Scan(c *gin.Context) {
	var req dto.ScanRequest
	if !h.BindJSON(c, &req) {
		return
	}

	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := session.Scan(c.Request.Context(), req.Barcode)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// SetValue changes one line's count or reference stock.
func (h *CountingHandler) SetValue(c *gin.Context) {
	var req dto.SetValueRequest
	if !h.BindJSON(c, &req) {
		return
	}

	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	outcome, err := session.SetValue(c.Request.Context(), c.Param("barcode"), counting.ValueKind(req.Type), req.Value, req.IsSum)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, outcome)
}

// Increment adds one to a line's count.
func (h *CountingHandler) Increment(c *gin.Context) {
	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	outcome, err := session.IncrementValue(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, outcome)
}

// Decrement subtracts one from a line's count, floored at zero.
func (h *CountingHandler) Decrement(c *gin.Context) {
	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	outcome, err := session.DecrementValue(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, outcome)
}

// DeleteLine removes one counted line.
func (h *CountingHandler) DeleteLine(c *gin.Context) {
	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := session.DeleteLine(c.Request.Context(), c.Param("barcode")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ClearList removes every counted line for the bound warehouse.
func (h *CountingHandler) ClearList(c *gin.Context) {
	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := session.ClearList(c.Request.Context()); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Confirm applies the change parked behind the confirmation dialog.
func (h *CountingHandler) Confirm(c *gin.Context) {
	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	pending, err := session.ConfirmPending(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, pending)
}

// Cancel drops the parked change without writing.
func (h *CountingHandler) Cancel(c *gin.Context) {
	session, err := h.manager.Get(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	pending, err := session.CancelPending()
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, pending)
}

func (h *CountingHandler) linesResponse(session *counting.Session) dto.LinesResponse {
	return dto.LinesResponse{
		WarehouseID: session.Warehouse(),
		Lines:       session.Lines(),
		Degraded:    session.Degraded(),
		Pending:     session.Pending(),
	}
}

// RegisterRoutes wires counting endpoints.
func (h *CountingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bind", h.Bind)
	rg.GET("/lines", h.Lines)
	rg.POST("/scan", h.Scan)
	rg.PUT("/lines/:barcode/value", h.SetValue)
	rg.POST("/lines/:barcode/increment", h.Increment)
	rg.POST("/lines/:barcode/decrement", h.Decrement)
	rg.DELETE("/lines/:barcode", h.DeleteLine)
	rg.DELETE("/lines", h.ClearList)
	rg.POST("/confirmation/accept", h.Confirm)
	rg.POST("/confirmation/cancel", h.Cancel)
}
