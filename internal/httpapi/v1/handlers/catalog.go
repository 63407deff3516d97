package handlers

import (
	"github.com/gin-gonic/gin"

	"recuento/internal/domain/catalog"
	"recuento/internal/httpapi/v1/dto"
)

// CatalogHandler serves the product catalog.
type CatalogHandler struct {
	*BaseHandler
	catalog *catalog.Service
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(base *BaseHandler, svc *catalog.Service) *CatalogHandler {
	return &CatalogHandler{BaseHandler: base, catalog: svc}
}

// Sync synchronizes the catalog from the remote store, falling back to the
// local cache when the remote is unreachable.
func (h *CatalogHandler) Sync(c *gin.Context) {
	result, err := h.catalog.Synchronize(c.Request.Context(), h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.CatalogSyncResponse{
		Entries:     result.Entries,
		Source:      string(result.Source),
		FirstNotice: result.FirstNotice,
	})
}

// List returns the published in-memory catalog.
func (h *CatalogHandler) List(c *gin.Context) {
	h.OK(c, h.catalog.Entries())
}

// Edit upserts one catalog entry and resynchronizes.
func (h *CatalogHandler) Edit(c *gin.Context) {
	var req dto.EditCatalogEntryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entry := catalog.Entry{
		Barcode:        c.Param("barcode"),
		Description:    req.Description,
		Provider:       req.Provider,
		ReferenceStock: req.ReferenceStock,
		Expiration:     req.Expiration,
	}
	if err := h.catalog.EditEntry(c.Request.Context(), h.GetUserID(c), entry); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "catalog entry saved")
}

// RegisterRoutes wires catalog endpoints.
func (h *CatalogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync", h.Sync)
	rg.GET("", h.List)
	rg.PUT("/:barcode", h.Edit)
}
