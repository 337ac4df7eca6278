package handler

import (
	"net/http"
	"strconv"

	"leadbridge/internal/tenant/service"
	"leadbridge/internal/tenant/transport"
	"leadbridge/platform/httpkit"
	"leadbridge/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Handler handles admin HTTP requests for tenant management.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new tenant handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers tenant routes on the admin group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/api-token/rotate", h.RotateAPIToken)

	rg.GET("/:id/mappings", h.ListMappings)
	rg.POST("/:id/mappings", h.CreateMapping)
	rg.PUT("/:id/mappings/:mappingId", h.UpdateMapping)
	rg.DELETE("/:id/mappings/:mappingId", h.DeleteMapping)

	rg.GET("/:id/crm/lead-fields", h.LeadFields)
	rg.GET("/:id/crm/deal-fields", h.DealFields)
	rg.GET("/:id/crm/deal-categories", h.DealCategories)
	rg.GET("/:id/crm/deal-stages", h.DealStages)
}

func tenantID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) List(c *gin.Context) {
	tenants, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromTenants(tenants))
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenant, err := h.svc.Create(c.Request.Context(), req.ToInput())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.FromTenant(tenant))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	tenant, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromTenant(tenant))
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	var req transport.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenant, err := h.svc.Update(c.Request.Context(), id, req.ToInput())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromTenant(tenant))
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RotateAPIToken(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	tenant, err := h.svc.RotateAPIToken(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromTenant(tenant))
}

func (h *Handler) ListMappings(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	mappings, err := h.svc.ListMappings(c.Request.Context(), id, c.Query("entity_type"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromMappings(mappings))
}

func (h *Handler) CreateMapping(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	var req transport.MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	mapping, err := h.svc.CreateMapping(c.Request.Context(), id, req.ToInput())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.FromMapping(mapping))
}

func (h *Handler) UpdateMapping(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	mappingID, err := strconv.ParseInt(c.Param("mappingId"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	mapping, err := h.svc.UpdateMapping(c.Request.Context(), id, mappingID, req.ToInput())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromMapping(mapping))
}

func (h *Handler) DeleteMapping(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	mappingID, err := strconv.ParseInt(c.Param("mappingId"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if err := h.svc.DeleteMapping(c.Request.Context(), id, mappingID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) LeadFields(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	fields, err := h.svc.DiscoverLeadFields(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, fields)
}

func (h *Handler) DealFields(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	fields, err := h.svc.DiscoverDealFields(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, fields)
}

func (h *Handler) DealCategories(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	categories, err := h.svc.DiscoverDealCategories(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, categories)
}

func (h *Handler) DealStages(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	categoryID, _ := strconv.Atoi(c.DefaultQuery("category_id", "0"))
	stages, err := h.svc.DiscoverDealStages(c.Request.Context(), id, categoryID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stages)
}
