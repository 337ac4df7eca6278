// Package handler exposes lead intake over HTTP: admin CRUD and CSV
// import/export, plus the unauthenticated public intake route.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"leadbridge/internal/leads/service"
	"leadbridge/internal/leads/transport"
	"leadbridge/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidID      = "invalid id"
)

// Handler handles admin lead routes, mounted under a tenant.
type Handler struct {
	svc *service.Service
}

// New creates a new lead handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers lead routes on the admin tenant group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/leads", h.List)
	rg.POST("/:id/leads", h.Create)
	rg.GET("/:id/leads/:leadId", h.Get)
	rg.POST("/:id/leads/upload", h.Upload)
	rg.GET("/:id/leads/export", h.Export)
}

func tenantID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return 0, false
	}
	return id, true
}

// decodeCreateInput reads a lead payload where any key beyond name and
// phone is an extension attribute. Non-string JSON values are
// stringified.
func decodeCreateInput(c *gin.Context) (service.CreateInput, bool) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return service.CreateInput{}, false
	}
	return inputFromMap(body), true
}

func inputFromMap(body map[string]any) service.CreateInput {
	input := service.CreateInput{Extra: make(map[string]string)}
	for key, value := range body {
		str := stringify(value)
		switch key {
		case "name":
			input.Name = str
		case "phone":
			input.Phone = str
		default:
			if str != "" {
				input.Extra[key] = str
			}
		}
	}
	return input
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprint(value)
	}
}

func (h *Handler) List(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	result, err := h.svc.List(c.Request.Context(), id, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ListLeadsResponse{
		Leads: transport.FromDetails(result.Leads),
		Total: result.Total,
	})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	leadID, err := strconv.ParseInt(c.Param("leadId"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	detail, err := h.svc.Get(c.Request.Context(), id, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromDetail(detail))
}

func (h *Handler) Create(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	input, ok := decodeCreateInput(c)
	if !ok {
		return
	}

	detail, err := h.svc.Create(c.Request.Context(), id, input)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.FromDetail(detail))
}

// Upload ingests a CSV file from a multipart form. The optional
// column_mapping form value is a JSON object renaming CSV columns to
// attribute names; the optional limit value caps the processed rows.
func (h *Handler) Upload(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "file is required", nil)
		return
	}

	var columnMapping map[string]string
	if raw := c.PostForm("column_mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &columnMapping); err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid column_mapping JSON format", nil)
			return
		}
	}

	limit := 0
	if raw := c.PostForm("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httpkit.Error(c, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "unreadable file", nil)
		return
	}
	defer file.Close()

	created, err := h.svc.Import(c.Request.Context(), id, file, columnMapping, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.FromDetails(created))
}

func (h *Handler) Export(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="leads_tenant_%d.csv"`, id))

	if err := h.svc.Export(c.Request.Context(), id, c.Writer); err != nil {
		// Headers may already be out; at least surface the error when
		// nothing was written yet.
		httpkit.HandleError(c, err)
	}
}
