package webhook

import (
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"leadbridge/internal/formenc"
	"leadbridge/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler exposes the inbound webhook endpoint. The CRM authenticates
// through the payload body only (domain + application token), never
// through headers.
type Handler struct {
	svc *Service
}

// NewHandler creates the webhook handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the webhook route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bitrix24", h.Handle)
}

// Handle ingests one CRM event. The body is form-urlencoded with
// bracket-nested keys in the common case; JSON is accepted as a
// fallback. A recognized but unmatched event still returns 200 so the
// CRM does not retry indefinitely; non-2xx is reserved for structurally
// invalid input.
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httpkit.Error(c, 400, "unreadable body", nil)
		return
	}

	root, ok := decodeBody(c.ContentType(), body)
	if !ok {
		httpkit.Error(c, 400, "undecodable body", nil)
		return
	}

	update, err := h.svc.Process(c.Request.Context(), root)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, Response{Status: "ok", LeadUpdate: update})
}

// decodeBody parses the request body into a node tree. Form encoding is
// primary; a body that does not parse as a form (or declares JSON) is
// decoded as a JSON object.
func decodeBody(contentType string, body []byte) (*formenc.Node, bool) {
	if strings.Contains(contentType, "json") {
		return decodeJSON(body)
	}

	values, err := url.ParseQuery(string(body))
	if err == nil && len(values) > 0 {
		return formenc.DecodeValues(values), true
	}
	return decodeJSON(body)
}

func decodeJSON(body []byte) (*formenc.Node, bool) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	return formenc.FromMap(data), true
}
