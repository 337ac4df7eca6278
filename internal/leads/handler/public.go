package handler

import (
	"net/http"
	"strings"

	"leadbridge/internal/leads/service"
	"leadbridge/internal/leads/transport"
	"leadbridge/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// PublicHandler handles unauthenticated lead intake keyed by the
// tenant's API token.
type PublicHandler struct {
	svc *service.Service
}

// NewPublic creates the public lead handler.
func NewPublic(svc *service.Service) *PublicHandler {
	return &PublicHandler{svc: svc}
}

// RegisterRoutes registers the public intake route. GET is accepted
// alongside POST so the endpoint can be hit from plain links and
// form builders.
func (h *PublicHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/tenants/:token/leads", h.Create)
	rg.GET("/tenants/:token/leads", h.Create)
}

// Create reads the lead from the JSON body when one is sent, falling
// back to query parameters. Unknown keys become extension attributes.
func (h *PublicHandler) Create(c *gin.Context) {
	token := c.Param("token")

	var input service.CreateInput
	contentType := c.GetHeader("Content-Type")
	if strings.Contains(contentType, "json") {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err == nil {
			input = inputFromMap(body)
		}
	}

	if input.Name == "" {
		input.Name = c.Query("name")
	}
	if input.Phone == "" {
		input.Phone = c.Query("phone")
	}
	if input.Extra == nil {
		input.Extra = make(map[string]string)
	}
	if len(input.Extra) == 0 {
		for key, values := range c.Request.URL.Query() {
			if key == "name" || key == "phone" || key == "token" || len(values) == 0 {
				continue
			}
			input.Extra[key] = values[0]
		}
	}

	if input.Name == "" || input.Phone == "" {
		httpkit.Error(c, http.StatusBadRequest, "name and phone are required", nil)
		return
	}

	detail, err := h.svc.CreateByToken(c.Request.Context(), token, input)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.FromDetail(detail))
}
