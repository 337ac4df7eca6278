// Package tenant provides the tenant management bounded context:
// partner CRM integrations, their per-tenant lead stores and field
// mapping configuration.
package tenant

import (
	"leadbridge/internal/crm"
	apphttp "leadbridge/internal/http"
	"leadbridge/internal/tenant/handler"
	"leadbridge/internal/tenant/repository"
	"leadbridge/internal/tenant/service"
	"leadbridge/platform/logger"
	"leadbridge/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the tenant bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and wires the tenant module.
func NewModule(
	pool *pgxpool.Pool,
	stores service.StoreProvisioner,
	crmFactory *crm.Factory,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, stores, crmFactory, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "tenant"
}

// Service returns the service layer for other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts tenant routes on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/tenants"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
