// Package webhook is the CRM event reconciliation bounded context: it
// ingests Bitrix24 webhook deliveries, resolves them to local lead
// records across tenants and derives the became-successful signal.
package webhook

import (
	"context"

	"leadbridge/internal/crm"
	apphttp "leadbridge/internal/http"
	tenantservice "leadbridge/internal/tenant/service"
	"leadbridge/internal/tenantstore"
	"leadbridge/platform/events"
	"leadbridge/platform/logger"
)

// Module is the webhook bounded context module implementing
// http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates and wires the webhook module against the real CRM
// factory and tenant store manager.
func NewModule(
	tenantSvc *tenantservice.Service,
	stores *tenantstore.Manager,
	crmFactory *crm.Factory,
	bus events.Bus,
	log *logger.Logger,
) *Module {
	svc := New(tenantSvc, storeOpener{stores}, clientFactory{crmFactory}, bus, log)
	return &Module{handler: NewHandler(svc), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the webhook endpoint. It lives outside the
// admin group: the CRM authenticates inside the payload.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/webhook"))
}

// storeOpener adapts *tenantstore.Manager to the StoreOpener port.
type storeOpener struct {
	manager *tenantstore.Manager
}

func (o storeOpener) Open(ctx context.Context, tenantID int64) (LeadStore, error) {
	store, err := o.manager.Open(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// clientFactory adapts *crm.Factory to the ClientFactory port.
type clientFactory struct {
	factory *crm.Factory
}

func (f clientFactory) ClientFor(webhookURL string) CRMClient {
	return f.factory.ClientFor(webhookURL)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
