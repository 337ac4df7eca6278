// Package leads is the lead intake bounded context: admin and public
// creation endpoints, CSV import/export, and the best-effort mirror of
// every new lead into the tenant's CRM portal.
package leads

import (
	"context"

	"leadbridge/internal/crm"
	apphttp "leadbridge/internal/http"
	"leadbridge/internal/leads/handler"
	"leadbridge/internal/leads/service"
	tenantservice "leadbridge/internal/tenant/service"
	"leadbridge/internal/tenantstore"
	"leadbridge/platform/events"
	"leadbridge/platform/logger"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	public  *handler.PublicHandler
	service *service.Service
}

// NewModule creates and wires the leads module.
func NewModule(
	tenantSvc *tenantservice.Service,
	stores *tenantstore.Manager,
	crmFactory *crm.Factory,
	bus events.Bus,
	log *logger.Logger,
) *Module {
	svc := service.New(tenantSvc, storeOpener{stores}, clientFactory{crmFactory}, bus, log)
	return &Module{
		handler: handler.New(svc),
		public:  handler.NewPublic(svc),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts lead management under the admin tenant group
// and the token-keyed intake route on the public group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/tenants"))
	m.public.RegisterRoutes(ctx.V1.Group("/public"))
}

// storeOpener adapts *tenantstore.Manager to the StoreOpener port.
type storeOpener struct {
	manager *tenantstore.Manager
}

func (o storeOpener) Open(ctx context.Context, tenantID int64) (service.LeadStore, error) {
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

func (f clientFactory) ClientFor(webhookURL string) service.CRMClient {
	return f.factory.ClientFor(webhookURL)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
