package webhook

import (
	"context"

	"leadbridge/internal/tenant/repository"
	"leadbridge/internal/tenantstore"
)

// LeadStore is the per-tenant store capability the reconciler consumes.
// *tenantstore.Store satisfies it.
type LeadStore interface {
	TenantID() int64
	FindLeadByRemoteID(ctx context.Context, remoteID string) (*tenantstore.Lead, error)
	UpdateLead(ctx context.Context, lead *tenantstore.Lead, fields map[string]string) error
	Close()
}

// StoreOpener opens a tenant's lead store.
type StoreOpener interface {
	Open(ctx context.Context, tenantID int64) (LeadStore, error)
}

// located is the outcome of a cross-tenant search: the matched lead,
// the still-open store that owns it, the owning tenant's configuration
// and which strategy matched. The caller owns closing the store.
type located struct {
	lead      *tenantstore.Lead
	store     LeadStore
	tenant    repository.Tenant
	viaLeadID bool
}

// locate searches every candidate tenant in order for a lead whose
// remote id equals entityID, falling back to fallbackID (the deal's
// originating lead id, for deal events) within the same tenant. The
// first match wins and its store stays open; every other opened store
// is closed before moving on. A failure inside one tenant is logged and
// must not abort the search of the remaining candidates.
func (s *Service) locate(ctx context.Context, tenants []repository.Tenant, entityID, fallbackID string) *located {
	for _, tenant := range tenants {
		store, err := s.stores.Open(ctx, tenant.ID)
		if err != nil {
			s.log.DatabaseError("open tenant store", err)
			continue
		}

		lead, err := store.FindLeadByRemoteID(ctx, entityID)
		if err != nil {
			s.log.DatabaseError("find lead by remote id", err)
			store.Close()
			continue
		}
		if lead != nil {
			return &located{lead: lead, store: store, tenant: tenant}
		}

		if fallbackID != "" && fallbackID != entityID {
			lead, err = store.FindLeadByRemoteID(ctx, fallbackID)
			if err != nil {
				s.log.DatabaseError("find lead by originating lead id", err)
				store.Close()
				continue
			}
			if lead != nil {
				return &located{lead: lead, store: store, tenant: tenant, viaLeadID: true}
			}
		}

		store.Close()
	}
	return nil
}
