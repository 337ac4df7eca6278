package webhook

import (
	"leadbridge/internal/formenc"
	"leadbridge/internal/tenant/repository"
	"leadbridge/platform/apperr"
)

// resolveAuth extracts the portal domain and application token from a
// decoded payload. A nested auth object wins; the flat keys
// "auth[domain]" / "auth[application_token]" cover decoder edge cases
// where nesting never happened. Empty string means absent.
func resolveAuth(root *formenc.Node) (domain, token string) {
	if auth := root.Child("auth"); auth != nil && !auth.IsLeaf() {
		domain, _ = auth.Leaf("domain")
		token, _ = auth.Leaf("application_token")
	}
	if domain == "" {
		domain, _ = root.Leaf("auth[domain]")
	}
	if token == "" {
		token, _ = root.Leaf("auth[application_token]")
	}
	return domain, token
}

// matchTenants filters the tenants bound to a domain down to those the
// event's token may act for: a tenant with no configured token is open,
// otherwise the tokens must be equal. Returns a typed error for the
// handler: 404 when the domain is unknown, 403 when it is known but no
// token matched.
func matchTenants(tenants []repository.Tenant, token string) ([]repository.Tenant, error) {
	if len(tenants) == 0 {
		return nil, apperr.NotFound("no tenant configured for domain")
	}

	matched := make([]repository.Tenant, 0, len(tenants))
	for _, t := range tenants {
		if t.AppToken == nil || *t.AppToken == token {
			matched = append(matched, t)
		}
	}
	if len(matched) == 0 {
		return nil, apperr.Forbidden("application token mismatch")
	}
	return matched, nil
}
