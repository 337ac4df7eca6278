package webhook

import (
	"testing"

	"leadbridge/internal/formenc"
	"leadbridge/internal/tenant/repository"
	"leadbridge/platform/apperr"
)

func TestResolveAuthNested(t *testing.T) {
	root := formenc.Decode(map[string]string{
		"auth[domain]":            "x.bitrix24.ru",
		"auth[application_token]": "tok",
	})
	domain, token := resolveAuth(root)
	if domain != "x.bitrix24.ru" || token != "tok" {
		t.Fatalf("got %q / %q", domain, token)
	}
}

func TestResolveAuthFlatFallback(t *testing.T) {
	// A decoder edge case can leave the auth keys flat instead of
	// nested; resolution still has to find them.
	root := formenc.NewObject()
	root.SetLeaf("auth[domain]", "x.bitrix24.ru")
	root.SetLeaf("auth[application_token]", "tok")

	domain, token := resolveAuth(root)
	if domain != "x.bitrix24.ru" || token != "tok" {
		t.Fatalf("got %q / %q", domain, token)
	}
}

func TestResolveAuthAbsent(t *testing.T) {
	domain, token := resolveAuth(formenc.Decode(map[string]string{"event": "x"}))
	if domain != "" || token != "" {
		t.Fatalf("got %q / %q, want empty", domain, token)
	}
}

func strptr(s string) *string { return &s }

func TestMatchTenants(t *testing.T) {
	withToken := repository.Tenant{ID: 1, AppToken: strptr("T1")}
	open := repository.Tenant{ID: 2}
	tenants := []repository.Tenant{withToken, open}

	t.Run("token matches only the holder", func(t *testing.T) {
		matched, err := matchTenants(tenants, "T1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// The open tenant matches any token; the token holder matches
		// its own.
		if len(matched) != 2 {
			t.Fatalf("got %d tenants", len(matched))
		}
		if matched[0].ID != 1 {
			t.Fatalf("first match = %d, want token holder", matched[0].ID)
		}
	})

	t.Run("wrong token against token-only tenants is forbidden", func(t *testing.T) {
		_, err := matchTenants([]repository.Tenant{withToken}, "T2")
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf("err = %v, want forbidden", err)
		}
	})

	t.Run("no token matches only the open tenant", func(t *testing.T) {
		matched, err := matchTenants(tenants, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(matched) != 1 || matched[0].ID != 2 {
			t.Fatalf("matched = %v", matched)
		}
	})

	t.Run("unknown domain is not found", func(t *testing.T) {
		_, err := matchTenants(nil, "T1")
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}
