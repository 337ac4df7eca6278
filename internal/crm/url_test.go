package crm

import "testing"

func TestParseWebhookURL(t *testing.T) {
	portal, token, err := ParseWebhookURL("https://example.bitrix24.ru/rest/1/abc123/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if portal != "https://example.bitrix24.ru" {
		t.Fatalf("portal = %q", portal)
	}
	if token != "abc123" {
		t.Fatalf("token = %q", token)
	}
}

func TestParseWebhookURLInvalid(t *testing.T) {
	for _, input := range []string{
		"",
		"not a url",
		"https://example.bitrix24.ru/",
		"https://example.bitrix24.ru/api/1/abc/",
		"https://example.bitrix24.ru/rest/1",
	} {
		if _, _, err := ParseWebhookURL(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestDomainFromWebhookURL(t *testing.T) {
	domain, err := DomainFromWebhookURL("https://example.bitrix24.ru/rest/1/abc123/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "example.bitrix24.ru" {
		t.Fatalf("domain = %q", domain)
	}

	if _, err := DomainFromWebhookURL("nonsense"); err == nil {
		t.Fatal("expected error for bad URL")
	}
}
