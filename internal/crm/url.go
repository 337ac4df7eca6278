package crm

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseWebhookURL splits an inbound webhook URL of the form
// https://portal.bitrix24.ru/rest/<user>/<token>/ into the portal base
// URL and the webhook token.
func ParseWebhookURL(webhookURL string) (portalURL, token string, err error) {
	trimmed := strings.TrimRight(strings.TrimSpace(webhookURL), "/")

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", "", fmt.Errorf("invalid webhook URL %q", webhookURL)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "rest" {
		return "", "", fmt.Errorf("invalid webhook URL %q: expected https://portal/rest/<user>/<token>", webhookURL)
	}

	token = parts[len(parts)-1]
	if token == "" {
		return "", "", fmt.Errorf("invalid webhook URL %q: token missing", webhookURL)
	}

	return parsed.Scheme + "://" + parsed.Host, token, nil
}

// DomainFromWebhookURL extracts the portal domain from a webhook URL,
// e.g. "portal.bitrix24.ru". This is the same value event payloads
// carry in auth.domain, so tenants are keyed by it.
func DomainFromWebhookURL(webhookURL string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(webhookURL), "/")

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid webhook URL %q", webhookURL)
	}
	return parsed.Host, nil
}
