package crm

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"leadbridge/platform/phone"
)

// FindContactByPhone locates a contact whose stored phone matches the
// given one after normalization. All format variants of the number are
// searched concurrently; candidates are verified by comparing
// normalized stored phones, because the portal's PHONE filter matches
// loosely. When the filtered searches find nothing it falls back to
// scanning all contacts locally. Returns "" when no contact matches.
func (c *Client) FindContactByPhone(ctx context.Context, rawPhone string) (string, error) {
	normalized := phone.Normalize(rawPhone, c.countryCode)
	if normalized == "" {
		return "", nil
	}
	variants := phone.Variants(normalized, c.countryCode)

	var (
		mu         sync.Mutex
		candidates []Entity
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, variant := range variants {
		group.Go(func() error {
			params := url.Values{}
			params.Set("filter[PHONE]", variant)
			for i, field := range []string{"ID", "NAME", "LAST_NAME", "PHONE"} {
				params.Set("select["+strconv.Itoa(i)+"]", field)
			}

			found, err := callAll(groupCtx, c.transport, "crm.contact.list", params)
			if err != nil {
				// One variant failing must not sink the others.
				c.log.CRMCallError("crm.contact.list", err)
				return nil
			}

			mu.Lock()
			candidates = append(candidates, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return "", err
	}

	if id := matchByNormalizedPhone(dedupeByID(candidates), normalized, c.countryCode); id != "" {
		return id, nil
	}

	// Fallback: the filter missed, scan everything and compare locally.
	params := url.Values{}
	params.Set("select[0]", "ID")
	params.Set("select[1]", "PHONE")

	all, err := callAll(ctx, c.transport, "crm.contact.list", params)
	if err != nil {
		c.log.CRMCallError("crm.contact.list", err)
		return "", nil
	}
	return matchByNormalizedPhone(all, normalized, c.countryCode), nil
}

func dedupeByID(contacts []Entity) []Entity {
	seen := make(map[string]bool, len(contacts))
	unique := contacts[:0:0]
	for _, contact := range contacts {
		id := contact.Str("ID")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, contact)
	}
	return unique
}

func matchByNormalizedPhone(contacts []Entity, normalized, countryCode string) string {
	for _, contact := range contacts {
		for _, stored := range contact.Phones() {
			if phone.Normalize(stored, countryCode) == normalized {
				return contact.Str("ID")
			}
		}
	}
	return ""
}

// normalizedOrRaw normalizes a phone for storage, keeping the raw input
// when normalization yields nothing.
func normalizedOrRaw(rawPhone, countryCode string) string {
	if normalized := phone.Normalize(rawPhone, countryCode); normalized != "" {
		return normalized
	}
	return rawPhone
}
