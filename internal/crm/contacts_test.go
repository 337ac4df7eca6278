package crm

import (
	"context"
	"net/url"
	"testing"
)

func TestFindContactByPhone(t *testing.T) {
	contacts := []map[string]any{
		{
			"ID": "10",
			"PHONE": []map[string]string{
				{"VALUE": "+7 (999) 123-45-67", "VALUE_TYPE": "WORK"},
			},
		},
		{
			"ID": "11",
			"PHONE": []map[string]string{
				{"VALUE": "+7 (999) 000-00-00", "VALUE_TYPE": "WORK"},
			},
		},
	}

	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		if method != "crm.contact.list" {
			t.Errorf("unexpected method %s", method)
		}
		filter := params.Get("filter[PHONE]")
		var matched []map[string]any
		// The portal's loose PHONE filter: return both contacts for any
		// variant of the target number, so verification has to pick.
		if filter != "" {
			matched = contacts
		}
		return resultOf(t, matched), nil
	})
	client := testClient(t, transport)

	id, err := client.FindContactByPhone(context.Background(), "8 (999) 123-45-67")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "10" {
		t.Fatalf("contact id = %q, want 10", id)
	}
}

func TestFindContactByPhoneFallbackScan(t *testing.T) {
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		if params.Get("filter[PHONE]") != "" {
			// Filtered searches find nothing.
			return resultOf(t, []map[string]any{}), nil
		}
		// Unfiltered scan returns the full book.
		return resultOf(t, []map[string]any{
			{"ID": "30", "PHONE": []map[string]string{{"VALUE": "8-999-123-45-67"}}},
		}), nil
	})
	client := testClient(t, transport)

	id, err := client.FindContactByPhone(context.Background(), "+79991234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "30" {
		t.Fatalf("contact id = %q, want 30 via fallback scan", id)
	}
}

func TestFindContactByPhoneNoMatch(t *testing.T) {
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		return resultOf(t, []map[string]any{}), nil
	})
	client := testClient(t, transport)

	id, err := client.FindContactByPhone(context.Background(), "+79991234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "" {
		t.Fatalf("contact id = %q, want empty", id)
	}
}

func TestFindContactByPhoneUnparseable(t *testing.T) {
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		t.Error("no CRM call expected for an empty phone")
		return nil, nil
	})
	client := testClient(t, transport)

	id, err := client.FindContactByPhone(context.Background(), "---")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "" {
		t.Fatalf("contact id = %q", id)
	}
}

func TestDedupeByID(t *testing.T) {
	unique := dedupeByID([]Entity{
		{"ID": "1"},
		{"ID": "2"},
		{"ID": "1"},
		{"ID": ""},
	})
	if len(unique) != 2 {
		t.Fatalf("got %d contacts, want 2", len(unique))
	}
}
