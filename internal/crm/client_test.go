package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"leadbridge/platform/cache"
	"leadbridge/platform/config"
)

// fakeTransport routes calls to a handler and records every method
// invocation.
type fakeTransport struct {
	mu      sync.Mutex
	calls   map[string]int
	handler func(method string, params url.Values) (*Result, error)
}

func newFakeTransport(handler func(method string, params url.Values) (*Result, error)) *fakeTransport {
	return &fakeTransport{calls: make(map[string]int), handler: handler}
}

func (f *fakeTransport) Call(_ context.Context, method string, params url.Values) (*Result, error) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
	return f.handler(method, params)
}

func (f *fakeTransport) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func resultOf(t *testing.T, value any) *Result {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &Result{Result: raw}
}

func testClient(t *testing.T, transport Transport) *Client {
	t.Helper()
	cfg := &config.Config{
		CRMRequestsPerSecond: 100,
		CRMTimeout:           time.Second,
		PhoneCountryCode:     "7",
	}
	factory := NewFactory(cfg, 24*time.Hour, cache.NewMemory(), testLogger())
	return factory.ClientWithTransport("https://example.bitrix24.ru/rest/1/tok", transport)
}

func TestStatusNameCaching(t *testing.T) {
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		if method != "crm.status.list" {
			return nil, fmt.Errorf("unexpected method %s", method)
		}
		return resultOf(t, []map[string]string{
			{"STATUS_ID": "NEW", "NAME": "Новый"},
			{"STATUS_ID": "IN_PROCESS", "NAME": "В работе"},
		}), nil
	})
	client := testClient(t, transport)
	ctx := context.Background()

	if got := client.StatusName(ctx, "NEW"); got != "Новый" {
		t.Fatalf("StatusName = %q", got)
	}
	if got := client.StatusName(ctx, "IN_PROCESS"); got != "В работе" {
		t.Fatalf("StatusName = %q", got)
	}
	// Unknown id falls back to the raw id.
	if got := client.StatusName(ctx, "UC_XYZ"); got != "UC_XYZ" {
		t.Fatalf("StatusName = %q", got)
	}

	if n := transport.callCount("crm.status.list"); n != 1 {
		t.Fatalf("crm.status.list called %d times, want 1 (cached)", n)
	}
}

func TestStatusNameFallbackOnError(t *testing.T) {
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		return nil, fmt.Errorf("portal down")
	})
	client := testClient(t, transport)

	if got := client.StatusName(context.Background(), "NEW"); got != "NEW" {
		t.Fatalf("StatusName = %q, want raw id fallback", got)
	}
}

func TestDealStagesEntityID(t *testing.T) {
	var seen []string
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		seen = append(seen, params.Get("filter[ENTITY_ID]"))
		return resultOf(t, []map[string]string{{"STATUS_ID": "WON", "NAME": "Сделка успешна"}}), nil
	})
	client := testClient(t, transport)
	ctx := context.Background()

	if got := client.StageName(ctx, 0, "WON"); got != "Сделка успешна" {
		t.Fatalf("StageName = %q", got)
	}
	if got := client.StageName(ctx, 5, "WON"); got != "Сделка успешна" {
		t.Fatalf("StageName = %q", got)
	}

	if len(seen) != 2 || seen[0] != "DEAL_STAGE" || seen[1] != "DEAL_STAGE_5" {
		t.Fatalf("entity ids = %v", seen)
	}
}

func TestAssignedName(t *testing.T) {
	cases := []struct {
		name string
		user map[string]string
		want string
		nil_ bool
	}{
		{"both parts", map[string]string{"NAME": " Ivan ", "LAST_NAME": "Petrov"}, "Ivan Petrov", false},
		{"first only", map[string]string{"NAME": "Ivan", "LAST_NAME": "  "}, "Ivan", false},
		{"last only", map[string]string{"LAST_NAME": "Petrov"}, "Petrov", false},
		{"neither", map[string]string{"EMAIL": "x@y.z"}, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
				return resultOf(t, []map[string]string{tc.user}), nil
			})
			client := testClient(t, transport)

			got := client.AssignedName(context.Background(), "12")
			if tc.nil_ {
				if got != nil {
					t.Fatalf("got %q, want nil", *got)
				}
				return
			}
			if got == nil || *got != tc.want {
				t.Fatalf("got %v, want %q", got, tc.want)
			}
		})
	}
}

func TestAssignedNameUserFetchFails(t *testing.T) {
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		return nil, fmt.Errorf("portal down")
	})
	client := testClient(t, transport)

	if got := client.AssignedName(context.Background(), "12"); got != nil {
		t.Fatalf("got %q, want nil", *got)
	}
	if got := client.AssignedName(context.Background(), ""); got != nil {
		t.Fatal("empty user id must short-circuit to nil")
	}
}

func TestDealsByLeadIDDegradesToEmpty(t *testing.T) {
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		return nil, fmt.Errorf("portal down")
	})
	client := testClient(t, transport)

	if deals := client.DealsByLeadID(context.Background(), "7"); len(deals) != 0 {
		t.Fatalf("got %d deals, want 0", len(deals))
	}
}

func TestCreateEntityResultShapes(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
		want string
	}{
		{"numeric id", `123`, "123"},
		{"string id", `"123"`, "123"},
		{"object id", `{"id":"123"}`, "123"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
				return &Result{Result: json.RawMessage(tc.raw)}, nil
			})
			client := testClient(t, transport)

			id, err := client.createEntity(context.Background(), "crm.lead.add", url.Values{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tc.want {
				t.Fatalf("id = %q", id)
			}
		})
	}
}

func TestLeadFieldsLabels(t *testing.T) {
	transport := newFakeTransport(func(method string, params url.Values) (*Result, error) {
		return resultOf(t, map[string]map[string]string{
			"TITLE":            {"title": "Название лида", "type": "string"},
			"UF_CRM_123":       {"title": "UF_CRM_123", "listLabel": "Источник", "type": "enumeration"},
			"UF_CRM_UNLABELED": {},
		}), nil
	})
	client := testClient(t, transport)

	fields, err := client.LeadFields(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byID := make(map[string]Field, len(fields))
	for _, field := range fields {
		byID[field.ID] = field
	}

	if byID["TITLE"].Name != "Название лида" {
		t.Fatalf("TITLE name = %q", byID["TITLE"].Name)
	}
	if byID["UF_CRM_123"].Name != "Источник" {
		t.Fatalf("user field name = %q, want listLabel preferred", byID["UF_CRM_123"].Name)
	}
	if byID["UF_CRM_UNLABELED"].Name != "UF_CRM_UNLABELED" {
		t.Fatalf("unlabeled field name = %q, want id fallback", byID["UF_CRM_UNLABELED"].Name)
	}
	if byID["UF_CRM_UNLABELED"].Type != "string" {
		t.Fatalf("default type = %q", byID["UF_CRM_UNLABELED"].Type)
	}
}

func TestEntityAccessors(t *testing.T) {
	entity := Entity{
		"ID":          float64(42),
		"TITLE":       "Lead",
		"OPPORTUNITY": "1500.50",
		"ZERO":        "0",
		"EMPTY":       "",
		"NIL":         nil,
		"PHONE": []any{
			map[string]any{"VALUE": "+79991234567", "VALUE_TYPE": "WORK"},
			"89990000000",
		},
	}

	if entity.Str("ID") != "42" {
		t.Fatalf("Str(ID) = %q", entity.Str("ID"))
	}
	if amount, ok := entity.Float("OPPORTUNITY"); !ok || amount != 1500.50 {
		t.Fatalf("Float(OPPORTUNITY) = %v, %v", amount, ok)
	}
	for _, key := range []string{"ZERO", "EMPTY", "NIL", "MISSING"} {
		if entity.Truthy(key) {
			t.Fatalf("Truthy(%s) = true", key)
		}
	}
	if !entity.Truthy("OPPORTUNITY") || !entity.Truthy("TITLE") {
		t.Fatal("expected truthy values")
	}
	phones := entity.Phones()
	if len(phones) != 2 || phones[0] != "+79991234567" || phones[1] != "89990000000" {
		t.Fatalf("phones = %v", phones)
	}
}
