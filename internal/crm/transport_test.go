package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"golang.org/x/time/rate"

	"leadbridge/platform/logger"
)

func testLogger() *logger.Logger {
	return logger.New("development")
}

func newTestTransport(t *testing.T, handler http.HandlerFunc) Transport {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRESTTransport(server.URL+"/rest/1/tok", server.Client(), rate.NewLimiter(rate.Inf, 1), testLogger())
}

func TestTransportCall(t *testing.T) {
	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/1/tok/crm.lead.get.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostFormValue("id"); got != "77" {
			t.Errorf("id = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"ID": "77", "STATUS_ID": "NEW"},
		})
	})

	params := url.Values{}
	params.Set("id", "77")
	res, err := transport.Call(context.Background(), "crm.lead.get", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entity, err := decodeEntity(res.Result)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entity.Str("STATUS_ID") != "NEW" {
		t.Fatalf("STATUS_ID = %q", entity.Str("STATUS_ID"))
	}
}

func TestTransportRESTError(t *testing.T) {
	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "ERROR_METHOD_NOT_FOUND",
			"error_description": "Method not found!",
		})
	})

	_, err := transport.Call(context.Background(), "crm.bogus", url.Values{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCallAllPagination(t *testing.T) {
	var mu sync.Mutex
	starts := []string{}

	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		start := r.PostFormValue("start")
		mu.Lock()
		starts = append(starts, start)
		mu.Unlock()

		if start == "0" {
			json.NewEncoder(w).Encode(map[string]any{
				"result": []map[string]any{{"ID": "1"}, {"ID": "2"}},
				"next":   2,
				"total":  3,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{{"ID": "3"}},
			"total":  3,
		})
	})

	entities, err := callAll(context.Background(), transport, "crm.deal.list", url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 3 {
		t.Fatalf("got %d entities, want 3", len(entities))
	}
	if len(starts) != 2 || starts[1] != "2" {
		t.Fatalf("starts = %v", starts)
	}
}

func TestDecodeEntityListWrapped(t *testing.T) {
	raw := json.RawMessage(`{"order0000000000":[{"ID":"5"}]}`)
	entities, err := decodeEntityList(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 1 || entities[0].Str("ID") != "5" {
		t.Fatalf("entities = %v", entities)
	}
}

func TestDecodeEntityWrapped(t *testing.T) {
	raw := json.RawMessage(`{"order0000000000":{"ID":"9","TITLE":"x"}}`)
	entity, err := decodeEntity(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entity.Str("ID") != "9" {
		t.Fatalf("ID = %q", entity.Str("ID"))
	}
}
