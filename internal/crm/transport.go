package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"leadbridge/platform/logger"
)

// Result is one unwrapped REST response page.
type Result struct {
	Result json.RawMessage `json:"result"`
	Next   *int            `json:"next"`
	Total  int             `json:"total"`
}

// Transport executes a single REST method call against a portal and
// returns the decoded envelope. Implementations handle rate limiting and
// HTTP mechanics; they do not retry.
type Transport interface {
	Call(ctx context.Context, method string, params url.Values) (*Result, error)
}

type restError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

type restTransport struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewRESTTransport returns a Transport for the given inbound webhook URL
// (https://portal.bitrix24.ru/rest/<user>/<token>/). The limiter is
// shared by the caller so that one portal is throttled across clients.
func NewRESTTransport(webhookURL string, client *http.Client, limiter *rate.Limiter, log *logger.Logger) Transport {
	return &restTransport{
		baseURL: strings.TrimRight(webhookURL, "/"),
		client:  client,
		limiter: limiter,
		log:     log,
	}
}

func (t *restTransport) Call(ctx context.Context, method string, params url.Values) (*Result, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := t.baseURL + "/" + method + ".json"
	body := strings.NewReader(params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("crm: build request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.CRMCallError(method, err)
		return nil, fmt.Errorf("crm: call %s: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crm: read %s response: %w", method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var restErr restError
		if json.Unmarshal(payload, &restErr) == nil && restErr.Code != "" {
			return nil, fmt.Errorf("crm: %s returned %s: %s", method, restErr.Code, restErr.Description)
		}
		return nil, fmt.Errorf("crm: %s returned HTTP %d", method, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("crm: decode %s response: %w", method, err)
	}
	if result.Result == nil {
		var restErr restError
		if json.Unmarshal(payload, &restErr) == nil && restErr.Code != "" {
			return nil, fmt.Errorf("crm: %s returned %s: %s", method, restErr.Code, restErr.Description)
		}
	}
	return &result, nil
}

// callAll pages through a .list method, following the "next" offset
// until the portal reports no more rows.
func callAll(ctx context.Context, t Transport, method string, params url.Values) ([]Entity, error) {
	var all []Entity
	start := 0
	for {
		page := cloneValues(params)
		page.Set("start", strconv.Itoa(start))

		res, err := t.Call(ctx, method, page)
		if err != nil {
			return nil, err
		}

		entities, err := decodeEntityList(res.Result)
		if err != nil {
			return nil, fmt.Errorf("crm: decode %s page: %w", method, err)
		}
		all = append(all, entities...)

		if res.Next == nil {
			return all, nil
		}
		start = *res.Next
	}
}

// decodeEntityList handles both the plain list shape and the
// "order0000000000" wrapper some portals put around list results.
func decodeEntityList(raw json.RawMessage) ([]Entity, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []Entity
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if inner, ok := wrapped["order0000000000"]; ok {
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("unexpected list shape")
}

// decodeEntity handles the same wrapper quirk for single-entity methods.
func decodeEntity(raw json.RawMessage) (Entity, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var entity Entity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, err
	}
	if inner, ok := entity["order0000000000"]; ok {
		if innerMap, ok := inner.(map[string]any); ok {
			return Entity(innerMap), nil
		}
	}
	return entity, nil
}

func cloneValues(params url.Values) url.Values {
	cloned := make(url.Values, len(params)+1)
	for key, vals := range params {
		cloned[key] = append([]string(nil), vals...)
	}
	return cloned
}
