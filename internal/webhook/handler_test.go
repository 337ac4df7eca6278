package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(f.svc).RegisterRoutes(engine.Group("/webhook"))
	return engine
}

func postForm(t *testing.T, engine *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/bitrix24", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleFormEvent(t *testing.T) {
	f := newFixture(leadTenant(1), nil)
	engine := newTestRouter(f)

	form := url.Values{}
	form.Set("event", "ONCRMCONTACTADD")
	form.Set("auth[domain]", testDomain)

	rec := postForm(t, engine, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" || resp.LeadUpdate != nil {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandleJSONBody(t *testing.T) {
	f := newFixture(leadTenant(1), nil)
	engine := newTestRouter(f)

	body := `{"event":"ONCRMCONTACTADD","auth":{"domain":"` + testDomain + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/bitrix24", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleErrorTaxonomy(t *testing.T) {
	tenant := leadTenant(1)
	tenant.AppToken = strptr("T1")

	cases := []struct {
		name string
		form url.Values
		want int
	}{
		{
			name: "missing domain",
			form: url.Values{"event": {"ONCRMLEADUPDATE"}},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown domain",
			form: url.Values{"event": {"ONCRMLEADUPDATE"}, "auth[domain]": {"other.bitrix24.ru"}},
			want: http.StatusNotFound,
		},
		{
			name: "token mismatch",
			form: url.Values{
				"event":                   {"ONCRMLEADUPDATE"},
				"auth[domain]":            {testDomain},
				"auth[application_token]": {"wrong"},
			},
			want: http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(tenant, nil)
			rec := postForm(t, newTestRouter(f), tc.form)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHandleUndecodableBody(t *testing.T) {
	f := newFixture(leadTenant(1), nil)
	engine := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/webhook/bitrix24", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
