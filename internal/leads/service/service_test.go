package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"leadbridge/internal/crm"
	domainevents "leadbridge/internal/events"
	"leadbridge/internal/tenant/repository"
	"leadbridge/internal/tenantstore"
	"leadbridge/platform/apperr"
	"leadbridge/platform/events"
	"leadbridge/platform/logger"
)

type fakeTenants struct {
	byID     map[int64]repository.Tenant
	byToken  map[string]repository.Tenant
	mappings map[int64][]repository.FieldMapping
}

func (f *fakeTenants) Get(_ context.Context, id int64) (repository.Tenant, error) {
	t, ok := f.byID[id]
	if !ok {
		return repository.Tenant{}, apperr.NotFound("tenant not found")
	}
	return t, nil
}

func (f *fakeTenants) GetByAPIToken(_ context.Context, token string) (repository.Tenant, error) {
	t, ok := f.byToken[token]
	if !ok {
		return repository.Tenant{}, apperr.NotFound("tenant not found")
	}
	return t, nil
}

func (f *fakeTenants) ListMappings(_ context.Context, tenantID int64, entityType string) ([]repository.FieldMapping, error) {
	var out []repository.FieldMapping
	for _, m := range f.mappings[tenantID] {
		if m.EntityType == entityType {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeStore struct {
	tenantID  int64
	nextID    int64
	leads     map[int64]tenantstore.Lead
	fields    map[int64]map[string]string
	remoteIDs map[int64]string
	closed    int
}

func newFakeStore(tenantID int64) *fakeStore {
	return &fakeStore{
		tenantID:  tenantID,
		nextID:    1,
		leads:     make(map[int64]tenantstore.Lead),
		fields:    make(map[int64]map[string]string),
		remoteIDs: make(map[int64]string),
	}
}

func (s *fakeStore) TenantID() int64 { return s.tenantID }

func (s *fakeStore) CreateLead(_ context.Context, lead tenantstore.Lead, fields map[string]string) (tenantstore.Lead, error) {
	lead.ID = s.nextID
	s.nextID++
	s.leads[lead.ID] = lead
	if len(fields) > 0 {
		s.fields[lead.ID] = fields
	}
	return lead, nil
}

func (s *fakeStore) SetRemoteID(_ context.Context, leadID int64, remoteID string) error {
	s.remoteIDs[leadID] = remoteID
	return nil
}

func (s *fakeStore) GetLead(_ context.Context, id int64) (*tenantstore.Lead, error) {
	lead, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	return &lead, nil
}

func (s *fakeStore) ListLeads(_ context.Context, _, offset int) ([]tenantstore.Lead, error) {
	if offset > 0 {
		return nil, nil
	}
	var out []tenantstore.Lead
	for id := s.nextID - 1; id >= 1; id-- {
		if lead, ok := s.leads[id]; ok {
			out = append(out, lead)
		}
	}
	return out, nil
}

func (s *fakeStore) CountLeads(_ context.Context) (int, error) {
	return len(s.leads), nil
}

func (s *fakeStore) ListLeadFields(_ context.Context, leadID int64) ([]tenantstore.Field, error) {
	var out []tenantstore.Field
	for name, value := range s.fields[leadID] {
		v := value
		out = append(out, tenantstore.Field{LeadID: leadID, FieldName: name, FieldValue: &v})
	}
	return out, nil
}

func (s *fakeStore) Close() { s.closed++ }

type fakeOpener struct {
	store *fakeStore
}

func (o fakeOpener) Open(context.Context, int64) (LeadStore, error) {
	return o.store, nil
}

type createCall struct {
	name, phone string
	extra       map[string]string
}

type fakeCRM struct {
	nextID    int
	failCalls bool
	leadCalls []createCall
	dealCalls []createCall
}

func (f *fakeCRM) CreateLead(_ context.Context, name, phone, _ string, extra map[string]string) (string, error) {
	f.leadCalls = append(f.leadCalls, createCall{name, phone, extra})
	if f.failCalls {
		return "", fmt.Errorf("portal down")
	}
	f.nextID++
	return fmt.Sprintf("%d", f.nextID), nil
}

func (f *fakeCRM) CreateDeal(_ context.Context, name, phone string, _ int, _ string, extra map[string]string) (string, error) {
	f.dealCalls = append(f.dealCalls, createCall{name, phone, extra})
	if f.failCalls {
		return "", fmt.Errorf("portal down")
	}
	f.nextID++
	return fmt.Sprintf("%d", f.nextID), nil
}

func (f *fakeCRM) LeadStatuses(context.Context) ([]crm.Status, error) {
	return []crm.Status{{ID: "NEW", Name: "Новый"}}, nil
}

func (f *fakeCRM) DealStages(context.Context, int) ([]crm.Status, error) {
	return []crm.Status{{ID: "NEW", Name: "Новая сделка"}}, nil
}

type fakeFactory struct{ crm *fakeCRM }

func (f fakeFactory) ClientFor(string) CRMClient { return f.crm }

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) { b.published = append(b.published, e) }
func (b *recordingBus) PublishSync(_ context.Context, e events.Event) error {
	b.published = append(b.published, e)
	return nil
}
func (b *recordingBus) Subscribe(string, events.Handler) {}

type fixture struct {
	svc   *Service
	store *fakeStore
	crm   *fakeCRM
	bus   *recordingBus
}

func newFixture(tenant repository.Tenant, mappings []repository.FieldMapping) *fixture {
	store := newFakeStore(tenant.ID)
	crmFake := &fakeCRM{}
	bus := &recordingBus{}
	tenants := &fakeTenants{
		byID:     map[int64]repository.Tenant{tenant.ID: tenant},
		byToken:  map[string]repository.Tenant{},
		mappings: map[int64][]repository.FieldMapping{tenant.ID: mappings},
	}
	if tenant.APIToken != nil {
		tenants.byToken[*tenant.APIToken] = tenant
	}
	svc := New(tenants, fakeOpener{store}, fakeFactory{crmFake}, bus, logger.New("development"))
	return &fixture{svc: svc, store: store, crm: crmFake, bus: bus}
}

func strptr(s string) *string { return &s }

func testTenant(id int64, entityType string) repository.Tenant {
	return repository.Tenant{
		ID:         id,
		Name:       "t",
		WebhookURL: strptr("https://example.bitrix24.ru/rest/1/tok/"),
		EntityType: entityType,
		APIToken:   strptr("public-token"),
	}
}

func TestCreateMirrorsMappedFields(t *testing.T) {
	f := newFixture(testTenant(1, "lead"), []repository.FieldMapping{
		{TenantID: 1, FieldName: "email", CRMFieldID: "EMAIL", EntityType: "lead"},
	})

	detail, err := f.svc.Create(context.Background(), 1, CreateInput{
		Name:  "Ivan",
		Phone: "79991234567",
		Extra: map[string]string{"email": "ivan@example.com", "unmapped": "x"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.crm.leadCalls) != 1 {
		t.Fatalf("lead calls = %d, want 1", len(f.crm.leadCalls))
	}
	call := f.crm.leadCalls[0]
	if call.extra["EMAIL"] != "ivan@example.com" {
		t.Fatalf("crm extra = %v", call.extra)
	}
	if _, ok := call.extra["unmapped"]; ok {
		t.Fatal("unmapped attributes must not reach the CRM")
	}

	if f.store.fields[detail.Lead.ID]["email"] != "ivan@example.com" {
		t.Fatalf("local fields = %v", f.store.fields[detail.Lead.ID])
	}
	if _, ok := f.store.fields[detail.Lead.ID]["unmapped"]; ok {
		t.Fatal("unmapped attributes must not be stored")
	}
	if deref := detail.Lead.RemoteID; deref == nil || *deref != "1" {
		t.Fatalf("remote id = %v", deref)
	}

	if len(f.bus.published) != 1 {
		t.Fatalf("published %d events, want 1", len(f.bus.published))
	}
	created, ok := f.bus.published[0].(domainevents.LeadCreated)
	if !ok {
		t.Fatalf("published %T", f.bus.published[0])
	}
	if created.Source != SourceAPI || created.RemoteID != "1" {
		t.Fatalf("event = %+v", created)
	}
}

func TestCreateSurvivesCRMFailure(t *testing.T) {
	f := newFixture(testTenant(1, "lead"), nil)
	f.crm.failCalls = true

	detail, err := f.svc.Create(context.Background(), 1, CreateInput{Name: "Ivan", Phone: "79991234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Lead.RemoteID != nil {
		t.Fatalf("remote id = %v, want none after portal failure", *detail.Lead.RemoteID)
	}
	if len(f.store.leads) != 1 {
		t.Fatal("local record must survive the portal failure")
	}
}

func TestCreateDealTypeTenant(t *testing.T) {
	tenant := testTenant(1, "deal")
	f := newFixture(tenant, nil)

	if _, err := f.svc.Create(context.Background(), 1, CreateInput{Name: "Ivan", Phone: "79991234567"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.crm.dealCalls) != 1 || len(f.crm.leadCalls) != 0 {
		t.Fatalf("deal calls = %d, lead calls = %d", len(f.crm.dealCalls), len(f.crm.leadCalls))
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(testTenant(1, "lead"), nil)
	_, err := f.svc.Create(context.Background(), 1, CreateInput{Name: "Ivan"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestCreateByToken(t *testing.T) {
	f := newFixture(testTenant(1, "lead"), nil)

	detail, err := f.svc.CreateByToken(context.Background(), "public-token", CreateInput{Name: "Ivan", Phone: "79991234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created := f.bus.published[0].(domainevents.LeadCreated)
	if created.Source != SourcePublic || created.LeadID != detail.Lead.ID {
		t.Fatalf("event = %+v", created)
	}

	_, err = f.svc.CreateByToken(context.Background(), "wrong", CreateInput{Name: "Ivan", Phone: "79991234567"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestImport(t *testing.T) {
	f := newFixture(testTenant(1, "lead"), []repository.FieldMapping{
		{TenantID: 1, FieldName: "email", CRMFieldID: "EMAIL", EntityType: "lead"},
	})

	csv := "name,phone,email\nIvan,79991234567,ivan@example.com\nPetr,79997654321,petr@example.com\nAnna,79990000000,\n"
	created, err := f.svc.Import(context.Background(), 1, strings.NewReader(csv), nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, want limit of 2", len(created))
	}
	if len(f.crm.leadCalls) != 2 {
		t.Fatalf("crm calls = %d, want 2", len(f.crm.leadCalls))
	}
	if f.store.fields[created[0].Lead.ID]["email"] != "ivan@example.com" {
		t.Fatalf("fields = %v", f.store.fields[created[0].Lead.ID])
	}
	for _, e := range f.bus.published {
		if e.(domainevents.LeadCreated).Source != SourceCSV {
			t.Fatalf("event source = %v", e)
		}
	}
}

func TestImportBadCSV(t *testing.T) {
	f := newFixture(testTenant(1, "lead"), nil)
	_, err := f.svc.Import(context.Background(), 1, strings.NewReader("name,phone\n,\n"), nil, 0)
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("err = %v, want bad request", err)
	}
	if len(f.store.leads) != 0 {
		t.Fatal("a malformed CSV must not create anything")
	}
}

func TestExport(t *testing.T) {
	f := newFixture(testTenant(1, "lead"), []repository.FieldMapping{
		{TenantID: 1, FieldName: "email", CRMFieldID: "EMAIL", CRMFieldName: "E-mail", DisplayName: "Почта", EntityType: "lead"},
	})

	if _, err := f.svc.Create(context.Background(), 1, CreateInput{
		Name:  "Ivan",
		Phone: "79991234567",
		Extra: map[string]string{"email": "ivan@example.com"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out strings.Builder
	if err := f.svc.Export(context.Background(), 1, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	if !strings.HasPrefix(got, "\xEF\xBB\xBF") {
		t.Fatal("export must start with a UTF-8 BOM")
	}
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(got, "\xEF\xBB\xBF")), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header plus one row", len(lines))
	}
	if !strings.Contains(lines[0], "Почта") {
		t.Fatalf("header = %q, want mapped display name", lines[0])
	}
	if !strings.Contains(lines[1], "Ivan;79991234567;Новый") {
		t.Fatalf("row = %q, want resolved status name", lines[1])
	}
	if !strings.Contains(lines[1], "ivan@example.com") {
		t.Fatalf("row = %q, want mapped attribute value", lines[1])
	}
}
