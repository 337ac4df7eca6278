// Package crm is the REST client for Bitrix24 portals. Each tenant has
// its own outbound webhook URL, so clients are built per portal through
// the Factory and share per-portal rate limiters and the status-name
// cache.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"leadbridge/platform/cache"
	"leadbridge/platform/config"
	"leadbridge/platform/logger"
)

// Factory builds portal-scoped clients. Rate limiters are keyed by
// webhook URL so concurrent events for one portal share a budget.
type Factory struct {
	cfg        config.CRMConfig
	cacheTTL   time.Duration
	cache      cache.Cache
	httpClient *http.Client
	log        *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFactory creates a client factory. The cache backs the 24h status
// dictionary cache and is shared across all portals.
func NewFactory(cfg config.CRMConfig, cacheTTL time.Duration, c cache.Cache, log *logger.Logger) *Factory {
	return &Factory{
		cfg:        cfg,
		cacheTTL:   cacheTTL,
		cache:      c,
		httpClient: &http.Client{Timeout: cfg.GetCRMTimeout()},
		log:        log,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// ClientFor returns a client bound to the given outbound webhook URL.
func (f *Factory) ClientFor(webhookURL string) *Client {
	normalized := strings.TrimRight(strings.TrimSpace(webhookURL), "/")
	return &Client{
		webhookURL:  normalized,
		transport:   NewRESTTransport(normalized, f.httpClient, f.limiterFor(normalized), f.log),
		cache:       f.cache,
		cacheTTL:    f.cacheTTL,
		countryCode: f.cfg.GetPhoneCountryCode(),
		log:         f.log,
	}
}

// ClientWithTransport returns a client backed by a caller-supplied
// transport. Tests use this to substitute a fake portal.
func (f *Factory) ClientWithTransport(webhookURL string, t Transport) *Client {
	return &Client{
		webhookURL:  webhookURL,
		transport:   t,
		cache:       f.cache,
		cacheTTL:    f.cacheTTL,
		countryCode: f.cfg.GetPhoneCountryCode(),
		log:         f.log,
	}
}

func (f *Factory) limiterFor(webhookURL string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limiter, ok := f.limiters[webhookURL]; ok {
		return limiter
	}
	rps := f.cfg.GetCRMRequestsPerSecond()
	if rps <= 0 {
		rps = 2
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	f.limiters[webhookURL] = limiter
	return limiter
}

// Client talks to one portal.
type Client struct {
	webhookURL  string
	transport   Transport
	cache       cache.Cache
	cacheTTL    time.Duration
	countryCode string
	log         *logger.Logger
}

// WebhookURL returns the outbound webhook URL this client is bound to.
func (c *Client) WebhookURL() string { return c.webhookURL }

// GetLead fetches a lead by id. Returns nil when the portal has no such
// lead.
func (c *Client) GetLead(ctx context.Context, leadID string) (Entity, error) {
	return c.getEntity(ctx, "crm.lead.get", leadID)
}

// GetDeal fetches a deal by id.
func (c *Client) GetDeal(ctx context.Context, dealID string) (Entity, error) {
	return c.getEntity(ctx, "crm.deal.get", dealID)
}

func (c *Client) getEntity(ctx context.Context, method, id string) (Entity, error) {
	params := url.Values{}
	params.Set("id", id)

	res, err := c.transport.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return decodeEntity(res.Result)
}

// AssignedName resolves a user id to "NAME LAST_NAME". Returns nil when
// the user cannot be fetched or has neither name part: the caller
// stores the nil to clear a stale value.
func (c *Client) AssignedName(ctx context.Context, userID string) *string {
	if userID == "" {
		return nil
	}

	params := url.Values{}
	params.Set("id", userID)

	res, err := c.transport.Call(ctx, "user.get", params)
	if err != nil {
		c.log.CRMCallError("user.get", err)
		return nil
	}

	user, err := decodeFirstEntity(res.Result)
	if err != nil || user == nil {
		return nil
	}

	parts := make([]string, 0, 2)
	if name := strings.TrimSpace(user.Str("NAME")); name != "" {
		parts = append(parts, name)
	}
	if lastName := strings.TrimSpace(user.Str("LAST_NAME")); lastName != "" {
		parts = append(parts, lastName)
	}
	if len(parts) == 0 {
		return nil
	}
	full := strings.Join(parts, " ")
	return &full
}

// decodeFirstEntity tolerates user.get returning either a single object
// or a one-element list.
func decodeFirstEntity(raw json.RawMessage) (Entity, error) {
	if list, err := decodeEntityList(raw); err == nil {
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}
	return decodeEntity(raw)
}

// DealsByLeadID lists the deals converted from a lead. Failures degrade
// to an empty result: deal enrichment is best effort.
func (c *Client) DealsByLeadID(ctx context.Context, leadID string) []Entity {
	params := url.Values{}
	params.Set("filter[LEAD_ID]", leadID)
	for i, field := range []string{"ID", "TITLE", "OPPORTUNITY", "STAGE_ID", "STAGE_SEMANTIC_ID", "LEAD_ID", "CATEGORY_ID"} {
		params.Set(fmt.Sprintf("select[%d]", i), field)
	}

	deals, err := callAll(ctx, c.transport, "crm.deal.list", params)
	if err != nil {
		c.log.CRMCallError("crm.deal.list", err)
		return nil
	}
	return deals
}

// LeadStatuses returns the portal's lead status dictionary, served from
// cache when fresh. Each portal has its own statuses so the cache is
// keyed by webhook URL.
func (c *Client) LeadStatuses(ctx context.Context) ([]Status, error) {
	return c.statusList(ctx, "STATUS", "lead_statuses:"+c.webhookURL)
}

// DealStages returns the stage dictionary for one funnel. The default
// funnel uses entity id DEAL_STAGE, custom funnels DEAL_STAGE_<id>.
func (c *Client) DealStages(ctx context.Context, categoryID int) ([]Status, error) {
	entityID := "DEAL_STAGE"
	if categoryID != 0 {
		entityID = "DEAL_STAGE_" + strconv.Itoa(categoryID)
	}
	key := fmt.Sprintf("deal_stages:%d:%s", categoryID, c.webhookURL)
	return c.statusList(ctx, entityID, key)
}

func (c *Client) statusList(ctx context.Context, entityID, cacheKey string) ([]Status, error) {
	if cached, ok := c.cache.Get(ctx, cacheKey); ok {
		var statuses []Status
		if err := json.Unmarshal(cached, &statuses); err == nil {
			return statuses, nil
		}
	}

	params := url.Values{}
	params.Set("filter[ENTITY_ID]", entityID)

	entries, err := callAll(ctx, c.transport, "crm.status.list", params)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(entries))
	for _, entry := range entries {
		statuses = append(statuses, Status{
			ID:   entry.Str("STATUS_ID"),
			Name: entry.Str("NAME"),
		})
	}

	if len(statuses) > 0 {
		if encoded, err := json.Marshal(statuses); err == nil {
			c.cache.Set(ctx, cacheKey, encoded, c.cacheTTL)
		}
	}
	return statuses, nil
}

// StatusName resolves a status id through the cached lead status
// dictionary, falling back to the raw id when the portal does not know
// it or the lookup fails.
func (c *Client) StatusName(ctx context.Context, statusID string) string {
	statuses, err := c.LeadStatuses(ctx)
	if err != nil {
		c.log.CRMCallError("crm.status.list", err)
		return statusID
	}
	return nameFromStatuses(statuses, statusID)
}

// StageName resolves a deal stage id within a funnel, falling back to
// the raw id.
func (c *Client) StageName(ctx context.Context, categoryID int, stageID string) string {
	stages, err := c.DealStages(ctx, categoryID)
	if err != nil {
		c.log.CRMCallError("crm.status.list", err)
		return stageID
	}
	return nameFromStatuses(stages, stageID)
}

func nameFromStatuses(statuses []Status, id string) string {
	for _, status := range statuses {
		if status.ID == id && status.Name != "" {
			return status.Name
		}
	}
	return id
}

// LeadFields lists the portal's lead fields for mapping configuration.
func (c *Client) LeadFields(ctx context.Context) ([]Field, error) {
	return c.entityFields(ctx, "crm.lead.fields")
}

// DealFields lists the portal's deal fields.
func (c *Client) DealFields(ctx context.Context) ([]Field, error) {
	return c.entityFields(ctx, "crm.deal.fields")
}

func (c *Client) entityFields(ctx context.Context, method string) ([]Field, error) {
	res, err := c.transport.Call(ctx, method, url.Values{})
	if err != nil {
		return nil, err
	}

	var raw map[string]Entity
	if err := json.Unmarshal(res.Result, &raw); err != nil {
		return nil, fmt.Errorf("crm: decode %s: %w", method, err)
	}

	fields := make([]Field, 0, len(raw))
	for id, info := range raw {
		fields = append(fields, Field{
			ID:   id,
			Name: fieldLabel(id, info),
			Type: fieldType(info),
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	return fields, nil
}

// fieldLabel picks a human-readable name. User fields (UF_CRM_*) carry
// their real label in listLabel/formLabel; their title is just the id.
func fieldLabel(id string, info Entity) string {
	var candidates []string
	if strings.HasPrefix(id, "UF_CRM_") {
		candidates = []string{"listLabel", "formLabel", "filterLabel", "title"}
	} else {
		candidates = []string{"title", "name"}
	}
	for _, key := range candidates {
		if label := info.Str(key); label != "" {
			return label
		}
	}
	return id
}

func fieldType(info Entity) string {
	if t := info.Str("type"); t != "" {
		return t
	}
	return "string"
}

// DealCategories lists the portal's deal funnels.
func (c *Client) DealCategories(ctx context.Context) ([]Category, error) {
	params := url.Values{}
	params.Set("entityTypeId", "2")

	res, err := c.transport.Call(ctx, "crm.category.list", params)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Categories []Entity `json:"categories"`
	}
	if err := json.Unmarshal(res.Result, &wrapper); err != nil {
		return nil, fmt.Errorf("crm: decode crm.category.list: %w", err)
	}

	categories := make([]Category, 0, len(wrapper.Categories))
	for _, entry := range wrapper.Categories {
		id, ok := entry.Float("id")
		if !ok {
			continue
		}
		categories = append(categories, Category{ID: int(id), Name: entry.Str("name")})
	}
	return categories, nil
}

// CreateLead creates a lead, reusing or creating a contact matched by
// phone, and returns the new lead id.
func (c *Client) CreateLead(ctx context.Context, name, phone, statusID string, extra map[string]string) (string, error) {
	contactID, err := c.linkableContact(ctx, name, phone)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("fields[TITLE]", name)
	params.Set("fields[NAME]", name)
	params.Set("fields[STATUS_ID]", statusID)
	params.Set("fields[CONTACT_ID]", contactID)
	setPhoneField(params, normalizedOrRaw(phone, c.countryCode))
	for field, value := range extra {
		params.Set("fields["+field+"]", value)
	}

	return c.createEntity(ctx, "crm.lead.add", params)
}

// CreateDeal creates a deal in the given funnel and links a contact
// matched or created by phone.
func (c *Client) CreateDeal(ctx context.Context, name, phone string, categoryID int, stageID string, extra map[string]string) (string, error) {
	contactID, err := c.linkableContact(ctx, name, phone)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("fields[TITLE]", name)
	params.Set("fields[CATEGORY_ID]", strconv.Itoa(categoryID))
	params.Set("fields[STAGE_ID]", stageID)
	for field, value := range extra {
		params.Set("fields["+field+"]", value)
	}

	dealID, err := c.createEntity(ctx, "crm.deal.add", params)
	if err != nil {
		return "", err
	}

	link := url.Values{}
	link.Set("id", dealID)
	link.Set("fields[CONTACT_ID]", contactID)
	link.Set("fields[IS_PRIMARY]", "Y")
	if _, err := c.transport.Call(ctx, "crm.deal.contact.add", link); err != nil {
		c.log.CRMCallError("crm.deal.contact.add", err)
	}
	return dealID, nil
}

func (c *Client) linkableContact(ctx context.Context, name, phone string) (string, error) {
	if contactID, err := c.FindContactByPhone(ctx, phone); err == nil && contactID != "" {
		return contactID, nil
	}
	return c.CreateContact(ctx, name, phone)
}

// CreateContact creates a contact with the phone stored in +-prefixed
// normalized form.
func (c *Client) CreateContact(ctx context.Context, name, phone string) (string, error) {
	firstName, lastName := splitName(name)

	params := url.Values{}
	params.Set("fields[NAME]", firstName)
	params.Set("fields[LAST_NAME]", lastName)
	setPhoneField(params, "+"+normalizedOrRaw(phone, c.countryCode))

	return c.createEntity(ctx, "crm.contact.add", params)
}

func (c *Client) createEntity(ctx context.Context, method string, params url.Values) (string, error) {
	res, err := c.transport.Call(ctx, method, params)
	if err != nil {
		return "", err
	}

	var id any
	if err := json.Unmarshal(res.Result, &id); err != nil {
		return "", fmt.Errorf("crm: decode %s result: %w", method, err)
	}
	switch v := id.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case string:
		return v, nil
	case map[string]any:
		return Entity(v).Str("id"), nil
	default:
		return "", fmt.Errorf("crm: unexpected %s result shape", method)
	}
}

// UpdateLeadStatus pushes a status change back to the portal.
func (c *Client) UpdateLeadStatus(ctx context.Context, leadID, statusID string) error {
	params := url.Values{}
	params.Set("id", leadID)
	params.Set("fields[STATUS_ID]", statusID)
	_, err := c.transport.Call(ctx, "crm.lead.update", params)
	return err
}

func setPhoneField(params url.Values, phone string) {
	params.Set("fields[PHONE][0][VALUE]", phone)
	params.Set("fields[PHONE][0][VALUE_TYPE]", "WORK")
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) == 0 {
		return name, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
