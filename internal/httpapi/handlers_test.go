package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"leadline.io/internal/auth"
	"leadline.io/internal/crm"
	"leadline.io/internal/leads"
	"leadline.io/internal/notify"
	"leadline.io/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("LEADLINE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	store := crm.NewInMemory()
	router := stream.NewRouter(nil)

	authSvc, err := auth.NewService(store)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	leadSvc, err := leads.NewService(store, router, nil)
	if err != nil {
		t.Fatalf("lead service: %v", err)
	}
	notifySvc, err := notify.NewService(store)
	if err != nil {
		t.Fatalf("notify service: %v", err)
	}

	api := New(ReadyProbe{}, "test", authSvc, leadSvc, notifySvc, router)
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) delete(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodDelete, path, nil, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

// signup registers a user with the given role and logs in, returning the
// user id and an Authorization header.
func (c *apiClient) signup(name string, role crm.Role) (string, map[string]string) {
	c.t.Helper()
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@leadline.test"

	resp := c.post("/api/v1/auth/register", map[string]any{
		"name":     name,
		"email":    email,
		"password": "hunter22",
		"role":     role,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: unexpected status %d", name, resp.StatusCode)
	}
	reg := decode[struct {
		Data crm.User `json:"data"`
	}](c.t, resp)

	resp = c.post("/api/v1/auth/login", map[string]any{
		"email":    email,
		"password": "hunter22",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: unexpected status %d", name, resp.StatusCode)
	}
	login := decode[struct {
		Data loginResponse `json:"data"`
	}](c.t, resp)
	if login.Data.Token == "" {
		c.t.Fatalf("login %s: empty token", name)
	}

	return reg.Data.ID, map[string]string{"Authorization": "Bearer " + login.Data.Token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func expectErrorKind(t *testing.T, resp *http.Response, status int, kind string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("unexpected status: got %d want %d", resp.StatusCode, status)
	}
	env := decode[errorEnvelope](t, resp)
	if env.Error.Kind != kind {
		t.Fatalf("unexpected error kind: got %q want %q", env.Error.Kind, kind)
	}
	if env.RequestID == "" {
		t.Fatalf("error envelope missing request_id")
	}
}

func TestAPIRegisterLoginProfileFlow(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/v1/auth/register", map[string]any{
		"name":     "Dana Seitova",
		"email":    "dana@leadline.test",
		"password": "hunter22",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	reg := decode[struct {
		Data crm.User `json:"data"`
	}](t, resp)
	if reg.Data.Role != crm.RoleSalesExec {
		t.Fatalf("role should default to sales_executive, got %s", reg.Data.Role)
	}

	resp = api.post("/api/v1/auth/login", map[string]any{
		"email":    "dana@leadline.test",
		"password": "hunter22",
	}, nil)
	login := decode[struct {
		Data loginResponse `json:"data"`
	}](t, resp)
	header := map[string]string{"Authorization": "Bearer " + login.Data.Token}

	resp = api.get("/api/v1/auth/profile", nil, header)
	profile := decode[struct {
		Data crm.User `json:"data"`
	}](t, resp)
	if profile.Data.Email != "dana@leadline.test" {
		t.Fatalf("unexpected profile email: %s", profile.Data.Email)
	}

	resp = api.put("/api/v1/auth/profile", map[string]any{"name": "Dana S."}, header)
	updated := decode[struct {
		Data crm.User `json:"data"`
	}](t, resp)
	if updated.Data.Name != "Dana S." {
		t.Fatalf("profile name not updated: %s", updated.Data.Name)
	}

	// Wrong password is unauthenticated, not validation.
	resp = api.post("/api/v1/auth/login", map[string]any{
		"email":    "dana@leadline.test",
		"password": "wrong-password",
	}, nil)
	expectErrorKind(t, resp, http.StatusUnauthorized, "unauthenticated")
}

func TestAPIRejectsMissingAndBadTokens(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/api/v1/leads", nil, nil)
	expectErrorKind(t, resp, http.StatusUnauthorized, "unauthenticated")

	resp = api.get("/api/v1/leads", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	expectErrorKind(t, resp, http.StatusUnauthorized, "unauthenticated")

	resp = api.get("/api/v1/notifications", nil, map[string]string{"Authorization": "Basic abc"})
	expectErrorKind(t, resp, http.StatusUnauthorized, "unauthenticated")
}

func TestAPILeadLifecycle(t *testing.T) {
	api := newTestAPI(t)
	_, manager := api.signup("Mira Lee", crm.RoleManager)
	execID, exec := api.signup("Tom Vega", crm.RoleSalesExec)

	resp := api.post("/api/v1/leads", map[string]any{
		"name":     "Acme Corp",
		"email":    "sales@acme.test",
		"company":  "Acme",
		"value":    990000,
		"owner_id": execID,
	}, manager)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "/api/v1/leads/") {
		t.Fatalf("unexpected Location header: %q", loc)
	}
	created := decode[struct {
		Data crm.Lead `json:"data"`
	}](t, resp)
	leadID := created.Data.ID
	if created.Data.Status != crm.StatusNew {
		t.Fatalf("status should default to new, got %s", created.Data.Status)
	}

	// The new owner sees the assignment notification.
	resp = api.get("/api/v1/notifications", nil, exec)
	notes := decode[struct {
		Data   []crm.Notification `json:"data"`
		Unread int                `json:"unread"`
	}](t, resp)
	if notes.Unread != 1 || len(notes.Data) != 1 {
		t.Fatalf("expected one unread assignment notification, got %d/%d", len(notes.Data), notes.Unread)
	}

	resp = api.put("/api/v1/leads/"+leadID, map[string]any{"status": "contacted"}, exec)
	updated := decode[struct {
		Data crm.Lead `json:"data"`
	}](t, resp)
	if updated.Data.Status != crm.StatusContacted {
		t.Fatalf("status not updated: %s", updated.Data.Status)
	}

	// Creation entry plus the status change.
	resp = api.get("/api/v1/leads/"+leadID+"/activities", nil, exec)
	trail := decode[struct {
		Data       []crm.Activity `json:"data"`
		Pagination pagination     `json:"pagination"`
	}](t, resp)
	if trail.Pagination.Total != 2 {
		t.Fatalf("expected 2 activities, got %d", trail.Pagination.Total)
	}

	resp = api.post("/api/v1/notifications/"+notes.Data[0].ID+"/read", nil, exec)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected mark-read status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.delete("/api/v1/leads/"+leadID, manager)
	deleted := decode[struct {
		Data map[string]any `json:"data"`
	}](t, resp)
	if deleted.Data["deleted"] != true {
		t.Fatalf("unexpected delete payload: %v", deleted.Data)
	}

	resp = api.get("/api/v1/leads/"+leadID, nil, manager)
	expectErrorKind(t, resp, http.StatusNotFound, "not_found")
}

func TestAPILeadScopingForSalesExecutives(t *testing.T) {
	api := newTestAPI(t)
	_, manager := api.signup("Mira Lee", crm.RoleManager)
	aID, execA := api.signup("Tom Vega", crm.RoleSalesExec)
	_, execB := api.signup("Rin Park", crm.RoleSalesExec)

	resp := api.post("/api/v1/leads", map[string]any{
		"name":     "Northwind",
		"email":    "hello@northwind.test",
		"owner_id": aID,
	}, manager)
	created := decode[struct {
		Data crm.Lead `json:"data"`
	}](t, resp)

	// Another executive cannot read a foreign lead.
	resp = api.get("/api/v1/leads/"+created.Data.ID, nil, execB)
	expectErrorKind(t, resp, http.StatusForbidden, "forbidden")

	// An unknown id is not found, even for the forbidden caller.
	resp = api.get("/api/v1/leads/01JUNKJUNKJUNKJUNKJUNKJUNK", nil, execB)
	expectErrorKind(t, resp, http.StatusNotFound, "not_found")

	// Executives see only their own leads in lists.
	resp = api.get("/api/v1/leads", nil, execB)
	listB := decode[struct {
		Data       []crm.Lead `json:"data"`
		Pagination pagination `json:"pagination"`
	}](t, resp)
	if listB.Pagination.Total != 0 {
		t.Fatalf("exec B should see no leads, got %d", listB.Pagination.Total)
	}
	resp = api.get("/api/v1/leads", nil, execA)
	listA := decode[struct {
		Data       []crm.Lead `json:"data"`
		Pagination pagination `json:"pagination"`
	}](t, resp)
	if listA.Pagination.Total != 1 {
		t.Fatalf("exec A should see one lead, got %d", listA.Pagination.Total)
	}
}

func TestAPIListFilterByOwner(t *testing.T) {
	api := newTestAPI(t)
	_, manager := api.signup("Mira Lee", crm.RoleManager)
	aID, execA := api.signup("Tom Vega", crm.RoleSalesExec)
	bID, _ := api.signup("Rin Park", crm.RoleSalesExec)

	for owner, email := range map[string]string{aID: "a@corp.test", bID: "b@corp.test", "": "c@corp.test"} {
		resp := api.post("/api/v1/leads", map[string]any{
			"name":     "Lead " + email,
			"email":    email,
			"owner_id": owner,
		}, manager)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed lead for %q: status %d", owner, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := api.get("/api/v1/leads", url.Values{"owner_id": {aID}}, manager)
	list := decode[struct {
		Data       []crm.Lead `json:"data"`
		Pagination pagination `json:"pagination"`
	}](t, resp)
	if list.Pagination.Total != 1 || list.Data[0].OwnerID != aID {
		t.Fatalf("owner filter not applied: %+v", list)
	}

	// A sales executive cannot widen their scope with the filter.
	resp = api.get("/api/v1/leads", url.Values{"owner_id": {bID}}, execA)
	scoped := decode[struct {
		Data       []crm.Lead `json:"data"`
		Pagination pagination `json:"pagination"`
	}](t, resp)
	if scoped.Pagination.Total != 1 || scoped.Data[0].OwnerID != aID {
		t.Fatalf("executive scope must override the filter: %+v", scoped)
	}
}

func TestAPIListPaginationAndValidation(t *testing.T) {
	api := newTestAPI(t)
	_, admin := api.signup("Root Admin", crm.RoleAdmin)

	for i := 0; i < 5; i++ {
		resp := api.post("/api/v1/leads", map[string]any{
			"name":  fmt.Sprintf("Lead %02d", i),
			"email": fmt.Sprintf("lead%02d@corp.test", i),
		}, admin)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed lead %d: status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := api.get("/api/v1/leads", url.Values{"limit": {"2"}, "page": {"2"}}, admin)
	list := decode[struct {
		Data       []crm.Lead `json:"data"`
		Pagination pagination `json:"pagination"`
	}](t, resp)
	if len(list.Data) != 2 {
		t.Fatalf("expected 2 rows on page 2, got %d", len(list.Data))
	}
	p := list.Pagination
	if p.Total != 5 || p.Page != 2 || p.Limit != 2 || p.Pages != 3 {
		t.Fatalf("unexpected pagination: %+v", p)
	}

	resp = api.get("/api/v1/leads", url.Values{"page": {"zero"}}, admin)
	expectErrorKind(t, resp, http.StatusBadRequest, "validation_failed")

	resp = api.get("/api/v1/leads", url.Values{"limit": {"9999"}}, admin)
	expectErrorKind(t, resp, http.StatusBadRequest, "validation_failed")

	// Unknown body fields are rejected.
	resp = api.post("/api/v1/leads", map[string]any{
		"name":  "X",
		"email": "x@y.test",
		"bogus": true,
	}, admin)
	expectErrorKind(t, resp, http.StatusBadRequest, "validation_failed")

	// Duplicate user email is a conflict.
	resp = api.post("/api/v1/auth/register", map[string]any{
		"name":     "Root Again",
		"email":    "root.admin@leadline.test",
		"password": "hunter22",
	}, nil)
	expectErrorKind(t, resp, http.StatusConflict, "conflict")
}

func TestAPIActivitiesAndModeration(t *testing.T) {
	api := newTestAPI(t)
	_, manager := api.signup("Mira Lee", crm.RoleManager)
	execID, exec := api.signup("Tom Vega", crm.RoleSalesExec)

	resp := api.post("/api/v1/leads", map[string]any{
		"name":     "Globex",
		"email":    "ops@globex.test",
		"owner_id": execID,
	}, manager)
	lead := decode[struct {
		Data crm.Lead `json:"data"`
	}](t, resp)

	resp = api.post("/api/v1/leads/"+lead.Data.ID+"/activities", map[string]any{
		"type":        "call",
		"description": "intro call, asked for a quote",
	}, exec)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected add-activity status: %d", resp.StatusCode)
	}
	act := decode[struct {
		Data crm.Activity `json:"data"`
	}](t, resp)

	// The author edits their own entry.
	resp = api.put("/api/v1/activities/"+act.Data.ID, map[string]any{
		"description": "intro call, quote sent",
	}, exec)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("author edit rejected: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A manager-authored entry is off limits to the executive.
	resp = api.post("/api/v1/leads/"+lead.Data.ID+"/activities", map[string]any{
		"description": "pricing approved",
	}, manager)
	managerAct := decode[struct {
		Data crm.Activity `json:"data"`
	}](t, resp)

	resp = api.put("/api/v1/activities/"+managerAct.Data.ID, map[string]any{
		"description": "tampered",
	}, exec)
	expectErrorKind(t, resp, http.StatusForbidden, "forbidden")

	// Managers moderate anyone's entries.
	resp = api.delete("/api/v1/activities/"+act.Data.ID, manager)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("moderator delete rejected: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPINotificationsReadAll(t *testing.T) {
	api := newTestAPI(t)
	_, manager := api.signup("Mira Lee", crm.RoleManager)
	execID, exec := api.signup("Tom Vega", crm.RoleSalesExec)

	for i := 0; i < 3; i++ {
		resp := api.post("/api/v1/leads", map[string]any{
			"name":     fmt.Sprintf("Lead %d", i),
			"email":    fmt.Sprintf("l%d@corp.test", i),
			"owner_id": execID,
		}, manager)
		resp.Body.Close()
	}

	resp := api.get("/api/v1/notifications", url.Values{"unread_only": {"true"}}, exec)
	notes := decode[struct {
		Data   []crm.Notification `json:"data"`
		Unread int                `json:"unread"`
	}](t, resp)
	if notes.Unread != 3 {
		t.Fatalf("expected 3 unread, got %d", notes.Unread)
	}

	resp = api.post("/api/v1/notifications/read-all", nil, exec)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected read-all status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/api/v1/notifications", url.Values{"unread_only": {"true"}}, exec)
	notes = decode[struct {
		Data   []crm.Notification `json:"data"`
		Unread int                `json:"unread"`
	}](t, resp)
	if notes.Unread != 0 || len(notes.Data) != 0 {
		t.Fatalf("expected no unread after read-all, got %d/%d", len(notes.Data), notes.Unread)
	}

	// Another user's notification id is invisible to the manager.
	resp = api.get("/api/v1/notifications", nil, exec)
	all := decode[struct {
		Data []crm.Notification `json:"data"`
	}](t, resp)
	resp = api.post("/api/v1/notifications/"+all.Data[0].ID+"/read", nil, manager)
	expectErrorKind(t, resp, http.StatusForbidden, "forbidden")
}

func TestAPIDashboardStats(t *testing.T) {
	api := newTestAPI(t)
	_, admin := api.signup("Root Admin", crm.RoleAdmin)
	execID, exec := api.signup("Tom Vega", crm.RoleSalesExec)

	resp := api.post("/api/v1/leads", map[string]any{
		"name": "A", "email": "a@x.test", "value": 1000, "owner_id": execID,
	}, admin)
	resp.Body.Close()
	resp = api.post("/api/v1/leads", map[string]any{
		"name": "B", "email": "b@x.test", "value": 2500,
	}, admin)
	resp.Body.Close()

	resp = api.get("/api/v1/dashboard/stats", nil, admin)
	adminStats := decode[struct {
		Data crm.Stats `json:"data"`
	}](t, resp)
	if adminStats.Data.TotalLeads != 2 || adminStats.Data.TotalValue != 3500 {
		t.Fatalf("unexpected admin stats: %+v", adminStats.Data)
	}
	if len(adminStats.Data.LeadsByOwner) == 0 {
		t.Fatalf("admin stats should break down by owner")
	}

	resp = api.get("/api/v1/dashboard/stats", nil, exec)
	execStats := decode[struct {
		Data crm.Stats `json:"data"`
	}](t, resp)
	if execStats.Data.TotalLeads != 1 || execStats.Data.TotalValue != 1000 {
		t.Fatalf("exec stats should be scoped: %+v", execStats.Data)
	}
	if len(execStats.Data.LeadsByOwner) != 0 {
		t.Fatalf("exec stats should not include the owner breakdown")
	}
}

func TestAPIEventStreamDeliversBroadcasts(t *testing.T) {
	api := newTestAPI(t)
	_, manager := api.signup("Mira Lee", crm.RoleManager)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", manager["Authorization"])
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if !strings.HasPrefix(first, ":") {
		t.Fatalf("expected comment greeting, got %q", first)
	}

	create := api.post("/api/v1/leads", map[string]any{
		"name":  "Stream Co",
		"email": "live@stream.test",
	}, manager)
	create.Body.Close()

	var sawCreated bool
	for !sawCreated {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if strings.TrimSpace(line) == "event: lead.created" {
			sawCreated = true
		}
	}
}

func TestAPIHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	health := decode[map[string]any](t, resp)
	if health["status"] != "ok" || health["service"] != "leadline-api" {
		t.Fatalf("unexpected healthz payload: %v", health)
	}

	resp = api.get("/readyz", nil, nil)
	ready := decode[map[string]any](t, resp)
	if ready["status"] != "ready" {
		t.Fatalf("unexpected readyz payload: %v", ready)
	}

	resp = api.get("/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics not public: %d", resp.StatusCode)
	}
	resp.Body.Close()
}
