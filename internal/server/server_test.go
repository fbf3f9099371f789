package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"qualgate/internal/config"
	"qualgate/internal/db"
	"qualgate/internal/domain"
	"qualgate/internal/engine"
	"qualgate/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	if err := e.SeedCatalog(context.Background()); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func actorHeaders() map[string]string {
	return map[string]string{"X-Actor-Id": "tester"}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/materials", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/materials", nil, map[string]string{"X-Api-Key": "bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown api key, got %d", res.StatusCode)
	}

	// health is open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must not require auth, got %d", res.StatusCode)
	}

	// a signed bearer token works
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "tester",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}
	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/materials", nil, map[string]string{"Authorization": "Bearer " + signed})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d: %s", res.StatusCode, string(body))
	}
}

func TestMaterialApprovalFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/suppliers", map[string]any{
		"name": "Acme Crates",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create supplier: %d %s", res.StatusCode, string(data))
	}
	var supplier domain.Supplier
	_ = json.Unmarshal(data, &supplier)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/suppliers/"+supplier.ID+"/status", map[string]any{
		"status": "approved",
	}, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve supplier: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/materials", map[string]any{
		"name":     "Crate",
		"category": "Packaging",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create material: %d %s", res.StatusCode, string(data))
	}
	var material domain.Material
	_ = json.Unmarshal(data, &material)

	// approval is blocked outright before a supplier is linked
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/materials/"+material.ID+"/approve", nil, actorHeaders())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 while blocked, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "approval_blocked" {
		t.Fatalf("error code %q: %s", envelope.Error.Code, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/materials/"+material.ID+"/suppliers", map[string]any{
		"supplier_id": supplier.ID,
	}, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("link supplier: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/materials/"+material.ID+"/checks", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("checks: %d %s", res.StatusCode, string(data))
	}
	var eval EvaluationResponse
	if err := json.Unmarshal(data, &eval); err != nil {
		t.Fatalf("unmarshal evaluation: %v", err)
	}
	if eval.Summary.IsBlocked {
		t.Fatalf("unexpected blocked state: %s", string(data))
	}
	if eval.Summary.CanFullApprove {
		t.Fatalf("GL account missing must prevent full approval: %s", string(data))
	}

	// full approval rejected, conditional allowed
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/materials/"+material.ID+"/approve", nil, actorHeaders())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 not eligible, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/materials/"+material.ID+"/conditional-approve", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("conditional approve: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &material)
	if material.Status != domain.StatusConditional || material.ConditionalExpiresAt == nil {
		t.Fatalf("conditional state: %s", string(data))
	}

	// clear the important gap and fully approve
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/materials/"+material.ID, map[string]any{
		"gl_account_id": "4010",
	}, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch material: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/materials/"+material.ID+"/approve", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &material)
	if material.Status != domain.StatusApproved {
		t.Fatalf("status %s", material.Status)
	}
}

func TestWorkQueueEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	review := time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/suppliers", map[string]any{
		"name":             "Acme Chemicals",
		"next_review_date": review,
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create supplier: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/work-queue?type=supplier_review", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("work queue: %d %s", res.StatusCode, string(data))
	}
	var queueResp WorkQueueResponse
	if err := json.Unmarshal(data, &queueResp); err != nil {
		t.Fatalf("unmarshal queue: %v", err)
	}
	if queueResp.Total != 1 || queueResp.Items[0].Type != "supplier_review" {
		t.Fatalf("expected one supplier review item: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/work-queue/summary", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary: %d %s", res.StatusCode, string(data))
	}
	var summary struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal(data, &summary)
	if summary.Total == 0 {
		t.Fatalf("summary must count the review item: %s", string(data))
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/materials/nope", nil, actorHeaders())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code %q: %s", envelope.Error.Code, string(data))
	}
}
