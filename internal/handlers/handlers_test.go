package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/alerts/adapters"
	"github.com/alertdeck/alertdeck/internal/middleware"
	"github.com/alertdeck/alertdeck/internal/rules"
	"github.com/alertdeck/alertdeck/internal/workers"
)

type collectingSink struct {
	mu     sync.Mutex
	alerts []alerts.CanonicalAlert
	done   chan struct{}
}

func newCollectingSink(expected int) *collectingSink {
	return &collectingSink{done: make(chan struct{}, expected)}
}

func (s *collectingSink) Process(_ context.Context, alert alerts.CanonicalAlert) error {
	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *collectingSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert processing")
	}
}

const grafanaBody = `{
	"status": "firing",
	"alerts": [{
		"status": "firing",
		"labels": {"alertname": "HighCPU", "instance": "db-1"},
		"annotations": {"summary": "CPU above 95%"},
		"fingerprint": "fp-1"
	}]
}`

func newAlertMux(t *testing.T, sink Sink) *http.ServeMux {
	t.Helper()
	pool := workers.NewPool(2, 8)
	t.Cleanup(pool.Stop)

	h := NewAlertHandler(pool, sink, "grafana")
	h.RegisterAdapter(adapters.NewWebhookAdapter("grafana", nil))
	h.RegisterAdapter(adapters.NewSNSAdapter())

	mux := http.NewServeMux()
	h.SetupRoutes(mux)
	return mux
}

func TestHandleWebhook_QueuesAndReturns200(t *testing.T) {
	sink := newCollectingSink(1)
	mux := newAlertMux(t, sink)

	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(grafanaBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !resp["received"] {
		t.Errorf("expected received:true, got %s", rec.Body.String())
	}

	sink.wait(t)
	if len(sink.alerts) != 1 || sink.alerts[0].AlertID != "fp-1" {
		t.Errorf("unexpected processed alerts: %+v", sink.alerts)
	}
}

func TestHandleWebhook_SourceInPath(t *testing.T) {
	sink := newCollectingSink(1)
	mux := newAlertMux(t, sink)

	body := `{"Type":"Notification","Subject":"CloudWatch Alarm","Message":"{\"AlarmName\":\"HighCPU\",\"NewStateValue\":\"ALARM\"}"}`
	req := httptest.NewRequest(http.MethodPost, "/alerts/sns", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	sink.wait(t)
	if len(sink.alerts) != 1 || sink.alerts[0].Source != "sns" {
		t.Errorf("expected sns alert, got %+v", sink.alerts)
	}
}

func TestHandleWebhook_UnknownSource(t *testing.T) {
	mux := newAlertMux(t, newCollectingSink(0))

	req := httptest.NewRequest(http.MethodPost, "/alerts/pagerduty", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown source, got %d", rec.Code)
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	mux := newAlertMux(t, newCollectingSink(0))

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleWebhook_MalformedPayloadStillReturns200(t *testing.T) {
	mux := newAlertMux(t, newCollectingSink(0))

	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 even for malformed payloads, got %d", rec.Code)
	}
}

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}

func newConfigMux(t *testing.T, service *rules.Service) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewConfigHandler(service).SetupRoutes(mux)
	return mux
}

func bootstrapService(t *testing.T, path string) *rules.Service {
	t.Helper()
	service := rules.NewService(path, nil)
	if err := service.Bootstrap(); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	return service
}

func TestGetConfig(t *testing.T) {
	path := writeRulesFile(t, "HighCPU:\n  channelId: \"C123\"\n")
	mux := newConfigMux(t, bootstrapService(t, path))

	req := httptest.NewRequest(http.MethodGet, "/get-config", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Config map[string]rules.Rule `json:"config"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid config body: %v", err)
	}
	if resp.Config["HighCPU"].ChannelID != "C123" {
		t.Errorf("unexpected config %+v", resp.Config)
	}
}

func TestReload_AppliesFileChanges(t *testing.T) {
	path := writeRulesFile(t, "HighCPU:\n  channelId: \"C123\"\n")
	service := bootstrapService(t, path)
	mux := newConfigMux(t, service)

	if err := os.WriteFile(path, []byte("HighCPU:\n  channelId: \"C456\"\nDiskFull:\n  channelId: \"C789\"\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite rules file: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK      bool `json:"ok"`
		Entries int  `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid reload response: %v", err)
	}
	if !resp.OK || resp.Entries != 2 {
		t.Errorf("expected ok with 2 entries, got %s", rec.Body.String())
	}
	rule, ok := service.Lookup("DiskFull")
	if !ok || rule.ChannelID != "C789" {
		t.Errorf("expected reloaded rule, got %+v (ok=%v)", rule, ok)
	}
}

func TestReload_BadFileKeepsOldConfig(t *testing.T) {
	path := writeRulesFile(t, "HighCPU:\n  channelId: \"C123\"\n")
	service := bootstrapService(t, path)
	mux := newConfigMux(t, service)

	if err := os.WriteFile(path, []byte("HighCPU: [broken\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite rules file: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for a broken file, got %d", rec.Code)
	}
	if _, ok := service.Lookup("HighCPU"); !ok {
		t.Error("expected old config to stay active after a failed reload")
	}
}

func TestPushConfig_AppliesValidConfig(t *testing.T) {
	path := writeRulesFile(t, "HighCPU:\n  channelId: \"C123\"\n")
	service := bootstrapService(t, path)
	mux := newConfigMux(t, service)

	body := `{"DiskFull": {"channelId": "C789", "mentions": ["U1"]}}`
	req := httptest.NewRequest(http.MethodPost, "/push-config", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rule, ok := service.Lookup("DiskFull")
	if !ok || rule.ChannelID != "C789" {
		t.Errorf("expected pushed rule applied, got %+v (ok=%v)", rule, ok)
	}
}

func TestPushConfig_ValidationErrorIs400(t *testing.T) {
	path := writeRulesFile(t, "HighCPU:\n  channelId: \"C123\"\n")
	mux := newConfigMux(t, bootstrapService(t, path))

	// Missing channelId.
	body := `{"DiskFull": {"mentions": ["U1"]}}`
	req := httptest.NewRequest(http.MethodPost, "/push-config", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid config, got %d", rec.Code)
	}
}

type failingStore struct{}

func (failingStore) LoadConfig() (map[string]interface{}, error) { return nil, nil }
func (failingStore) SaveConfig(map[string]interface{}) error {
	return errors.New("database down")
}

func TestPushConfig_PersistFailureIs500(t *testing.T) {
	path := writeRulesFile(t, "HighCPU:\n  channelId: \"C123\"\n")
	service := rules.NewService(path, failingStore{})
	// Bootstrap fails on SaveConfig too; seed the cache from the file
	// directly via reload.
	if _, err := service.ReloadFromFile(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	mux := newConfigMux(t, service)

	body := `{"DiskFull": {"channelId": "C789"}}`
	req := httptest.NewRequest(http.MethodPost, "/push-config", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for persist failure, got %d", rec.Code)
	}
	if _, ok := service.Lookup("DiskFull"); ok {
		t.Error("expected failed push to leave the cache unchanged")
	}
}

func TestGuides_NoDatabaseIs503(t *testing.T) {
	mux := http.NewServeMux()
	NewGuideHandler().SetupRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/troubleshooting-guide?alertType=HighCPU", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a database, got %d", rec.Code)
	}
}

func newAuthMux(t *testing.T) (*http.ServeMux, *middleware.JWTAuthMiddleware) {
	t.Helper()
	hash, err := middleware.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	jwtAuth := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
	})
	mux := http.NewServeMux()
	NewAuthHandler(jwtAuth).SetupRoutes(mux)
	return mux, jwtAuth
}

func TestLogin_Success(t *testing.T) {
	mux, jwtAuth := newAuthMux(t)

	body := `{"username": "admin", "password": "hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid login response: %v", err)
	}
	if _, err := jwtAuth.ValidateToken(resp.Token); err != nil {
		t.Errorf("issued token does not validate: %v", err)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	mux, _ := newAuthMux(t)

	body := `{"username": "admin", "password": "wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	NewHTTPHandler(nil, nil, nil, nil).SetupRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got '%s'", resp["status"])
	}
}
