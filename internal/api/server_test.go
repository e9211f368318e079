package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kioskfleet/fleet-core/internal/auth"
	"github.com/kioskfleet/fleet-core/internal/device"
	"github.com/kioskfleet/fleet-core/internal/heartbeat"
	"github.com/kioskfleet/fleet-core/internal/hub"
	"github.com/kioskfleet/fleet-core/internal/infrastructure/config"
	"github.com/kioskfleet/fleet-core/internal/infrastructure/logging"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// setupTestDB creates an in-memory SQLite database with the fleet schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE device_groups (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			parent_id   TEXT REFERENCES device_groups(id) ON DELETE SET NULL,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE devices (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			device_type    TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'offline',
			group_id       TEXT REFERENCES device_groups(id) ON DELETE SET NULL,
			location       TEXT NOT NULL DEFAULT '{}',
			hardware_info  TEXT NOT NULL DEFAULT '{}',
			software_info  TEXT NOT NULL DEFAULT '{}',
			network_info   TEXT NOT NULL DEFAULT '{}',
			last_seen      TEXT,
			last_heartbeat TEXT,
			created_by     TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE device_logs (
			id        TEXT PRIMARY KEY,
			device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			level     TEXT NOT NULL,
			message   TEXT NOT NULL,
			category  TEXT,
			metadata  TEXT,
			timestamp TEXT NOT NULL
		) STRICT;
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// testServer creates a Server backed by in-memory SQLite with a running hub.
func testServer(t *testing.T) (*Server, device.Repository) {
	t.Helper()
	return testServerWithNotifier(t, nil)
}

// testServerWithNotifier is testServer with a caller-supplied status
// notifier (nil falls back to the hub).
func testServerWithNotifier(t *testing.T, notifier device.Notifier) (*Server, device.Repository) {
	t.Helper()

	db := setupTestDB(t)
	repo := device.NewSQLiteRepository(db)
	groups := device.NewSQLiteGroupRepository(db)
	cache := device.NewStatusCache(time.Minute)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	h := hub.New(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	pipeline := heartbeat.NewPipeline(heartbeat.Config{
		Repository: repo,
		Cache:      cache,
		Notifier:   h,
		Logger:     log,
	})

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 15,
			},
		},
		Logger:   log,
		Repo:     repo,
		Groups:   groups,
		Cache:    cache,
		Pipeline: pipeline,
		Hub:      h,
		Notifier: notifier,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, repo
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateAccessToken("admin-user", auth.RoleAdmin, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

func viewerToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateAccessToken("viewer-user", auth.RoleViewer, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

func deviceToken(t *testing.T, deviceID string) string {
	t.Helper()
	token, err := auth.GenerateDeviceToken(deviceID, testJWTSecret, 365)
	if err != nil {
		t.Fatalf("GenerateDeviceToken: %v", err)
	}
	return token
}

// doRequest executes an authenticated request against the router.
func doRequest(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedDevice(t *testing.T, repo device.Repository, id string, status device.Status) {
	t.Helper()

	d := &device.Device{
		ID:     id,
		Name:   "Test " + id,
		Type:   device.DeviceTypeKiosk,
		Status: status,
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("seed device %s: %v", id, err)
	}
	if status != device.StatusOffline {
		if err := repo.SetStatus(context.Background(), id, status); err != nil {
			t.Fatalf("seed status %s: %v", id, err)
		}
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodGet, "/api/v1/health", "", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodGet, "/api/v1/health", "", "")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestAuth_MissingToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices", "", "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices", "not-a-token", "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuth_ViewerCannotCreateDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"device_id": "KIOSK-100", "name": "Lobby Kiosk", "device_type": "kiosk"}`
	w := doRequest(t, router, http.MethodPost, "/api/v1/devices", viewerToken(t), body)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAuth_DeviceCannotListDevices(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices", deviceToken(t, "KIOSK-001"), "")

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// ─── Device CRUD Tests ─────────────────────────────────────────────

func TestListDevices_Empty(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices", viewerToken(t), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if int(resp["count"].(float64)) != 0 {
		t.Errorf("count = %v, want 0", resp["count"])
	}
}

func TestCreateAndGetDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{
		"device_id": "KIOSK-001",
		"name": "Lobby Kiosk",
		"device_type": "kiosk",
		"status": "online",
		"location": {"site": "HQ", "floor": 1}
	}`

	w := doRequest(t, router, http.MethodPost, "/api/v1/devices", adminToken(t), body)

	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created device.Device
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}

	// Posted status is ignored; devices always start offline.
	if created.Status != device.StatusOffline {
		t.Errorf("status = %q, want %q", created.Status, device.StatusOffline)
	}
	if created.CreatedBy != "admin-user" {
		t.Errorf("created_by = %q, want admin-user", created.CreatedBy)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/devices/KIOSK-001", viewerToken(t), "")

	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
	}

	var got device.Device
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal got: %v", err)
	}

	if got.Name != "Lobby Kiosk" {
		t.Errorf("name = %q, want %q", got.Name, "Lobby Kiosk")
	}
	if got.Location["site"] != "HQ" {
		t.Errorf("location.site = %v, want HQ", got.Location["site"])
	}
}

func TestCreateDevice_Duplicate(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)

	body := `{"device_id": "KIOSK-001", "name": "Duplicate", "device_type": "kiosk"}`
	w := doRequest(t, router, http.MethodPost, "/api/v1/devices", adminToken(t), body)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestCreateDevice_InvalidID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"device_id": "bad id with spaces", "name": "Bad", "device_type": "kiosk"}`
	w := doRequest(t, router, http.MethodPost, "/api/v1/devices", adminToken(t), body)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices/nonexistent", viewerToken(t), "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateDevice_ProtectedFields(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)

	// Attempt to rename and smuggle a status change in one request.
	body := `{"name": "Renamed", "status": "error"}`
	w := doRequest(t, router, http.MethodPatch, "/api/v1/devices/KIOSK-001", adminToken(t), body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var updated device.Device
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if updated.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", updated.Name)
	}
	if updated.Status != device.StatusOnline {
		t.Errorf("status = %q, want %q (status must not change via PATCH)", updated.Status, device.StatusOnline)
	}
}

func TestDeleteDevice(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)

	w := doRequest(t, router, http.MethodDelete, "/api/v1/devices/KIOSK-001", adminToken(t), "")

	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/devices/KIOSK-001", viewerToken(t), "")

	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListDevices_FilterByStatus(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)
	seedDevice(t, repo, "KIOSK-002", device.StatusOffline)

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices?status=online", viewerToken(t), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if int(resp["count"].(float64)) != 1 {
		t.Errorf("count = %v, want 1", resp["count"])
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/devices?status=sideways", viewerToken(t), "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid filter status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestFleetStats(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)
	seedDevice(t, repo, "KIOSK-002", device.StatusOffline)

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices/stats", viewerToken(t), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var stats fleetStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	if stats.ByStatus[device.StatusOnline] != 1 {
		t.Errorf("by_status[online] = %d, want 1", stats.ByStatus[device.StatusOnline])
	}
}

// ─── Heartbeat Tests ───────────────────────────────────────────────

func TestHeartbeat_PromotesOffline(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)

	body := `{"hardware_info": {"cpu_temp": 54}}`
	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/KIOSK-001/heartbeat",
		deviceToken(t, "KIOSK-001"), body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var result heartbeat.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if result.Status != device.StatusOnline {
		t.Errorf("status = %q, want %q", result.Status, device.StatusOnline)
	}
	if !result.Changed {
		t.Error("expected Changed = true for offline -> online")
	}
}

func TestHeartbeat_DeviceTokenScoped(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)
	seedDevice(t, repo, "KIOSK-002", device.StatusOffline)

	// KIOSK-002's token must not post for KIOSK-001.
	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/KIOSK-001/heartbeat",
		deviceToken(t, "KIOSK-002"), `{}`)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestHeartbeat_UnknownDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/GHOST-001/heartbeat",
		adminToken(t), `{}`)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHeartbeat_ViewerForbidden(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)

	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/KIOSK-001/heartbeat",
		viewerToken(t), `{}`)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// ─── Status Tests ──────────────────────────────────────────────────

func TestGetStatus_CacheMissThenHit(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)

	// A heartbeat populates the cache via the pipeline.
	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/KIOSK-001/heartbeat",
		deviceToken(t, "KIOSK-001"), `{}`)
	if w.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d; body: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/devices/KIOSK-001/status", viewerToken(t), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Status != device.StatusOnline {
		t.Errorf("status = %q, want %q", resp.Status, device.StatusOnline)
	}
	if resp.Source != "cache" {
		t.Errorf("source = %q, want cache", resp.Source)
	}
}

func TestGetStatus_FallsBackToStore(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusMaintenance)

	// Nothing in the cache for this device; it must read the store.
	w := doRequest(t, router, http.MethodGet, "/api/v1/devices/KIOSK-001/status", viewerToken(t), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Status != device.StatusMaintenance {
		t.Errorf("status = %q, want %q", resp.Status, device.StatusMaintenance)
	}
	if resp.Source != "store" {
		t.Errorf("source = %q, want store", resp.Source)
	}
}

func TestSetStatus_Override(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)

	w := doRequest(t, router, http.MethodPut, "/api/v1/devices/KIOSK-001/status",
		adminToken(t), `{"status": "maintenance"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	dev, err := repo.GetByID(context.Background(), "KIOSK-001")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if dev.Status != device.StatusMaintenance {
		t.Errorf("stored status = %q, want %q", dev.Status, device.StatusMaintenance)
	}
}

// recordingNotifier captures status changes delivered by the server.
type recordingNotifier struct {
	mu      sync.Mutex
	changes []device.StatusChange
}

func (n *recordingNotifier) DeviceStatusChanged(change device.StatusChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) all() []device.StatusChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]device.StatusChange(nil), n.changes...)
}

func TestSetStatus_NotifiesConfiguredNotifier(t *testing.T) {
	notifier := &recordingNotifier{}
	srv, repo := testServerWithNotifier(t, notifier)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)

	w := doRequest(t, router, http.MethodPut, "/api/v1/devices/KIOSK-001/status",
		adminToken(t), `{"status": "maintenance"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	changes := notifier.all()
	if len(changes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(changes))
	}
	if changes[0].DeviceID != "KIOSK-001" || changes[0].Status != device.StatusMaintenance {
		t.Errorf("notified %q/%q, want KIOSK-001/maintenance",
			changes[0].DeviceID, changes[0].Status)
	}

	// Setting the same status again is not a change and must not notify.
	w = doRequest(t, router, http.MethodPut, "/api/v1/devices/KIOSK-001/status",
		adminToken(t), `{"status": "maintenance"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := len(notifier.all()); got != 1 {
		t.Errorf("notifications after no-op override = %d, want 1", got)
	}
}

func TestSetStatus_InvalidValue(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)

	w := doRequest(t, router, http.MethodPut, "/api/v1/devices/KIOSK-001/status",
		adminToken(t), `{"status": "sideways"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSetStatus_ViewerForbidden(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)

	w := doRequest(t, router, http.MethodPut, "/api/v1/devices/KIOSK-001/status",
		viewerToken(t), `{"status": "maintenance"}`)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// ─── Log Tests ─────────────────────────────────────────────────────

func TestListLogs(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)

	body := `{"logs": [
		{"level": "error", "message": "screen blanked"},
		{"level": "info", "message": "heartbeat ok"}
	]}`
	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/KIOSK-001/heartbeat",
		deviceToken(t, "KIOSK-001"), body)
	if w.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d; body: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/devices/KIOSK-001/logs", viewerToken(t), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}

	// Level filter
	w = doRequest(t, router, http.MethodGet, "/api/v1/devices/KIOSK-001/logs?level=error", viewerToken(t), "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("error count = %v, want 1", resp["count"])
	}
}

func TestListLogs_UnknownDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices/GHOST-001/logs", viewerToken(t), "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListLogs_BadLimit(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)

	w := doRequest(t, router, http.MethodGet, "/api/v1/devices/KIOSK-001/logs?limit=-5", viewerToken(t), "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Group Tests ───────────────────────────────────────────────────

func TestGroupCRUD(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()

	body := `{"id": "grp-lobby", "name": "Lobby Kiosks"}`
	w := doRequest(t, router, http.MethodPost, "/api/v1/groups", adminToken(t), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	// Duplicate ID conflicts.
	w = doRequest(t, router, http.MethodPost, "/api/v1/groups", adminToken(t), body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want %d", w.Code, http.StatusConflict)
	}

	seedDevice(t, repo, "KIOSK-001", device.StatusOffline)
	groupID := "grp-lobby"
	dev, err := repo.GetByID(context.Background(), "KIOSK-001")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	dev.GroupID = &groupID
	if err := repo.Update(context.Background(), dev); err != nil {
		t.Fatalf("Update: %v", err)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/groups/grp-lobby", viewerToken(t), "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("member count = %v, want 1", resp["count"])
	}

	// Rename
	w = doRequest(t, router, http.MethodPatch, "/api/v1/groups/grp-lobby", adminToken(t), `{"name": "Lobby"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// Delete detaches the device, not deletes it.
	w = doRequest(t, router, http.MethodDelete, "/api/v1/groups/grp-lobby", adminToken(t), "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	dev, err = repo.GetByID(context.Background(), "KIOSK-001")
	if err != nil {
		t.Fatalf("GetByID after group delete: %v", err)
	}
	if dev.GroupID != nil {
		t.Errorf("group_id = %v, want nil after group delete", *dev.GroupID)
	}
}

func TestGroupUpdate_CycleRejected(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodPost, "/api/v1/groups", adminToken(t),
		`{"id": "grp-a", "name": "A"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create A = %d; body: %s", w.Code, w.Body.String())
	}
	w = doRequest(t, router, http.MethodPost, "/api/v1/groups", adminToken(t),
		`{"id": "grp-b", "name": "B", "parent_id": "grp-a"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create B = %d; body: %s", w.Code, w.Body.String())
	}

	// Reparenting A under B would form a cycle.
	w = doRequest(t, router, http.MethodPatch, "/api/v1/groups/grp-a", adminToken(t),
		`{"parent_id": "grp-b"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("cycle status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestGroup_ViewerCannotManage(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodPost, "/api/v1/groups", viewerToken(t),
		`{"id": "grp-a", "name": "A"}`)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// ─── Command Tests ─────────────────────────────────────────────────

func TestListCommands_NoAuth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodGet, "/api/v1/commands", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) == 0 {
		t.Error("expected a non-empty command catalog")
	}
}

func TestDispatchCommand_NotConnected(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)

	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/KIOSK-001/command",
		adminToken(t), `{"command": "restart"}`)

	// Dropped silently: accepted but not queued, never spooled.
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var resp struct {
		Queued bool `json:"queued"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Queued {
		t.Error("queued = true, want false for a device with no connection")
	}
}

func TestDispatchCommand_UnknownCommand(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.buildRouter()
	seedDevice(t, repo, "KIOSK-001", device.StatusOnline)

	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/KIOSK-001/command",
		adminToken(t), `{"command": "self_destruct"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDispatchCommand_UnknownDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodPost, "/api/v1/devices/GHOST-001/command",
		adminToken(t), `{"command": "restart"}`)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
