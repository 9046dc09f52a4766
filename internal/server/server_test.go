package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/orbitlabs/orbit-cli/internal/manifest"
	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/settings"
)

func newTestServer(t *testing.T, appJSON string) *Server {
	t.Helper()

	projectRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(projectRoot, "app.json"), []byte(appJSON), 0644); err != nil {
		t.Fatal(err)
	}

	store := settings.NewStoreWithDir(t.TempDir())
	builder := manifest.NewBuilder(store, project.NewLoader(projectRoot), "1.0.0")
	service := manifest.NewService(builder, manifest.NewSigner(nil))
	return New(store, service, projectRoot)
}

func TestManifestEndpoint(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"name": "Demo", "slug": "demo", "sdkVersion": "40.0.0"}}`)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/", nil)
	req.Header.Set("Exponent-Platform", "android")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var hostInfo manifest.HostInfo
	if err := json.Unmarshal([]byte(rec.Header().Get("Exponent-Server")), &hostInfo); err != nil {
		t.Fatalf("Exponent-Server header is not valid JSON: %v", err)
	}
	if hostInfo.Server != "orbit-cli" {
		t.Errorf("Exponent-Server.server = %q", hostInfo.Server)
	}

	doc := gjson.Parse(rec.Body.String())
	if got := doc.Get("bundleUrl").String(); !strings.Contains(got, "platform=android") {
		t.Errorf("bundleUrl = %q, want android platform", got)
	}
	if got := doc.Get("hostUri").String(); got != "127.0.0.1:80" {
		t.Errorf("hostUri = %q", got)
	}
}

func TestManifestEndpointSignatureRequested(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"slug": "demo", "sdkVersion": "40.0.0"}}`)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/manifest", nil)
	req.Header.Set("Exponent-Accept-Signature", "true")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	// Anonymous sessions serve the UNSIGNED wrapper.
	doc := gjson.Parse(rec.Body.String())
	if got := doc.Get("signature").String(); got != manifest.UnsignedSignature {
		t.Errorf("signature = %q, want %q", got, manifest.UnsignedSignature)
	}
	inner := gjson.Parse(doc.Get("manifestString").String())
	if got := inner.Get("slug").String(); got != "demo" {
		t.Errorf("wrapped manifest slug = %q", got)
	}
}

func TestUpdatesManifestEndpoint(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"slug": "demo", "sdkVersion": "40.0.0"}}`)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/update-manifest-experimental", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	headers := map[string]string{
		"expo-protocol-version": "0",
		"expo-sfv-version":      "0",
		"cache-control":         "private, max-age=0",
		"content-type":          "application/json",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("header %s = %q, want %q", name, got, want)
		}
	}
}

func TestLoadingPage(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"name": "Demo App", "slug": "demo", "sdkVersion": "40.0.0"}}`)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/_orbit/loading", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Demo App") {
		t.Error("loading page missing app name")
	}
	if !strings.Contains(body, "SDK 40.0.0") {
		t.Error("loading page missing SDK version")
	}
}

func TestLinkRedirect(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"slug": "demo", "scheme": "demoapp", "sdkVersion": "40.0.0"}}`)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/_orbit/link", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "demoapp://expo-development-client/?url=") {
		t.Errorf("Location = %q", location)
	}
}

func TestLinkNotifiesCallback(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"slug": "demo", "scheme": "demoapp", "sdkVersion": "40.0.0"}}`)

	var gotTarget string
	srv.OnDeepLink(func(target string) { gotTarget = target })

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/_orbit/link", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if gotTarget == "" {
		t.Fatal("deep-link callback never ran")
	}
	if gotTarget != rec.Header().Get("Location") {
		t.Errorf("callback target = %q, redirect = %q", gotTarget, rec.Header().Get("Location"))
	}
}

func TestLinkRedirectWithoutScheme(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"slug": "demo", "sdkVersion": "40.0.0"}}`)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/_orbit/link", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Location"); got != "exp://127.0.0.1:19000" {
		t.Errorf("Location = %q", got)
	}
}

func TestLogsEndpoint(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"slug": "demo", "sdkVersion": "40.0.0"}}`)

	payload := `[{"level": "info", "body": ["hello"]}, {"level": "error", "body": ["boom"]}]`
	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:19000/logs", strings.NewReader(payload))
	req.Header.Set("Device-Id", "device-1")
	req.Header.Set("Device-Name", "iPhone")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	// Malformed payloads are rejected.
	req = httptest.NewRequest(http.MethodPost, "http://127.0.0.1:19000/logs", strings.NewReader("not json"))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// GET is not allowed.
	req = httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/logs", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestShutdownEndpoint(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"slug": "demo", "sdkVersion": "40.0.0"}}`)

	var called atomic.Bool
	srv.OnShutdown(func() { called.Store(true) })

	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:19000/shutdown", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	deadline := time.Now().Add(time.Second)
	for !called.Load() {
		if time.Now().After(deadline) {
			t.Fatal("shutdown callback never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	srv := newTestServer(t, `{"expo": {"slug": "demo", "sdkVersion": "40.0.0"}}`)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:19000/no-such-path", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
