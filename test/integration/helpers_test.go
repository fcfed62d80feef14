//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL string
	Client  *http.Client
	// Snapshot is the settings export taken before any test runs. Teardown
	// imports it back so the suite leaves the controller as it found it.
	Snapshot []byte
	// CDPReady is false when /health reports the browser unreachable.
	CDPReady bool
}

type healthStatus struct {
	Status           string `json:"status"`
	CDP              string `json:"cdp"`
	Tabs             int    `json:"tabs"`
	Error            string `json:"error"`
	EventSubscribers int    `json:"event_subscribers"`
}

func (e *Env) health() (healthStatus, error) {
	var h healthStatus
	resp, err := e.Client.Get(e.BaseURL + "/health")
	if err != nil {
		return h, fmt.Errorf("server not reachable at %s: %w", e.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return h, fmt.Errorf("health: status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return h, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

func (e *Env) exportSettings() ([]byte, error) {
	resp, err := e.Client.Get(e.BaseURL + "/api/v1/settings/export")
	if err != nil {
		return nil, fmt.Errorf("export settings: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("export settings: status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func (e *Env) importSettings(doc []byte) error {
	resp, err := e.Client.Post(e.BaseURL+"/api/v1/settings/import", "application/json", bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("import settings: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("import settings: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// requireCDP skips tests that drive the browser when it is unreachable.
func requireCDP(t *testing.T) {
	t.Helper()
	if !env.CDPReady {
		t.Skip("browser not reachable over CDP")
	}
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("BOOKTABS_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8188"
	}

	env = &Env{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}

	h, err := env.health()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	env.CDPReady = h.CDP == "ok"
	fmt.Fprintf(os.Stdout, "integration: controller at %s status=%s cdp=%s tabs=%d\n", env.BaseURL, h.Status, h.CDP, h.Tabs)

	env.Snapshot, err = env.exportSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := env.importSettings(env.Snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "integration: teardown restore settings: %v\n", err)
	}
	os.Exit(code)
}

// --- HTTP helpers ---

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) PUT(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPut, path, body)
}

func (e *Env) PATCH(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPatch, path, body)
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body)
}

func (e *Env) DELETE(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodDelete, path, nil)
}

func (e *Env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("%s %s: marshal body: %v", method, path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.BaseURL+path, r)
	if err != nil {
		t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// --- Assertion helpers ---

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}
