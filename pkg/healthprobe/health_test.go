package healthprobe

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth_AlwaysReturnsOK(t *testing.T) {
	hc := New()

	for _, ready := range []bool{false, true} {
		hc.SetReady(ready)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		hc.Health()(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Health status = %d (ready=%v), want %d", w.Code, ready, http.StatusOK)
		}

		var resp HealthResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != "healthy" {
			t.Errorf("Status = %q, want healthy", resp.Status)
		}
		if resp.Uptime == "" {
			t.Error("Uptime is empty")
		}
	}
}

func TestReady_FollowsState(t *testing.T) {
	hc := New()
	handler := hc.Ready()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("initial ready status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "not_ready" {
		t.Errorf("Status = %q, want not_ready", resp.Status)
	}

	hc.SetReady(true)
	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("ready status after SetReady(true) = %d, want %d", w.Code, http.StatusOK)
	}

	hc.SetReady(false)
	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status after SetReady(false) = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestReady_ReportsComponents(t *testing.T) {
	hc := New()
	hc.SetReady(true)
	hc.SetComponent("websocket", true)
	hc.SetComponent("scanner", false)

	w := httptest.NewRecorder()
	hc.Ready()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Components["websocket"] {
		t.Error("websocket component should be healthy")
	}
	if resp.Components["scanner"] {
		t.Error("scanner component should be unhealthy")
	}
}

func TestHealthChecker_ConcurrentAccess(t *testing.T) {
	hc := New()
	handler := hc.Ready()

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			hc.SetReady(i%2 == 0)
			hc.SetComponent("websocket", i%2 == 0)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		}
		done <- true
	}()

	<-done
	<-done
}
