package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestHandleRegisterDevice(t *testing.T) {
	t.Run("invalid request body", func(t *testing.T) {
		env := newTestEnv(t, "")
		rec := serve(t, env, http.MethodPost, "/admin/devices", "invalid json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		var resp map[string]string
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if !strings.Contains(resp["error"], "invalid request body") {
			t.Errorf("error = %q, should mention invalid request body", resp["error"])
		}
	})

	t.Run("missing token", func(t *testing.T) {
		env := newTestEnv(t, "")
		rec := serve(t, env, http.MethodPost, "/admin/devices", `{"platform": "ios"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("unsupported platform", func(t *testing.T) {
		env := newTestEnv(t, "")
		rec := serve(t, env, http.MethodPost, "/admin/devices", `{"token": "abc", "platform": "android"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("owner defaults to the token email", func(t *testing.T) {
		env := newTestEnv(t, "")
		rec := serve(t, env, http.MethodPost, "/admin/devices", `{"token": "abc"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if owner := env.devices.registered["abc"]; owner != "rrhh@example.com" {
			t.Errorf("owner = %q, want rrhh@example.com", owner)
		}
	})
}

func TestHandleUnregisterDevice(t *testing.T) {
	env := newTestEnv(t, "")
	env.devices.registered = map[string]string{"abc": "rrhh@example.com"}

	rec := serve(t, env, http.MethodGet, "/admin/devices", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"token":"abc"`) {
		t.Fatalf("list: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, env, http.MethodDelete, "/admin/devices/abc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if _, ok := env.devices.registered["abc"]; ok {
		t.Error("device should be removed")
	}
}
