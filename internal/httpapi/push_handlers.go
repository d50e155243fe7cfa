package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/lukasbauer/apriori/internal/store"
)

// handleListDevices lists HR devices registered for push alerts
func (r *Router) handleListDevices(w http.ResponseWriter, req *http.Request) {
	devices, err := r.svc.Devices.ListHRDevices(req.Context())
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("push: failed to list devices")
		http.Error(w, `{"error": "failed to list devices"}`, http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []store.HRDevice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// handleRegisterDevice registers an HR device push token
func (r *Router) handleRegisterDevice(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Owner    string `json:"owner"`
		Platform string `json:"platform"`
	}

	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}

	if body.Platform == "" {
		body.Platform = "ios"
	}
	if body.Platform != "ios" {
		http.Error(w, `{"error": "platform must be 'ios'"}`, http.StatusBadRequest)
		return
	}

	if body.Owner == "" {
		if admin := getAdminUser(req.Context()); admin != nil {
			body.Owner = admin.Email
			if body.Owner == "" {
				body.Owner = admin.Subject
			}
		}
	}

	if err := r.svc.Devices.RegisterHRDevice(req.Context(), body.Token, body.Owner, body.Platform); err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("push: failed to register device")
		http.Error(w, `{"error": "failed to register device"}`, http.StatusInternalServerError)
		return
	}

	requestLogger(req, r.logger).Info().Str("owner", body.Owner).Msg("push: registered HR device")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleUnregisterDevice removes an HR device push token
func (r *Router) handleUnregisterDevice(w http.ResponseWriter, req *http.Request) {
	token := req.PathValue("token")
	if token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}

	if err := r.svc.Devices.UnregisterHRDevice(req.Context(), token); err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("push: failed to unregister device")
		http.Error(w, `{"error": "failed to unregister device"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
