package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"ridepass/internal/repositories"
)

// InstanceHandler manages the device-token registrations FCM fan-out
// delivers to. Not part of reconciliation, just its delivery plumbing.
type InstanceHandler struct {
	Repo *repositories.InstanceRepository
}

func NewInstanceHandler(repo *repositories.InstanceRepository) *InstanceHandler {
	return &InstanceHandler{Repo: repo}
}

func (h *InstanceHandler) RegisterInstance(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(string)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		InstanceToken string `json:"instanceToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.InstanceToken = strings.TrimSpace(req.InstanceToken)
	if req.InstanceToken == "" {
		http.Error(w, "instanceToken is required", http.StatusBadRequest)
		return
	}

	if err := h.Repo.RegisterToken(r.Context(), userID, req.InstanceToken); err != nil {
		http.Error(w, "failed to register instance", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *InstanceHandler) UnregisterInstance(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(string)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	token := r.URL.Query().Get(":token")
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	if err := h.Repo.UnregisterToken(r.Context(), token); err != nil {
		http.Error(w, "failed to unregister instance", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
