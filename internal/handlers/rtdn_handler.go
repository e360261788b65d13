package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"ridepass/internal/models"
	"ridepass/internal/services"
)

// RTDNHandler is the Pub/Sub push endpoint for real-time developer
// notifications. Responding non-2xx makes Pub/Sub redeliver, so only
// bookkeeping failures return an error status; junk payloads are acked.
type RTDNHandler struct {
	Service *services.NotificationService

	// VerificationToken is a shared secret the Pub/Sub push subscription
	// appends as ?token=. Empty disables the check (local development).
	VerificationToken string
}

func NewRTDNHandler(svc *services.NotificationService, verificationToken string) *RTDNHandler {
	return &RTDNHandler{Service: svc, VerificationToken: verificationToken}
}

func (h *RTDNHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	if h.VerificationToken != "" && r.URL.Query().Get("token") != h.VerificationToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var push models.PubSubPush
	if err := json.NewDecoder(r.Body).Decode(&push); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.ProcessPush(r.Context(), push); err != nil {
		log.Printf("[rtdn] processing failed id=%q: %v", push.Message.MessageID, err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
