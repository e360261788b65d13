package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"ridepass/internal/models"
	"ridepass/internal/services"
)

// SubscriptionHandler exposes the client-facing registration, transfer and
// status operations. The auth middleware has already resolved the caller.
type SubscriptionHandler struct {
	Manager     *services.PurchaseManager
	Users       *services.UserManager
	PackageName string
	// Products maps a sellable sku to its type (one_time | recurring).
	Products map[string]string
}

func NewSubscriptionHandler(manager *services.PurchaseManager, users *services.UserManager, packageName string, products map[string]string) *SubscriptionHandler {
	return &SubscriptionHandler{
		Manager:     manager,
		Users:       users,
		PackageName: packageName,
		Products:    products,
	}
}

type purchaseRequest struct {
	Sku           string `json:"sku"`
	PurchaseToken string `json:"purchaseToken"`
}

func (h *SubscriptionHandler) RegisterSubscription(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(string)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	req, skuType, ok := h.decodePurchaseRequest(w, r)
	if !ok {
		return
	}

	log.Printf("[subscription] register user=%q sku=%q token_len=%d", userID, req.Sku, len(req.PurchaseToken))

	_, err := h.Manager.RegisterToUserAccount(r.Context(), h.PackageName, req.Sku, req.PurchaseToken, skuType, userID)
	if err != nil {
		writePurchaseError(w, err)
		return
	}

	h.respondWithStatuses(w, r, userID)
}

func (h *SubscriptionHandler) TransferSubscription(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(string)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	req, skuType, ok := h.decodePurchaseRequest(w, r)
	if !ok {
		return
	}

	log.Printf("[subscription] transfer user=%q sku=%q token_len=%d", userID, req.Sku, len(req.PurchaseToken))

	_, err := h.Manager.TransferToUserAccount(r.Context(), h.PackageName, req.Sku, req.PurchaseToken, skuType, userID)
	if err != nil {
		writePurchaseError(w, err)
		return
	}

	h.respondWithStatuses(w, r, userID)
}

func (h *SubscriptionHandler) GetSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(string)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	h.respondWithStatuses(w, r, userID)
}

func (h *SubscriptionHandler) decodePurchaseRequest(w http.ResponseWriter, r *http.Request) (purchaseRequest, string, bool) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return req, "", false
	}
	req.Sku = strings.TrimSpace(req.Sku)
	req.PurchaseToken = strings.TrimSpace(req.PurchaseToken)
	if req.Sku == "" || req.PurchaseToken == "" {
		http.Error(w, "sku and purchaseToken are required", http.StatusBadRequest)
		return req, "", false
	}
	skuType, ok := h.Products[req.Sku]
	if !ok {
		http.Error(w, "unsupported sku: "+req.Sku, http.StatusBadRequest)
		return req, "", false
	}
	return req, skuType, true
}

func (h *SubscriptionHandler) respondWithStatuses(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.Users.SubscriptionStatuses(r.Context(), userID, "", "")
	if err != nil {
		log.Printf("[subscription] status read failed user=%q: %v", userID, err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}
	_ = json.NewEncoder(w).Encode(list)
}

// writePurchaseError maps the reconciliation error taxonomy onto HTTP.
// Conflict and invalid-token are permanent, client-visible rejections;
// everything else is internal and worth a retry.
func writePurchaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrConflict):
		writeJSONError(w, http.StatusConflict, "already-exists")
	case errors.Is(err, models.ErrInvalidToken):
		writeJSONError(w, http.StatusNotFound, "not-found")
	default:
		log.Printf("[subscription] internal failure: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
	}
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
