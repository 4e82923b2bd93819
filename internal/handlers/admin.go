package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go-ingenico/internal/config"
	"go-ingenico/internal/payment"
)

const maskedSetting = "********"

// RefundOrder issues a refund against the order's payment
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := getPathInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	var req struct {
		Amount         json.RawMessage `json:"amount"`
		Reason         string          `json:"reason"`
		IdempotencyKey string          `json:"idempotencyKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	order, err := h.DB.GetOrder(r.Context(), id)
	if err != nil {
		h.orderLookupError(w, err)
		return
	}

	result, err := h.Payment.Refund(r.Context(), order, payment.RefundRequest{
		Amount:         strings.Trim(string(req.Amount), `"`),
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.Logger.Warn("refund failed", "order_id", id, "error", err)
		if errors.Is(err, payment.ErrPrecondition) {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":  "Refund failed.",
				"reason": strings.TrimPrefix(err.Error(), payment.ErrRefundFailed.Error()+": "),
			})
			return
		}
		respondError(w, http.StatusBadGateway, "Refund failed.")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetGateway returns the checkout display metadata
func (h *Handler) GetGateway(w http.ResponseWriter, r *http.Request) {
	cfg := h.Payment.Config()
	resp := map[string]interface{}{
		"id":                  "ingenico",
		"title":               cfg.Title,
		"description":         cfg.Description,
		"orderButtonText":     "Proceed to Ingenico",
		"available":           h.Payment.IsAvailable(),
		"testMode":            cfg.TestMode,
		"refunds":             h.Payment.CanRefund(),
		"supportedCurrencies": cfg.SupportedCurrencies,
	}
	if reason := h.Payment.DisabledReason(); reason != "" {
		resp["disabledReason"] = reason
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetSettings returns the stored gateway settings with secrets masked
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.DB.GetSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not load settings")
		return
	}
	for k, v := range settings {
		if config.SecretSettings[k] && v != "" {
			settings[k] = maskedSetting
		}
	}
	respondJSON(w, http.StatusOK, settings)
}

// SaveSettings stores gateway settings. They take effect on the next start.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	known := make(map[string]bool, len(config.SettingKeys))
	for _, k := range config.SettingKeys {
		known[k] = true
	}
	for k := range req {
		if !known[k] {
			respondError(w, http.StatusBadRequest, "Unknown setting: "+k)
			return
		}
	}

	for k, v := range req {
		if config.SecretSettings[k] && v == maskedSetting {
			continue
		}
		if err := h.DB.SaveSetting(k, strings.TrimSpace(v)); err != nil {
			respondError(w, http.StatusInternalServerError, "Could not save settings")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true, "restartRequired": true})
}

// GetAuditLog lists recent gateway exchanges
func (h *Handler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.DB.GetAuditLog(r.Context(), getQueryInt(r, "limit", 50), getQueryInt(r, "offset", 0))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not load audit log")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
