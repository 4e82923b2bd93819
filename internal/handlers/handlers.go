package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-ingenico/internal/config"
	"go-ingenico/internal/database"
	"go-ingenico/internal/middleware"
	"go-ingenico/internal/payment"
	"go-ingenico/internal/websocket"

	"github.com/gorilla/mux"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	DB      *database.DB
	WSHub   *websocket.Hub
	Payment *payment.Service
	Config  *config.Config
	Logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new Handler
func NewHandler(db *database.DB, wsHub *websocket.Hub, svc *payment.Service, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		DB:      db,
		WSHub:   wsHub,
		Payment: svc,
		Config:  cfg,
		Logger:  logger.With("component", "http"),
		now:     time.Now,
	}
}

// Login handles admin authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := h.DB.GetUserByUsername(req.Username)
	if err != nil || !database.CheckPassword(user, req.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	now := h.now()
	user.LastLogin = &now
	if err := h.DB.UpdateUser(user); err != nil {
		h.Logger.Warn("failed to record last login", "user", user.Username, "error", err)
	}

	token, err := middleware.GenerateToken(h.Config.JWTSecret, user, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user": map[string]string{
			"username": user.Username,
			"role":     user.Role,
		},
	})
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if h.WSHub != nil {
		resp["websocketClients"] = h.WSHub.ClientCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

// ServeWS upgrades to a websocket streaming order events. Shoppers pass
// ?order=<order key> and see only that order. The unfiltered stream needs an
// admin token, sent as ?token= since browsers cannot set headers on upgrade.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.WSHub == nil {
		respondError(w, http.StatusServiceUnavailable, "Live updates unavailable")
		return
	}

	key := r.URL.Query().Get("order")
	if key == "" {
		if !h.isAdmin(r) && !h.validToken(r) {
			respondError(w, http.StatusUnauthorized, "Order key or admin token required")
			return
		}
	} else {
		order, err := h.DB.GetOrderByKey(r.Context(), key)
		if err != nil && !isNotFound(err) {
			h.orderLookupError(w, err)
			return
		}
		if err != nil || !keyMatches(order, key) {
			respondError(w, http.StatusNotFound, "Order not found")
			return
		}
	}

	websocket.HandleWebSocket(h.WSHub, w, r, key)
}

func (h *Handler) validToken(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return false
	}
	_, err := middleware.ParseToken(h.Config.JWTSecret, token)
	return err == nil
}

// ============== Helper Functions ==============

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func getPathInt64(r *http.Request, key string) (int64, bool) {
	val, err := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	return val, err == nil && val > 0
}

func getQueryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil || intVal <= 0 {
		return defaultVal
	}
	return intVal
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
