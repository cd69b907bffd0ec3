// Package api exposes the authenticated device and topic endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

type TokenAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger.With("component", "TokenAPI"),
	}
}

type TokenRequest struct {
	Token string `json:"token"`
}

type UnregisterWebRequest struct {
	Endpoint string `json:"endpoint"`
}

// authenticatedUser reads the caller from the auth middleware context and
// writes the error response itself when there is none.
func authenticatedUser(w http.ResponseWriter, r *http.Request) (urn.URN, bool) {
	userID, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return urn.URN{}, false
	}
	userURN, err := urn.Parse(userID)
	if err != nil {
		response.WriteJSONError(w, http.StatusUnauthorized, "invalid user identity")
		return urn.URN{}, false
	}
	return userURN, true
}

// --- Native tokens: POST /api/v1/register/{platform} ---

func (api *TokenAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	userURN, ok := authenticatedUser(w, r)
	if !ok {
		return
	}
	platform, err := dispatch.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.RegisterToken(r.Context(), userURN, platform, req.Token); err != nil {
		api.Logger.Error("failed to register token", "platform", platform, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	userURN, ok := authenticatedUser(w, r)
	if !ok {
		return
	}
	platform, err := dispatch.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := api.Store.UnregisterToken(r.Context(), userURN, platform, req.Token); err != nil {
		// Unregister stays idempotent for the client.
		api.Logger.Warn("failed to unregister token", "platform", platform, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Web (VAPID) ---

func (api *TokenAPI) RegisterWeb(w http.ResponseWriter, r *http.Request) {
	userURN, ok := authenticatedUser(w, r)
	if !ok {
		return
	}

	var sub dispatch.WebSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		api.Logger.Error("RegisterWeb: JSON Decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid subscription json")
		return
	}

	if sub.Endpoint == "" || len(sub.Keys.P256dh) == 0 || len(sub.Keys.Auth) == 0 {
		api.Logger.Warn("RegisterWeb: Validation failed", "reason", "missing fields")
		response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
		return
	}

	if err := api.Store.RegisterWeb(r.Context(), userURN, sub); err != nil {
		api.Logger.Error("failed to register web", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("RegisterWeb: Subscription registered", "user", userURN.String(), "endpoint", sub.Endpoint)

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UnregisterWeb(w http.ResponseWriter, r *http.Request) {
	userURN, ok := authenticatedUser(w, r)
	if !ok {
		return
	}

	var req UnregisterWebRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Logger.Error("UnregisterWeb: JSON Decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Endpoint == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing endpoint")
		return
	}

	if err := api.Store.UnregisterWeb(r.Context(), userURN, req.Endpoint); err != nil {
		api.Logger.Warn("failed to unregister web", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to unregister web")
		return
	}
	api.Logger.Info("UnregisterWeb: Subscription unregistered", "user", userURN.String(), "endpoint", req.Endpoint)

	w.WriteHeader(http.StatusNoContent)
}
