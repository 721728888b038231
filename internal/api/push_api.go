package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"log/slog"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/cleanslate-app/go-push-service/internal/auth"
	"github.com/cleanslate-app/go-push-service/internal/pipeline"
	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// PushAPI exposes the synchronous send endpoint.
type PushAPI struct {
	Guard  *auth.Guard
	Sender *pipeline.Sender
	Logger *slog.Logger
}

func NewPushAPI(guard *auth.Guard, sender *pipeline.Sender, logger *slog.Logger) *PushAPI {
	return &PushAPI{
		Guard:  guard,
		Sender: sender,
		Logger: logger,
	}
}

// sendResponse is the success body for a dispatched batch.
type sendResponse struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Total   int  `json:"total"`
	Cleaned int  `json:"cleaned"`
}

// noTokensResponse matches the shape existing clients expect when the user
// has no registered devices.
type noTokensResponse struct {
	Success bool   `json:"success"`
	Sent    int    `json:"sent"`
	Reason  string `json:"reason"`
}

// SendNotification handles POST requests: validate, authorize, mint,
// fan-out, clean up. Partial delivery failure is reported as data
// (sent < total), never as an error status.
func (api *PushAPI) SendNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, err := notify.ParseRequest(body)
	if err != nil {
		var validationErr *notify.ValidationError
		if errors.As(err, &validationErr) {
			response.WriteJSONError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		response.WriteJSONError(w, http.StatusBadRequest, "invalid request")
		return
	}

	caller := api.Guard.ResolveCaller(r)
	if api.Guard.RequireAuth() && !caller.Known {
		response.WriteJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := api.Guard.Authorize(ctx, caller, req); err != nil {
		var authErr *notify.AuthorizationError
		if errors.As(err, &authErr) {
			api.Logger.Warn("authorization rejected", "detail", authErr.Detail, "user_id", req.UserID.String())
			response.WriteJSONError(w, http.StatusForbidden, authErr.Error())
			return
		}
		api.Logger.Error("authorization check failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result, err := api.Sender.Send(ctx, req)
	if err != nil {
		// Credential or dispatch failure. Details are logged, never echoed.
		api.Logger.Error("dispatch failed", "user_id", req.UserID.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if result.Total == 0 {
		writeJSON(w, noTokensResponse{Success: true, Sent: 0, Reason: "no_tokens"})
		return
	}

	writeJSON(w, sendResponse{
		Success: true,
		Sent:    result.Sent,
		Total:   result.Total,
		Cleaned: result.Cleaned,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
