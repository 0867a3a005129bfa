package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-backend/internal/middleware"
	"go-auth-backend/internal/model"
	"go-auth-backend/internal/service"
	"go-auth-backend/pkg/apierror"
)

type UserHandler struct {
	sessions *service.SessionService
	audit    *service.AuditService
}

func NewUserHandler(sessions *service.SessionService, audit *service.AuditService) *UserHandler {
	return &UserHandler{sessions: sessions, audit: audit}
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.BadRequest("user id is required", "id"))
		return
	}

	token, _ := middleware.AccessTokenFromContext(r.Context())

	user, err := h.sessions.GetProfile(r.Context(), userID, token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.BadRequest("user id is required", "id"))
		return
	}

	var payload model.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body", ""))
		return
	}

	token, _ := middleware.AccessTokenFromContext(r.Context())

	update := model.UserUpdate{
		Email:     payload.Email,
		Username:  payload.Username,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Bio:       payload.Bio,
	}

	user, err := h.sessions.UpdateProfile(r.Context(), userID, update, token)
	if err != nil {
		h.record(r, "user.update", err)
		writeError(w, err)
		return
	}

	h.record(r, "user.update", nil)
	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.AccessTokenFromContext(r.Context())

	result, err := h.sessions.DeleteAccount(r.Context(), token)
	if err != nil {
		h.record(r, "user.delete", err)
		writeError(w, err)
		return
	}

	h.record(r, "user.delete", nil)
	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *UserHandler) record(r *http.Request, action string, opErr error) {
	if h.audit == nil {
		return
	}

	status := service.AuditStatusSuccess
	errText := ""
	if opErr != nil {
		status = service.AuditStatusDenied
		errText = opErr.Error()
	}

	h.audit.Record(r.Context(), action, actorFromRequest(r), status, errText)
}
