package handler

import (
	"encoding/json"
	"net/http"

	"go-auth-backend/internal/middleware"
	"go-auth-backend/internal/model"
	"go-auth-backend/internal/service"
	"go-auth-backend/pkg/apierror"
)

type AuthHandler struct {
	sessions *service.SessionService
	audit    *service.AuditService
}

func NewAuthHandler(sessions *service.SessionService, audit *service.AuditService) *AuthHandler {
	return &AuthHandler{sessions: sessions, audit: audit}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body", ""))
		return
	}

	user, err := h.sessions.Register(r.Context(), payload)
	if err != nil {
		h.record(r, "auth.register", actorFromRequest(r), err)
		writeError(w, err)
		return
	}

	h.record(r, "auth.register", model.AuditActor{UserID: user.ID, Email: user.Email, IP: clientIP(r)}, nil)
	writeSuccess(w, http.StatusCreated, user, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body", ""))
		return
	}

	result, err := h.sessions.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.record(r, "auth.login", model.AuditActor{IP: clientIP(r)}, err)
		writeError(w, err)
		return
	}

	h.record(r, "auth.login", model.AuditActor{UserID: result.User.ID, Email: result.User.Email, IP: clientIP(r)}, nil)
	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body", ""))
		return
	}

	result, err := h.sessions.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		h.record(r, "auth.refresh", model.AuditActor{IP: clientIP(r)}, err)
		writeError(w, err)
		return
	}

	h.record(r, "auth.refresh", model.AuditActor{IP: clientIP(r)}, nil)
	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)

	result, err := h.sessions.Logout(r.Context(), token)
	if err != nil {
		h.record(r, "auth.logout", actorFromRequest(r), err)
		writeError(w, err)
		return
	}

	h.record(r, "auth.logout", actorFromRequest(r), nil)
	writeSuccess(w, http.StatusOK, result, nil)
}

// Me resolves the caller from the session store, so a token that was
// logged out stops working here even while its signature is still valid.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.AccessTokenFromContext(r.Context())
	if !ok {
		token = middleware.BearerToken(r)
	}

	user, err := h.sessions.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *AuthHandler) record(r *http.Request, action string, actor model.AuditActor, opErr error) {
	if h.audit == nil {
		return
	}

	status := service.AuditStatusSuccess
	errText := ""
	if opErr != nil {
		status = service.AuditStatusDenied
		errText = opErr.Error()
	}

	h.audit.Record(r.Context(), action, actor, status, errText)
}
