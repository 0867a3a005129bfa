package handler

import (
	"net/http"
	"strconv"
	"strings"

	"go-auth-backend/internal/middleware"
	"go-auth-backend/internal/model"
	"go-auth-backend/internal/service"
	"go-auth-backend/pkg/apierror"
)

type AuditHandler struct {
	audit    *service.AuditService
	sessions *service.SessionService
}

func NewAuditHandler(audit *service.AuditService, sessions *service.SessionService) *AuditHandler {
	return &AuditHandler{audit: audit, sessions: sessions}
}

// List is admin-only. The role comes from the user record behind the live
// session, not from token claims.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.AccessTokenFromContext(r.Context())

	caller, err := h.sessions.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	if caller.Role != model.RoleAdmin {
		writeError(w, apierror.New("FORBIDDEN", "insufficient permissions", "", http.StatusForbidden))
		return
	}

	q := r.URL.Query()
	query := model.AuditQuery{
		Action:  strings.TrimSpace(q.Get("action")),
		ActorID: strings.TrimSpace(q.Get("actor_id")),
		Status:  strings.TrimSpace(q.Get("status")),
		From:    strings.TrimSpace(q.Get("from")),
		To:      strings.TrimSpace(q.Get("to")),
		Page:    parseIntDefault(q.Get("page"), 1),
		Limit:   parseIntDefault(q.Get("limit"), 50),
	}

	entries, meta, err := h.audit.Query(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, entries, &meta)
}

func parseIntDefault(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
