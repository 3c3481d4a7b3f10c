package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/auth"
	"github.com/jun/socialnet/internal/model"
	"github.com/jun/socialnet/internal/token"
)

// TokenIssuer authenticates a user and mints a token for their record.
type TokenIssuer interface {
	IssueToken(ctx context.Context, userID, password string, perms token.Permission) (model.Grant, error)
}

// AuthHandler serves the auth service.
type AuthHandler struct {
	issuer TokenIssuer
	log    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(issuer TokenIssuer, log *zap.Logger) *AuthHandler {
	return &AuthHandler{issuer: issuer, log: log}
}

// Routes mounts the auth service operations on r.
func (h *AuthHandler) Routes(r chi.Router) {
	operation(r, http.MethodGet, "GetReadToken", h.GetReadToken)
	operation(r, http.MethodGet, "GetUpdateToken", h.GetUpdateToken)
	operation(r, http.MethodGet, "GetUpdateData", h.GetUpdateData)
}

// GetReadToken answers {"token": ...} with a read-only token.
func (h *AuthHandler) GetReadToken(w http.ResponseWriter, r *http.Request) {
	if grant, ok := h.issue(w, r, token.ReadOnly); ok {
		writeJSON(w, http.StatusOK, map[string]string{"token": grant.Token})
	}
}

// GetUpdateToken answers {"token": ...} with a read+update token.
func (h *AuthHandler) GetUpdateToken(w http.ResponseWriter, r *http.Request) {
	if grant, ok := h.issue(w, r, token.ReadUpdate); ok {
		writeJSON(w, http.StatusOK, map[string]string{"token": grant.Token})
	}
}

// GetUpdateData answers a read+update token together with the location of
// the user's record.
func (h *AuthHandler) GetUpdateData(w http.ResponseWriter, r *http.Request) {
	if grant, ok := h.issue(w, r, token.ReadUpdate); ok {
		writeJSON(w, http.StatusOK, grant)
	}
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, perms token.Permission) (model.Grant, bool) {
	args, ok := pathArgs(r, 2)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return model.Grant{}, false
	}
	body, err := jsonBody(r)
	if err != nil {
		fail(w, r, h.log, http.StatusBadRequest, err)
		return model.Grant{}, false
	}
	password, ok := singleProperty(body, model.PropPassword)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return model.Grant{}, false
	}

	grant, err := h.issuer.IssueToken(r.Context(), args[1], password, perms)
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		fail(w, r, h.log, http.StatusNotFound, err)
		return model.Grant{}, false
	case err != nil:
		fail(w, r, h.log, http.StatusInternalServerError, err)
		return model.Grant{}, false
	}
	return grant, true
}
