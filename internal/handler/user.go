package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/client"
	"github.com/jun/socialnet/internal/model"
	"github.com/jun/socialnet/internal/session"
)

// UserService is the session service logic behind UserHandler.
type UserService interface {
	SignOn(ctx context.Context, userID, password string) error
	SignOff(ctx context.Context, userID string) error
	AddFriend(ctx context.Context, userID, country, name string) error
	UnFriend(ctx context.Context, userID, country, name string) error
	UpdateStatus(ctx context.Context, userID, status string) error
	ReadFriendList(ctx context.Context, userID string) (string, error)
}

// UserHandler serves the session service.
type UserHandler struct {
	users UserService
	log   *zap.Logger
}

func NewUserHandler(users UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// Routes mounts the session service operations on r.
func (h *UserHandler) Routes(r chi.Router) {
	operation(r, http.MethodPost, "SignOn", h.SignOn)
	operation(r, http.MethodPost, "SignOff", h.SignOff)
	operation(r, http.MethodPut, "AddFriend", h.AddFriend)
	operation(r, http.MethodPut, "UnFriend", h.UnFriend)
	operation(r, http.MethodPut, "UpdateStatus", h.UpdateStatus)
	operation(r, http.MethodGet, "ReadFriendList", h.ReadFriendList)
}

func (h *UserHandler) SignOn(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 2)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	body, err := jsonBody(r)
	if err != nil {
		fail(w, r, h.log, http.StatusBadRequest, err)
		return
	}
	password, ok := singleProperty(body, model.PropPassword)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	if err := h.users.SignOn(r.Context(), args[1], password); err != nil {
		h.failure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SignOff answers 404 when the user has no session.
func (h *UserHandler) SignOff(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 2)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	if err := h.users.SignOff(r.Context(), args[1]); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			fail(w, r, h.log, http.StatusNotFound, err)
			return
		}
		h.failure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// AddFriend serves /AddFriend/{userid}/{country}/{name}.
func (h *UserHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 4)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	h.reply(w, r, h.users.AddFriend(r.Context(), args[1], args[2], args[3]))
}

// UnFriend serves /UnFriend/{userid}/{country}/{name}.
func (h *UserHandler) UnFriend(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 4)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	h.reply(w, r, h.users.UnFriend(r.Context(), args[1], args[2], args[3]))
}

// UpdateStatus serves /UpdateStatus/{userid}/{status}.
func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 3)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	h.reply(w, r, h.users.UpdateStatus(r.Context(), args[1], args[2]))
}

// ReadFriendList answers [{"Friends": "<list>"}].
func (h *UserHandler) ReadFriendList(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 2)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	list, err := h.users.ReadFriendList(r.Context(), args[1])
	if err != nil {
		h.failure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, []map[string]string{{model.PropFriends: list}})
}

func (h *UserHandler) reply(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.failure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// failure passes upstream statuses through unchanged.
func (h *UserHandler) failure(w http.ResponseWriter, r *http.Request, err error) {
	if code, ok := client.StatusCode(err); ok {
		fail(w, r, h.log, code, err)
		return
	}
	if errors.Is(err, session.ErrNoSession) {
		fail(w, r, h.log, http.StatusForbidden, err)
		return
	}
	// Corrupt friend lists and malformed auth answers land here too.
	fail(w, r, h.log, http.StatusInternalServerError, err)
}
