package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/client"
	"github.com/jun/socialnet/internal/friends"
	"github.com/jun/socialnet/internal/model"
)

// StatusPusher fans a status out to a friend list.
type StatusPusher interface {
	PushStatus(ctx context.Context, partition, row, status, friends string) error
}

// PushHandler serves the push service.
type PushHandler struct {
	pusher StatusPusher
	log    *zap.Logger
}

func NewPushHandler(pusher StatusPusher, log *zap.Logger) *PushHandler {
	return &PushHandler{pusher: pusher, log: log}
}

// Routes mounts the push service operations on r.
func (h *PushHandler) Routes(r chi.Router) {
	operation(r, http.MethodPost, "PushStatus", h.PushStatus)
}

// PushStatus serves /PushStatus/{partition}/{row}/{status} with body
// {"Friends": "<list>"}.
func (h *PushHandler) PushStatus(w http.ResponseWriter, r *http.Request) {
	body, err := jsonBody(r)
	if err != nil {
		fail(w, r, h.log, http.StatusBadRequest, err)
		return
	}
	list, ok := body[model.PropFriends]
	if !ok || len(body) != 1 {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	args, ok := pathArgs(r, 4)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}

	err = h.pusher.PushStatus(r.Context(), args[1], args[2], args[3], list)
	if code, ok := client.StatusCode(err); ok {
		fail(w, r, h.log, code, err)
		return
	}
	switch {
	case errors.Is(err, friends.ErrFormat):
		fail(w, r, h.log, http.StatusBadRequest, err)
	case err != nil:
		fail(w, r, h.log, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusOK)
	}
}
