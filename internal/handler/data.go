package handler

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/adapter"
)

const (
	wildcard = "*"

	keyPartition = "Partition"
	keyRow       = "Row"
)

var errFilterValue = errors.New("filter values must be \"*\"")

// DataHandler serves the data service: admin and token-gated CRUD over
// arbitrary tables.
type DataHandler struct {
	store adapter.EntityStore
	log   *zap.Logger
}

func NewDataHandler(store adapter.EntityStore, log *zap.Logger) *DataHandler {
	return &DataHandler{store: store, log: log}
}

// Routes mounts the data service operations on r.
func (h *DataHandler) Routes(r chi.Router) {
	operation(r, http.MethodPost, "CreateTableAdmin", h.CreateTable)
	operation(r, http.MethodDelete, "DeleteTableAdmin", h.DeleteTable)
	operation(r, http.MethodGet, "ReadEntityAdmin", h.ReadEntityAdmin)
	operation(r, http.MethodGet, "ReadEntityAuth", h.ReadEntityAuth)
	operation(r, http.MethodPut, "UpdateEntityAdmin", h.UpdateEntityAdmin)
	operation(r, http.MethodPut, "UpdateEntityAuth", h.UpdateEntityAuth)
	operation(r, http.MethodDelete, "DeleteEntityAdmin", h.DeleteEntityAdmin)
	operation(r, http.MethodPut, "AddPropertyAdmin", notImplemented)
	operation(r, http.MethodPut, "UpdatePropertyAdmin", notImplemented)
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
}

// CreateTable answers 201 for a new table and 202 if it already existed.
func (h *DataHandler) CreateTable(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 2)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	created, err := h.store.CreateTable(r.Context(), args[1])
	if err != nil {
		h.storeFailure(w, r, err)
		return
	}
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DeleteTable always asks the store to delete, then reports 404 if the table
// was not there.
func (h *DataHandler) DeleteTable(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 2)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	if err := h.store.DeleteTable(r.Context(), args[1]); err != nil {
		h.storeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ReadEntityAdmin serves /ReadEntityAdmin/{table} and
// /ReadEntityAdmin/{table}/{partition}/{row|*}.
func (h *DataHandler) ReadEntityAdmin(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 2, 4)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	filter, err := readFilter(r)
	if err != nil {
		fail(w, r, h.log, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	table := args[1]
	switch {
	case len(args) == 2:
		h.writeEntities(w, r, h.store.Scan(ctx, table), filter)
	case args[3] == wildcard:
		h.writeEntities(w, r, h.store.Query(ctx, table, args[2]), filter)
	default:
		e, err := h.store.Get(ctx, table, args[2], args[3])
		if err != nil {
			h.storeFailure(w, r, err)
			return
		}
		writeProperties(w, e.Properties)
	}
}

// ReadEntityAuth mirrors ReadEntityAdmin with a token after the table name.
// Every read is limited to the entity the token was minted for.
func (h *DataHandler) ReadEntityAuth(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 3, 5)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	filter, err := readFilter(r)
	if err != nil {
		fail(w, r, h.log, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	table, tok := args[1], args[2]
	switch {
	case len(args) == 3:
		h.writeEntities(w, r, h.store.QueryWithToken(ctx, tok, table, ""), filter)
	case args[4] == wildcard:
		h.writeEntities(w, r, h.store.QueryWithToken(ctx, tok, table, args[3]), filter)
	default:
		e, err := h.store.GetWithToken(ctx, tok, table, args[3], args[4])
		if err != nil {
			h.storeFailure(w, r, err)
			return
		}
		writeProperties(w, e.Properties)
	}
}

// UpdateEntityAdmin merges the body's properties into an entity, creating it
// if absent.
func (h *DataHandler) UpdateEntityAdmin(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 4)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	props, err := h.properties(r)
	if err != nil {
		fail(w, r, h.log, http.StatusBadRequest, err)
		return
	}
	e := adapter.Entity{Partition: args[2], Row: args[3], Properties: props}
	if err := h.store.Put(r.Context(), args[1], e, adapter.InsertOrMerge); err != nil {
		h.storeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// UpdateEntityAuth is UpdateEntityAdmin gated by an update token for exactly
// that entity.
func (h *DataHandler) UpdateEntityAuth(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 5)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	props, err := h.properties(r)
	if err != nil {
		fail(w, r, h.log, http.StatusBadRequest, err)
		return
	}
	if err := h.store.PutWithToken(r.Context(), args[2], args[1], args[3], args[4], props); err != nil {
		h.storeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *DataHandler) DeleteEntityAdmin(w http.ResponseWriter, r *http.Request) {
	args, ok := pathArgs(r, 4)
	if !ok {
		fail(w, r, h.log, http.StatusBadRequest, nil)
		return
	}
	if err := h.store.Delete(r.Context(), args[1], args[2], args[3]); err != nil {
		h.storeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *DataHandler) properties(r *http.Request) (map[string]any, error) {
	body, err := jsonBody(r)
	if err != nil {
		return nil, err
	}
	props := make(map[string]any, len(body))
	for k, v := range body {
		props[k] = v
	}
	return props, nil
}

// readFilter returns the property names an array read must match. Every
// value in the body has to be the wildcard.
func readFilter(r *http.Request) ([]string, error) {
	body, err := jsonBody(r)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(body))
	for k, v := range body {
		if v != wildcard {
			return nil, fmt.Errorf("%w: %s=%q", errFilterValue, k, v)
		}
		names = append(names, k)
	}
	return names, nil
}

func (h *DataHandler) writeEntities(w http.ResponseWriter, r *http.Request, seq iter.Seq2[adapter.Entity, error], filter []string) {
	out := []map[string]any{}
next:
	for e, err := range seq {
		if err != nil {
			h.storeFailure(w, r, err)
			return
		}
		obj := make(map[string]any, len(e.Properties)+2)
		maps.Copy(obj, e.Properties)
		obj[keyPartition] = e.Partition
		obj[keyRow] = e.Row
		for _, name := range filter {
			if _, ok := obj[name]; !ok {
				continue next
			}
		}
		out = append(out, obj)
	}
	writeJSON(w, http.StatusOK, out)
}

// writeProperties answers 200 with the properties, or with no body at all
// for an entity without properties.
func writeProperties(w http.ResponseWriter, props map[string]any) {
	if len(props) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

func (h *DataHandler) storeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, adapter.ErrForbidden):
		fail(w, r, h.log, http.StatusForbidden, err)
	case errors.Is(err, adapter.ErrNotFound):
		fail(w, r, h.log, http.StatusNotFound, err)
	default:
		fail(w, r, h.log, http.StatusInternalServerError, err)
	}
}
