package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/middleware"
)

const maxBodyBytes = 1 << 20

// errBadBody is returned for a JSON body that is not a flat JSON object.
var errBadBody = errors.New("request body is not a JSON object")

// operation registers fn for /op and /op/... under method.
func operation(r chi.Router, method, op string, fn http.HandlerFunc) {
	r.Method(method, "/"+op, fn)
	r.Method(method, "/"+op+"/*", fn)
}

// UnknownOperation answers 400 for any path that names no operation.
func UnknownOperation(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Unknown operation", http.StatusBadRequest)
}

// Unrouted makes r answer UnknownOperation both for unknown operation names
// and for known operations called with another method.
func Unrouted(r chi.Router) {
	r.NotFound(UnknownOperation)
	r.MethodNotAllowed(UnknownOperation)
}

// segments splits the request path on "/", drops empty segments and
// percent-decodes each one. The operation name is segments[0].
func segments(r *http.Request) ([]string, error) {
	var out []string
	for _, s := range strings.Split(r.URL.EscapedPath(), "/") {
		if s == "" {
			continue
		}
		dec, err := url.PathUnescape(s)
		if err != nil {
			return nil, fmt.Errorf("bad path segment %q: %w", s, err)
		}
		out = append(out, dec)
	}
	return out, nil
}

// pathArgs returns the decoded segments when their count is one of arities.
func pathArgs(r *http.Request, arities ...int) ([]string, bool) {
	segs, err := segments(r)
	if err != nil || !slices.Contains(arities, len(segs)) {
		return nil, false
	}
	return segs, true
}

// jsonBody returns the request's JSON object with every value as a string:
// JSON strings as-is, anything else as its compact JSON text. Without an
// application/json content type the body is ignored and an empty map is
// returned.
func jsonBody(r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" || r.Body == nil {
		return out, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		out[k] = buf.String()
	}
	return out, nil
}

// singleProperty returns the value of name when body holds exactly that one
// non-empty property.
func singleProperty(body map[string]string, name string) (string, bool) {
	v, ok := body[name]
	if !ok || len(body) != 1 || v == "" {
		return "", false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// fail writes code with its status text and logs err: server errors at
// Error, everything else at Debug.
func fail(w http.ResponseWriter, r *http.Request, log *zap.Logger, code int, err error) {
	fields := []zap.Field{
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		zap.String("route", middleware.Route(r)),
		zap.Int("status", code),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if code >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
	} else {
		log.Debug("request rejected", fields...)
	}
	http.Error(w, http.StatusText(code), code)
}
