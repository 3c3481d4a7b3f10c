package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSegments(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{"plain", "/ReadEntityAdmin/DataTable", []string{"ReadEntityAdmin", "DataTable"}},
		{"empty segments dropped", "//ReadEntityAdmin///DataTable/", []string{"ReadEntityAdmin", "DataTable"}},
		{"escaped slash stays in segment", "/PushStatus/USA/a%2Fb", []string{"PushStatus", "USA", "a/b"}},
		{"spaces and commas", "/AddFriend/u/UK/Franklin,%20Aretha", []string{"AddFriend", "u", "UK", "Franklin, Aretha"}},
		{"root", "/", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			got, err := segments(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathArgs(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ReadEntityAdmin/DataTable/USA/Row", nil)

	_, ok := pathArgs(r, 2, 3)
	assert.False(t, ok)

	segs, ok := pathArgs(r, 2, 4)
	require.True(t, ok)
	assert.Equal(t, "Row", segs[3])
}

func jsonRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestJSONBody(t *testing.T) {
	got, err := jsonBody(jsonRequest(`{"Status":"hi","Count":3,"Tags":[1, 2],"Nested":{"a": true}}`, "application/json"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Status": "hi",
		"Count":  "3",
		"Tags":   "[1,2]",
		"Nested": `{"a":true}`,
	}, got)
}

func TestJSONBody_ContentType(t *testing.T) {
	got, err := jsonBody(jsonRequest(`{"Status":"hi"}`, "application/json; charset=utf-8"))
	require.NoError(t, err)
	assert.Equal(t, "hi", got["Status"])

	got, err = jsonBody(jsonRequest(`{"Status":"hi"}`, "text/plain"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = jsonBody(jsonRequest(`not json at all`, ""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJSONBody_Malformed(t *testing.T) {
	for _, body := range []string{`{"Status":`, `["a"]`, `"text"`} {
		_, err := jsonBody(jsonRequest(body, "application/json"))
		assert.ErrorIs(t, err, errBadBody, body)
	}

	got, err := jsonBody(jsonRequest("  \n", "application/json"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSingleProperty(t *testing.T) {
	v, ok := singleProperty(map[string]string{"Password": "pw"}, "Password")
	assert.True(t, ok)
	assert.Equal(t, "pw", v)

	_, ok = singleProperty(map[string]string{"Password": ""}, "Password")
	assert.False(t, ok)
	_, ok = singleProperty(map[string]string{"Password": "pw", "x": "y"}, "Password")
	assert.False(t, ok)
	_, ok = singleProperty(map[string]string{}, "Password")
	assert.False(t, ok)
}

func TestUnknownOperation(t *testing.T) {
	w := httptest.NewRecorder()
	UnknownOperation(w, httptest.NewRequest(http.MethodGet, "/Nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFail_LogsRouteNotPath(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)
	r := chi.NewRouter()
	operation(r, http.MethodPut, "UpdateEntityAuth", func(w http.ResponseWriter, r *http.Request) {
		fail(w, r, log, http.StatusForbidden, errors.New("token rejected"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/UpdateEntityAuth/DataTable/secret-token/USA/Row", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/UpdateEntityAuth/*", fields["route"])
	for k, v := range fields {
		assert.NotContains(t, fmt.Sprint(v), "secret-token", k)
	}
}

func TestUnrouted_WrongMethodIsUnknownOperation(t *testing.T) {
	r := chi.NewRouter()
	Unrouted(r)
	operation(r, http.MethodPost, "SignOn", func(w http.ResponseWriter, r *http.Request) {})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/SignOn/aretha", nil),
		httptest.NewRequest(http.MethodPost, "/SignOut/aretha", nil),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, req.Method+" "+req.URL.Path)
	}
}
