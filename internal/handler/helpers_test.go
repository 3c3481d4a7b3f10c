package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/adapter"
	"github.com/jun/socialnet/internal/adapter/memory"
	"github.com/jun/socialnet/internal/auth"
	"github.com/jun/socialnet/internal/client"
	"github.com/jun/socialnet/internal/crypto"
	"github.com/jun/socialnet/internal/handler"
	"github.com/jun/socialnet/internal/model"
	"github.com/jun/socialnet/internal/push"
	"github.com/jun/socialnet/internal/session"
	"github.com/jun/socialnet/internal/token"
	"github.com/jun/socialnet/internal/user"
)

// stack runs all four services against one in-memory store.
type stack struct {
	store    *adapter.ScopedStore
	sessions *session.Manager

	data *httptest.Server
	auth *httptest.Server
	user *httptest.Server
	push *httptest.Server
}

func mount(routes func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	handler.Unrouted(r)
	routes(r)
	return r
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := zap.NewNop()

	signer, err := crypto.NewLocalSigner([]byte("handler-test-key"))
	require.NoError(t, err)
	st := &stack{
		store:    adapter.NewScopedStore(memory.NewStore(), token.NewAuthority(signer)),
		sessions: session.NewManager(),
	}

	st.data = httptest.NewServer(mount(handler.NewDataHandler(st.store, log).Routes))
	t.Cleanup(st.data.Close)
	st.auth = httptest.NewServer(mount(handler.NewAuthHandler(auth.NewService(st.store, time.Hour), log).Routes))
	t.Cleanup(st.auth.Close)

	opts := client.DefaultOptions()
	dataClient := client.NewDataService(client.New("data", st.data.URL, opts, log))

	pusher := push.NewService(dataClient, noop.NewTracerProvider().Tracer("test"), nil, log)
	st.push = httptest.NewServer(mount(handler.NewPushHandler(pusher, log).Routes))
	t.Cleanup(st.push.Close)

	users := user.NewService(
		dataClient,
		client.NewAuthService(client.New("auth", st.auth.URL, opts, log)),
		client.NewPushService(client.New("push", st.push.URL, opts, log)),
		st.sessions,
		time.Hour,
		log,
	)
	st.user = httptest.NewServer(mount(handler.NewUserHandler(users, log).Routes))
	t.Cleanup(st.user.Close)

	return st
}

// provision creates both tables, a credential record and a social record.
func (st *stack) provision(t *testing.T, userID, password, partition, row, friends string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range []string{model.AuthTable, model.DataTable} {
		_, err := st.store.CreateTable(ctx, table)
		require.NoError(t, err)
	}
	require.NoError(t, st.store.Put(ctx, model.AuthTable, adapter.Entity{
		Partition: model.CredentialPartition,
		Row:       userID,
		Properties: map[string]any{
			model.PropPassword:      password,
			model.PropDataPartition: partition,
			model.PropDataRow:       row,
		},
	}, adapter.InsertOrMerge))
	require.NoError(t, st.store.Put(ctx, model.DataTable, adapter.Entity{
		Partition: partition,
		Row:       row,
		Properties: map[string]any{
			model.PropFriends: friends,
			model.PropStatus:  "",
			model.PropUpdates: "",
		},
	}, adapter.InsertOrMerge))
}

func (st *stack) entity(t *testing.T, table, partition, row string) map[string]any {
	t.Helper()
	e, err := st.store.Get(context.Background(), table, partition, row)
	require.NoError(t, err)
	return e.Properties
}

// target joins escaped path segments onto base.
func target(base string, segs ...string) string {
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = url.PathEscape(s)
	}
	return base + "/" + strings.Join(escaped, "/")
}

// call sends a request with body encoded as JSON when non-nil and returns the
// status and raw body.
func call(t *testing.T, method, target string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, target, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}
