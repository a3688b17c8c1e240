package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/api"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/auth"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/readsign"
	repomemory "github.com/driverdesk/driverdesk/pkg/driverdesk/repo/memory"
	memorystorage "github.com/driverdesk/driverdesk/pkg/driverdesk/storage/memory"
)

func bodyReader(s string) io.Reader { return strings.NewReader(s) }

func newServiceWithStore(t *testing.T, store driverdesk.BlobStore) driverdesk.Service {
	t.Helper()
	svc, err := driverdesk.New(
		driverdesk.WithRepository(repomemory.New()),
		driverdesk.WithBlobStore(store),
	)
	require.NoError(t, err)
	return svc
}

// apiFixture wires the full router over in-memory backends with one
// registered staff user.
type apiFixture struct {
	router  http.Handler
	service driverdesk.Service
	store   *memorystorage.Backend
	signer  *readsign.Signer
	token   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	repo := repomemory.New()
	store := memorystorage.New()
	svc, err := driverdesk.New(
		driverdesk.WithRepository(repo),
		driverdesk.WithBlobStore(store),
	)
	require.NoError(t, err)

	signer, err := readsign.New([]byte("api-test-secret"))
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer([]byte("api-test-jwt-secret"), time.Hour)
	require.NoError(t, err)
	authSvc := auth.NewService(repo, issuer)

	_, err = authSvc.Register(context.Background(), "reviewer", "hunter2-but-longer", "staff")
	require.NoError(t, err)
	token, _, err := authSvc.Login(context.Background(), "reviewer", "hunter2-but-longer")
	require.NoError(t, err)

	return &apiFixture{
		router:  api.NewRouter(svc, signer, authSvc, issuer),
		service: svc,
		store:   store,
		signer:  signer,
		token:   token,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, staff bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if staff {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
