package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/api"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/readsign"
	memorystorage "github.com/driverdesk/driverdesk/pkg/driverdesk/storage/memory"
)

// countingStore wraps a BlobStore and counts read-path calls, so tests can
// assert the proxy rejects bad signatures before touching storage at all.
type countingStore struct {
	driverdesk.BlobStore
	reads atomic.Int64
}

func (c *countingStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	c.reads.Add(1)
	return c.BlobStore.Download(ctx, key)
}

func (c *countingStore) GetObjectMeta(ctx context.Context, key string) (*driverdesk.ObjectMeta, error) {
	c.reads.Add(1)
	return c.BlobStore.GetObjectMeta(ctx, key)
}

type proxyFixture struct {
	handler http.Handler
	signer  *readsign.Signer
	store   *countingStore
}

func newProxyFixture(t *testing.T) *proxyFixture {
	t.Helper()

	store := &countingStore{BlobStore: memorystorage.New()}
	svc := newServiceWithStore(t, store)

	signer, err := readsign.New([]byte("proxy-test-secret"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/files/", http.StripPrefix("/files", api.NewProxyHandler(svc, signer).Routes()))
	return &proxyFixture{handler: mux, signer: signer, store: store}
}

func (f *proxyFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestProxyMissingSignatureIs401(t *testing.T) {
	f := newProxyFixture(t)

	rec := f.get(t, "/files/applications%2Fapp-1%2Fdoc-citizen-id.jpg")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.store.reads.Load(), "storage should not be touched before the signature check")
}

func TestProxyWrongSignatureIs403(t *testing.T) {
	f := newProxyFixture(t)

	rec := f.get(t, "/files/applications%2Fapp-1%2Fdoc-citizen-id.jpg?signature=deadbeef")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, f.store.reads.Load(), "storage should not be touched on a bad signature")
}

func TestProxySignatureBindsKeyNotContent(t *testing.T) {
	f := newProxyFixture(t)
	ctx := context.Background()

	keyA := "applications/app-1/doc-citizen-id.jpg"
	keyB := "applications/app-2/doc-citizen-id.jpg"
	require.NoError(t, f.store.BlobStore.Upload(ctx, keyA, bodyReader("a"), "image/jpeg"))
	require.NoError(t, f.store.BlobStore.Upload(ctx, keyB, bodyReader("b"), "image/jpeg"))

	sigA := f.signer.Sign(keyA)

	// The signature for key A opens key A.
	rec := f.get(t, "/files/"+url.PathEscape(keyA)+"?signature="+sigA)
	assert.Equal(t, http.StatusOK, rec.Code)

	// It does not open key B.
	rec = f.get(t, "/files/"+url.PathEscape(keyB)+"?signature="+sigA)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProxyValidSignatureServesObject(t *testing.T) {
	f := newProxyFixture(t)
	ctx := context.Background()

	key := "applications/app-1/doc-citizen-id.jpg"
	require.NoError(t, f.store.BlobStore.Upload(ctx, key, bodyReader("scan bytes"), "image/jpeg"))

	rec := f.get(t, "/files/"+url.PathEscape(key)+"?signature="+f.signer.Sign(key))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scan bytes", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProxyEncodingSymmetry(t *testing.T) {
	// The signature covers the decoded key; the request may carry the key
	// either fully encoded or with raw slashes. Both must verify.
	f := newProxyFixture(t)
	ctx := context.Background()

	key := "applications/app-1/doc-citizen-id.jpg"
	require.NoError(t, f.store.BlobStore.Upload(ctx, key, bodyReader("x"), "image/jpeg"))
	sig := f.signer.Sign(key)

	rec := f.get(t, "/files/"+url.PathEscape(key)+"?signature="+sig)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.get(t, "/files/"+key+"?signature="+sig)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProxyAbsentObjectIs404(t *testing.T) {
	f := newProxyFixture(t)

	key := "applications/app-1/doc-citizen-id.jpg"
	rec := f.get(t, "/files/"+url.PathEscape(key)+"?signature="+f.signer.Sign(key))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// brokenStore fails every read with an error that is not ErrObjectNotFound,
// standing in for an unreachable bucket.
type brokenStore struct {
	driverdesk.BlobStore
}

func (brokenStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("connection reset by peer")
}

func TestProxyStoreFailureIs502(t *testing.T) {
	svc := newServiceWithStore(t, brokenStore{BlobStore: memorystorage.New()})

	signer, err := readsign.New([]byte("proxy-test-secret"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/files/", http.StripPrefix("/files", api.NewProxyHandler(svc, signer).Routes()))

	key := "applications/app-1/doc-citizen-id.jpg"
	req := httptest.NewRequest(http.MethodGet, "/files/"+url.PathEscape(key)+"?signature="+signer.Sign(key), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxyRejectsOtherMethods(t *testing.T) {
	f := newProxyFixture(t)

	key := "applications/app-1/doc-citizen-id.jpg"
	req := httptest.NewRequest(http.MethodPost, "/files/"+url.PathEscape(key)+"?signature="+f.signer.Sign(key), nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProxyHeadOmitsBody(t *testing.T) {
	f := newProxyFixture(t)
	ctx := context.Background()

	key := "applications/app-1/doc-citizen-id.jpg"
	require.NoError(t, f.store.BlobStore.Upload(ctx, key, bodyReader("scan bytes"), "image/jpeg"))

	req := httptest.NewRequest(http.MethodHead, "/files/"+url.PathEscape(key)+"?signature="+f.signer.Sign(key), nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}
