package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	err error
}

func (v *stubVerifier) Verify(context.Context, *http.Request, []byte) error {
	return v.err
}

func newVerifiedRouter(t *testing.T, verifier SignatureVerifier, opts ...Option) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	sub := Bind(r, "/webhooks", verifier, opts...)
	require.NotNil(t, sub)
	sub.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)
	return r
}

func TestMiddleware_PassesValidRequest(t *testing.T) {
	r := newVerifiedRouter(t, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RejectsBadSignature(t *testing.T) {
	r := newVerifiedRouter(t, &stubVerifier{err: errors.New("signature mismatch")})

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body webhookError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "WEBHOOK_UNAUTHORIZED", body.Code)
}

func TestMiddleware_RequiredHeaders(t *testing.T) {
	r := newVerifiedRouter(t, &stubVerifier{}, WithRequiredHeaders("X-Shopify-Topic", "X-Shopify-Shop-Domain"))

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{}`))
	req.Header.Set("X-Shopify-Topic", "orders/create")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body webhookError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "WEBHOOK_MISSING_HEADER", body.Code)
	require.Equal(t, "X-Shopify-Shop-Domain", body.Meta["header"])
}

func TestMiddleware_PayloadTooLarge(t *testing.T) {
	r := newVerifiedRouter(t, &stubVerifier{}, WithMaxBodyBytes(8))

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMiddleware_BodyRestoredForHandler(t *testing.T) {
	r := mux.NewRouter()
	sub := Bind(r, "/webhooks", &stubVerifier{})
	var got string
	sub.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 64)
		n, _ := r.Body.Read(b)
		got = string(b[:n])
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{"id":7}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"id":7}`, got)
}
