package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/yonalabs/commerce-relay/pkg/client"
	"github.com/yonalabs/commerce-relay/pkg/dedupe"
	"github.com/yonalabs/commerce-relay/pkg/ratelimit"
	"github.com/yonalabs/commerce-relay/pkg/relay"
	"github.com/yonalabs/commerce-relay/pkg/shopify"
)

const testSecret = "shpss_test_secret"

type stubStores struct {
	mu          sync.Mutex
	stores      map[string]*client.Store
	uninstalled []string
	lookupErr   error
}

func (s *stubStores) StoreByDomain(_ context.Context, domain string) (*client.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	store, ok := s.stores[domain]
	if !ok {
		return nil, client.ErrStoreNotFound
	}
	return store, nil
}

func (s *stubStores) MarkUninstalled(_ context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uninstalled = append(s.uninstalled, storeID)
	return nil
}

type fixture struct {
	router *mux.Router
	queue  *relay.Queue
	stores *stubStores
	cache  *dedupe.Cache
}

func newFixture(t *testing.T, perMinute int64) *fixture {
	t.Helper()

	stores := &stubStores{stores: map[string]*client.Store{
		"shop-a.myshopify.com": {ID: "store-1", Domain: "shop-a.myshopify.com", Status: "active"},
	}}
	queue := relay.NewQueue(100)
	cache := dedupe.NewCache(time.Minute, 100)

	var shopLimiter *ratelimit.ShopLimiter
	if perMinute > 0 {
		shopLimiter = ratelimit.NewShopLimiter(ratelimit.NewMemoryStore(), perMinute, time.Minute)
	}

	ctrl := NewWebhookController(WebhookControllerOptions{
		Secret:   testSecret,
		Stores:   stores,
		Queue:    queue,
		Dedupe:   cache,
		Limiter:  shopLimiter,
		Recorder: relay.NewRecorder(),
	})

	r := mux.NewRouter()
	ctrl.Register(r)
	return &fixture{router: r, queue: queue, stores: stores, cache: cache}
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func deliver(f *fixture, topic, shop string, body []byte, sign bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	if topic != "" {
		req.Header.Set(shopify.HeaderTopic, topic)
	}
	if shop != "" {
		req.Header.Set(shopify.HeaderShopDomain, shop)
	}
	if sign {
		req.Header.Set(shopify.HeaderHmac, signBody(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_ValidDeliveryQueued(t *testing.T) {
	f := newFixture(t, 0)
	body := []byte(`{"id":1001,"total_price":"42.00"}`)

	rec := deliver(f, "orders/create", "shop-a.myshopify.com", body, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "queued")

	claimed := f.queue.Claim(time.Now(), 10)
	require.Len(t, claimed, 1)
	require.Equal(t, "purchase_completed", claimed[0].EventType)
	require.Equal(t, "store-1", claimed[0].StoreID)
	require.JSONEq(t, string(body), string(claimed[0].Payload))
}

func TestWebhook_MissingHeaders(t *testing.T) {
	f := newFixture(t, 0)

	rec := deliver(f, "", "shop-a.myshopify.com", []byte(`{}`), true)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = deliver(f, "orders/create", "", []byte(`{}`), true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_BadSignature(t *testing.T) {
	f := newFixture(t, 0)

	rec := deliver(f, "orders/create", "shop-a.myshopify.com", []byte(`{}`), false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 0, f.queue.Len())
}

func TestWebhook_UnknownStore(t *testing.T) {
	f := newFixture(t, 0)

	rec := deliver(f, "orders/create", "unknown.myshopify.com", []byte(`{}`), true)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 0, f.queue.Len())
}

func TestWebhook_StoreLookupFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.stores.lookupErr = errors.New("core service timeout")

	rec := deliver(f, "orders/create", "shop-a.myshopify.com", []byte(`{}`), true)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_DuplicateDropped(t *testing.T) {
	f := newFixture(t, 0)
	body := []byte(`{"id":1001}`)

	rec := deliver(f, "orders/create", "shop-a.myshopify.com", body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = deliver(f, "orders/create", "shop-a.myshopify.com", body, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "duplicate")

	// Only the first delivery reaches the queue.
	require.Equal(t, 1, f.queue.Len())
}

func TestWebhook_RateLimited(t *testing.T) {
	f := newFixture(t, 2)

	for i := 0; i < 2; i++ {
		body := []byte(fmt.Sprintf(`{"id":%d}`, i))
		rec := deliver(f, "orders/create", "shop-a.myshopify.com", body, true)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := deliver(f, "orders/create", "shop-a.myshopify.com", []byte(`{"id":99}`), true)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, 2, f.queue.Len())
}

func TestWebhook_QueueFull(t *testing.T) {
	stores := &stubStores{stores: map[string]*client.Store{
		"shop-a.myshopify.com": {ID: "store-1", Domain: "shop-a.myshopify.com"},
	}}
	queue := relay.NewQueue(1)
	cache := dedupe.NewCache(time.Minute, 100)
	ctrl := NewWebhookController(WebhookControllerOptions{
		Secret:   testSecret,
		Stores:   stores,
		Queue:    queue,
		Dedupe:   cache,
		Recorder: relay.NewRecorder(),
	})
	r := mux.NewRouter()
	ctrl.Register(r)
	f := &fixture{router: r, queue: queue, stores: stores, cache: cache}

	rec := deliver(f, "orders/create", "shop-a.myshopify.com", []byte(`{"id":1}`), true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = deliver(f, "orders/create", "shop-a.myshopify.com", []byte(`{"id":2}`), true)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// A shed delivery is not remembered, so Shopify's redelivery can
	// succeed once the queue drains.
	queue.Claim(time.Now(), 10)
	rec = deliver(f, "orders/create", "shop-a.myshopify.com", []byte(`{"id":2}`), true)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_UninstallMarksStore(t *testing.T) {
	f := newFixture(t, 0)

	rec := deliver(f, "app/uninstalled", "shop-a.myshopify.com", []byte(`{}`), true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"store-1"}, f.stores.uninstalled)

	claimed := f.queue.Claim(time.Now(), 10)
	require.Len(t, claimed, 1)
	require.Equal(t, "app_uninstalled", claimed[0].EventType)
}
