package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yonalabs/commerce-relay/pkg/client"
	"github.com/yonalabs/commerce-relay/pkg/dedupe"
	"github.com/yonalabs/commerce-relay/pkg/httpapi"
	"github.com/yonalabs/commerce-relay/pkg/persistence"
	"github.com/yonalabs/commerce-relay/pkg/ratelimit"
	"github.com/yonalabs/commerce-relay/pkg/relay"
	"github.com/yonalabs/commerce-relay/pkg/shopify"
	"github.com/yonalabs/commerce-relay/pkg/webhooks"
)

// StoreDirectory is the slice of the core service the webhook intake
// needs: resolving shops and flagging uninstalls.
type StoreDirectory interface {
	StoreByDomain(ctx context.Context, domain string) (*client.Store, error)
	MarkUninstalled(ctx context.Context, storeID string) error
}

type WebhookControllerOptions struct {
	BasePath     string
	Secret       string
	MaxBodyBytes int64

	Stores   StoreDirectory
	Queue    *relay.Queue
	Dedupe   *dedupe.Cache
	Limiter  *ratelimit.ShopLimiter
	Recorder *relay.Recorder
	EventLog *persistence.EventLogRepository

	Logger *logrus.Entry
}

// WebhookController admits Shopify webhook deliveries into the
// forwarding pipeline.
type WebhookController struct {
	opts WebhookControllerOptions
}

func NewWebhookController(opts WebhookControllerOptions) *WebhookController {
	if opts.BasePath == "" {
		opts.BasePath = "/webhooks"
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = logrus.NewEntry(l)
	}
	return &WebhookController{opts: opts}
}

func (c *WebhookController) Key() string {
	return c.opts.BasePath
}

func (c *WebhookController) Register(r *mux.Router) {
	verifier := &shopify.Verifier{Secret: c.opts.Secret}
	sub := webhooks.Bind(
		r,
		c.opts.BasePath,
		verifier,
		webhooks.WithMaxBodyBytes(c.opts.MaxBodyBytes),
		webhooks.WithRequiredHeaders(shopify.HeaderTopic, shopify.HeaderShopDomain),
	)
	sub.HandleFunc("", c.handle).Methods(http.MethodPost)
}

func (c *WebhookController) handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topic := r.Header.Get(shopify.HeaderTopic)
	shopDomain := r.Header.Get(shopify.HeaderShopDomain)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "WEBHOOK_BAD_REQUEST", "failed to read payload", httpapi.RequestMeta(r))
		return
	}

	log := c.opts.Logger.WithFields(logrus.Fields{
		"shop":  shopDomain,
		"topic": topic,
	})

	key := dedupe.Key(shopDomain, topic, body)
	if c.opts.Dedupe.Seen(key) {
		c.opts.Recorder.RecordDuplicate(shopDomain)
		log.Debug("duplicate delivery dropped")
		_ = httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Allow(ctx, shopDomain); err != nil {
			if errors.Is(err, ratelimit.ErrLimitExceeded) {
				c.opts.Recorder.RecordRateLimited(shopDomain)
				_ = httpapi.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many deliveries for shop", httpapi.RequestMeta(r))
				return
			}
			log.WithError(err).Error("rate limiter failure")
			_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", httpapi.RequestMeta(r))
			return
		}
	}

	store, err := c.opts.Stores.StoreByDomain(ctx, shopDomain)
	if err != nil {
		if errors.Is(err, client.ErrStoreNotFound) {
			_ = httpapi.WriteError(w, http.StatusNotFound, "STORE_NOT_FOUND", "shop is not registered", httpapi.RequestMeta(r))
			return
		}
		log.WithError(err).Error("store lookup failed")
		_ = httpapi.WriteError(w, http.StatusInternalServerError, "STORE_LOOKUP_FAILED", "failed to resolve shop", httpapi.RequestMeta(r))
		return
	}

	if shopify.IsUninstall(topic) {
		// Best effort: the uninstall event is still forwarded below.
		if err := c.opts.Stores.MarkUninstalled(ctx, store.ID); err != nil {
			log.WithError(err).Warn("failed to mark store uninstalled")
		}
	}

	now := time.Now()
	eventType := shopify.CommerceEventType(topic)
	ev := relay.QueuedEvent{
		ID:         relay.NewEventID(eventType, store.ID, now),
		EventType:  eventType,
		StoreID:    store.ID,
		ShopDomain: shopDomain,
		OccurredAt: now,
		Payload:    body,
		EnqueuedAt: now,
	}

	if err := c.opts.EventLog.Insert(ctx, persistence.EventLogEntry{
		ID:         ev.ID,
		EventType:  ev.EventType,
		StoreID:    ev.StoreID,
		ShopDomain: ev.ShopDomain,
		OccurredAt: ev.OccurredAt,
		Payload:    ev.Payload,
	}); err != nil {
		log.WithError(err).Warn("failed to persist event log entry")
	}

	if err := c.opts.Queue.Enqueue(ev); err != nil {
		if errors.Is(err, relay.ErrQueueFull) {
			log.Warn("event queue full, shedding delivery")
			_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "event queue is full", httpapi.RequestMeta(r))
			return
		}
		log.WithError(err).Error("enqueue failed")
		_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", httpapi.RequestMeta(r))
		return
	}

	c.opts.Dedupe.Remember(key)
	c.opts.Recorder.RecordReceived(shopDomain)
	log.WithField("event_id", ev.ID).Info("webhook admitted")

	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "queued",
		"event_id": ev.ID,
	})
}
