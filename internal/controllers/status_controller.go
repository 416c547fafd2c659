package controllers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yonalabs/commerce-relay/pkg/httpapi"
	"github.com/yonalabs/commerce-relay/pkg/relay"
)

type StatusControllerOptions struct {
	BasePath string

	Queue    *relay.Queue
	DLQ      *relay.DeadLetterQueue
	Breaker  *relay.CircuitBreaker
	Recorder *relay.Recorder

	Logger *logrus.Entry
}

// StatusController exposes the pipeline's operational surface: status,
// metrics and dead letter inspection with manual replay.
type StatusController struct {
	opts StatusControllerOptions
}

func NewStatusController(opts StatusControllerOptions) *StatusController {
	if opts.BasePath == "" {
		opts.BasePath = "/api"
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = logrus.NewEntry(l)
	}
	return &StatusController{opts: opts}
}

func (c *StatusController) Key() string {
	return c.opts.BasePath
}

func (c *StatusController) Register(r *mux.Router) {
	sub := r.PathPrefix(c.opts.BasePath).Subrouter()
	sub.HandleFunc("/status", c.status).Methods(http.MethodGet)
	sub.HandleFunc("/metrics", c.metrics).Methods(http.MethodGet)
	sub.HandleFunc("/metrics/{shop}", c.shopMetrics).Methods(http.MethodGet)
	sub.HandleFunc("/dlq", c.listDLQ).Methods(http.MethodGet)
	sub.HandleFunc("/dlq/{id}/replay", c.replayDLQ).Methods(http.MethodPost)
}

type statusResponse struct {
	QueueDepth   int             `json:"queue_depth"`
	DLQDepth     int             `json:"dlq_depth"`
	BreakerState string          `json:"breaker_state"`
	Stats        relay.ShopStats `json:"stats"`
}

func (c *StatusController) status(w http.ResponseWriter, r *http.Request) {
	_ = httpapi.WriteJSON(w, http.StatusOK, statusResponse{
		QueueDepth:   c.opts.Queue.Len(),
		DLQDepth:     c.opts.DLQ.Len(),
		BreakerState: c.opts.Breaker.State().String(),
		Stats:        c.opts.Recorder.Global(),
	})
}

type metricsResponse struct {
	Global relay.ShopStats            `json:"global"`
	Shops  map[string]relay.ShopStats `json:"shops"`
}

func (c *StatusController) metrics(w http.ResponseWriter, r *http.Request) {
	_ = httpapi.WriteJSON(w, http.StatusOK, metricsResponse{
		Global: c.opts.Recorder.Global(),
		Shops:  c.opts.Recorder.Shops(),
	})
}

func (c *StatusController) shopMetrics(w http.ResponseWriter, r *http.Request) {
	shop := mux.Vars(r)["shop"]
	stats, ok := c.opts.Recorder.Shop(shop)
	if !ok {
		_ = httpapi.WriteError(w, http.StatusNotFound, "SHOP_NOT_FOUND", "no metrics recorded for shop", httpapi.RequestMeta(r))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, stats)
}

type deadEventResponse struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	ShopDomain string    `json:"shop_domain"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	DeadAt     time.Time `json:"dead_at"`
}

func (c *StatusController) listDLQ(w http.ResponseWriter, r *http.Request) {
	items := c.opts.DLQ.Items()
	out := make([]deadEventResponse, 0, len(items))
	for _, it := range items {
		out = append(out, deadEventResponse{
			EventID:    it.Event.ID,
			EventType:  it.Event.EventType,
			ShopDomain: it.Event.ShopDomain,
			Attempts:   it.Event.Attempts,
			LastError:  it.LastError,
			DeadAt:     it.DeadAt,
		})
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"count":  len(out),
		"events": out,
	})
}

func (c *StatusController) replayDLQ(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	dead, err := c.opts.DLQ.Take(id)
	if err != nil {
		if errors.Is(err, relay.ErrNotFound) {
			_ = httpapi.WriteError(w, http.StatusNotFound, "EVENT_NOT_FOUND", "no such dead event", httpapi.RequestMeta(r))
			return
		}
		_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", httpapi.RequestMeta(r))
		return
	}

	// Replay starts the retry budget over.
	ev := dead.Event
	ev.Attempts = 0
	ev.LastError = ""

	if err := c.opts.Queue.Enqueue(ev); err != nil {
		c.opts.DLQ.Add(dead.Event, dead.LastError)
		_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "event queue is full", httpapi.RequestMeta(r))
		return
	}

	c.opts.Logger.WithField("event_id", ev.ID).Info("dead event replayed")
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "requeued",
		"event_id": ev.ID,
	})
}
