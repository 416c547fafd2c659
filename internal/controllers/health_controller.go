package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/yonalabs/commerce-relay/pkg/httpapi"
)

// HealthProber checks reachability of the downstream core service.
type HealthProber interface {
	Health(ctx context.Context) error
}

type HealthController struct {
	prober  HealthProber
	timeout time.Duration
}

func NewHealthController(prober HealthProber) *HealthController {
	return &HealthController{
		prober:  prober,
		timeout: 3 * time.Second,
	}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.health).Methods(http.MethodGet)
}

func (c *HealthController) health(w http.ResponseWriter, r *http.Request) {
	core := "ok"
	if c.prober != nil {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		if err := c.prober.Health(ctx); err != nil {
			core = "unreachable"
		}
	}

	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"core_service": core,
	})
}
