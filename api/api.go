// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package api serves the HTTP endpoints of the bridge that are not driven by
// the broker: node debugging, alert acknowledgement and latest readings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TenantHeader is the header that carries the tenant of a request
const TenantHeader = "X-Tenant-Id"

// ErrNoTenant is returned when a request has no valid tenant
var ErrNoTenant = errors.New("api: no tenant")

// DebugService handles node debugging
type DebugService interface {
	IngestLogs(ctx context.Context, scope *types.TenantScope, batch *types.DebugLogBatch) (int, error)
	SetDebugLevel(ctx context.Context, scope *types.TenantScope, nodeID string, in *types.SetNodeDebugLevel) (*types.NodeDebugConfiguration, error)
	GetConfiguration(ctx context.Context, scope *types.TenantScope, nodeID string) (*types.NodeDebugConfiguration, error)
}

// AlertService acknowledges alerts
type AlertService interface {
	Acknowledge(ctx context.Context, scope *types.TenantScope, alertID uuid.UUID) (*types.Alert, error)
}

// ReadingService lists readings
type ReadingService interface {
	Latest(ctx context.Context, scope *types.TenantScope) ([]*types.Reading, error)
}

// API serves the HTTP endpoints
type API struct {
	ctx           log.Interface
	defaultTenant uuid.UUID
	debug         DebugService
	alerts        AlertService
	readings      ReadingService
}

// New returns a new API. Requests without tenant header use the default tenant, unless it is the nil UUID.
func New(debug DebugService, alerts AlertService, readings ReadingService, defaultTenant uuid.UUID, ctx log.Interface) *API {
	return &API{
		ctx:           ctx.WithField("Component", "API"),
		defaultTenant: defaultTenant,
		debug:         debug,
		alerts:        alerts,
		readings:      readings,
	}
}

// Routes returns the router of the API
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/readings/latest", a.tenant(a.latestReadings))
	r.Post("/alerts/{alertId}/acknowledge", a.tenant(a.acknowledgeAlert))
	r.Route("/nodes/{nodeId}/debug", func(r chi.Router) {
		r.Get("/", a.tenant(a.getDebugConfiguration))
		r.Put("/", a.tenant(a.setDebugLevel))
		r.Post("/logs", a.tenant(a.ingestLogs))
	})
	return r
}

type tenantHandlerFunc func(w http.ResponseWriter, r *http.Request, scope *types.TenantScope)

func (a *API) resolveTenant(r *http.Request) (uuid.UUID, error) {
	if tenant := r.Header.Get(TenantHeader); tenant != "" {
		return uuid.Parse(tenant)
	}
	if a.defaultTenant != uuid.Nil {
		return a.defaultTenant, nil
	}
	return uuid.Nil, ErrNoTenant
}

// tenant runs the handler in the scope of the tenant of the request
func (a *API) tenant(f tenantHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := a.resolveTenant(r)
		if err != nil {
			a.writeError(w, r, http.StatusUnauthorized, ErrNoTenant)
			return
		}
		scope := types.NewTenantScope(tenantID, r.URL.Path)
		defer scope.End()
		f(w, r, scope)
	}
}

func (a *API) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.ctx.WithError(err).Debug("Could not write response")
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	ctx := a.ctx.WithFields(log.Fields{
		"Method": r.Method,
		"Path":   r.URL.Path,
		"Status": code,
	}).WithError(err)
	if code >= http.StatusInternalServerError {
		ctx.Error("Request failed")
	} else {
		ctx.Debug("Request refused")
	}
	a.writeJSON(w, code, map[string]string{"error": err.Error()})
}
