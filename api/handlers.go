// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TheThingsNetwork/iotgrid-bridge/service"
	"github.com/TheThingsNetwork/iotgrid-bridge/store"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (a *API) latestReadings(w http.ResponseWriter, r *http.Request, scope *types.TenantScope) {
	readings, err := a.readings.Latest(r.Context(), scope)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, readings)
}

func (a *API) acknowledgeAlert(w http.ResponseWriter, r *http.Request, scope *types.TenantScope) {
	alertID, err := uuid.Parse(chi.URLParam(r, "alertId"))
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	alert, err := a.alerts.Acknowledge(r.Context(), scope, alertID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, r, http.StatusNotFound, err)
	case err != nil:
		a.writeError(w, r, http.StatusInternalServerError, err)
	default:
		a.writeJSON(w, http.StatusOK, alert)
	}
}

func (a *API) getDebugConfiguration(w http.ResponseWriter, r *http.Request, scope *types.TenantScope) {
	config, err := a.debug.GetConfiguration(r.Context(), scope, chi.URLParam(r, "nodeId"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, r, http.StatusNotFound, err)
	case err != nil:
		a.writeError(w, r, http.StatusInternalServerError, err)
	default:
		a.writeJSON(w, http.StatusOK, config)
	}
}

func (a *API) setDebugLevel(w http.ResponseWriter, r *http.Request, scope *types.TenantScope) {
	var in types.SetNodeDebugLevel
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	config, err := a.debug.SetDebugLevel(r.Context(), scope, chi.URLParam(r, "nodeId"), &in)
	switch {
	case errors.Is(err, service.ErrInvalidDebugLevel):
		a.writeError(w, r, http.StatusBadRequest, err)
	case err != nil:
		a.writeError(w, r, http.StatusInternalServerError, err)
	default:
		a.writeJSON(w, http.StatusOK, config)
	}
}

func (a *API) ingestLogs(w http.ResponseWriter, r *http.Request, scope *types.TenantScope) {
	var batch types.DebugLogBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	batch.NodeID = chi.URLParam(r, "nodeId")
	accepted, err := a.debug.IngestLogs(r.Context(), scope, &batch)
	if err != nil && !errors.Is(err, service.ErrRemoteLoggingDisabled) {
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int{"accepted": accepted})
}
