// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/TheThingsNetwork/iotgrid-bridge/store"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// HubService keeps track of hubs and their online status
type HubService struct {
	ctx    log.Interface
	store  store.Store
	notify Notifier
	locks  hubLocks
}

// NewHubService returns a new HubService
func NewHubService(s store.Store, notify Notifier, ctx log.Interface) *HubService {
	return &HubService{
		ctx:    ctx.WithField("Component", "HubService"),
		store:  s,
		notify: notify,
	}
}

// Lock serializes status updates of one hub. Callers hold it from reading the
// hub until its alerts are updated, and must call the returned func to release it.
func (h *HubService) Lock(tenantID uuid.UUID, hubID string) (unlock func()) {
	return h.locks.lock(tenantID, hubID)
}

// GetOrCreate returns the hub of the tenant, creating it if it does not exist.
// New hubs start online.
func (h *HubService) GetOrCreate(ctx context.Context, scope *types.TenantScope, hubID string) (*types.Hub, error) {
	hub, err := h.store.GetHub(ctx, scope.TenantID, hubID)
	if err == nil {
		return hub, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("could not get hub %s: %w", hubID, err)
	}
	hub = &types.Hub{
		ID:        uuid.New(),
		TenantID:  scope.TenantID,
		HubID:     hubID,
		Name:      hubID,
		IsOnline:  true,
		CreatedAt: now(),
	}
	if err := h.store.SaveHub(ctx, hub); err != nil {
		return nil, fmt.Errorf("could not create hub %s: %w", hubID, err)
	}
	h.ctx.WithFields(log.Fields{
		"TenantID": scope.TenantID,
		"HubID":    hubID,
	}).Info("Created hub")
	return hub, nil
}

// SetOnlineStatus updates the status and last seen time of the hub. Only an
// actual change is published. It returns true if the status changed.
func (h *HubService) SetOnlineStatus(ctx context.Context, scope *types.TenantScope, hub *types.Hub, online bool) (bool, error) {
	seen := now()
	changed := hub.IsOnline != online
	hub.IsOnline = online
	hub.LastSeen = &seen
	if err := h.store.SaveHub(ctx, hub); err != nil {
		return false, fmt.Errorf("could not save hub %s: %w", hub.HubID, err)
	}
	if changed {
		h.ctx.WithFields(log.Fields{
			"TenantID": scope.TenantID,
			"HubID":    hub.HubID,
			"Online":   online,
		}).Info("Hub status changed")
		h.notify.NotifyHubStatusChanged(scope.TenantID, hub)
	}
	return changed, nil
}
