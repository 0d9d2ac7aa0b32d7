// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheThingsNetwork/iotgrid-bridge/router"
	"github.com/TheThingsNetwork/iotgrid-bridge/topics"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// ParseStatus parses a hub status payload: online, 1 or true; offline, 0 or false
func ParseStatus(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "online", "1", "true":
		return true, nil
	case "offline", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidStatus, payload)
}

// HubMonitor watches hubs that reported online
type HubMonitor interface {
	Seen(tenantID uuid.UUID, hubID string)
	Forget(tenantID uuid.UUID, hubID string)
}

// HubStatus handles messages on the hub status topic
type HubStatus struct {
	ctx     log.Interface
	hubs    HubService
	alerts  AlertService
	monitor HubMonitor
}

// NewHubStatus returns a new HubStatus handler
func NewHubStatus(hubs HubService, alerts AlertService, ctx log.Interface) *HubStatus {
	return &HubStatus{
		ctx:    ctx.WithField("Handler", "HubStatus"),
		hubs:   hubs,
		alerts: alerts,
	}
}

// WithMonitor lets the monitor watch hubs that report online
func (h *HubStatus) WithMonitor(monitor HubMonitor) *HubStatus {
	h.monitor = monitor
	return h
}

// Handle implements router.Handler
func (h *HubStatus) Handle(ctx context.Context, scope *types.TenantScope, msg *types.InboundMessage, params router.Params) bool {
	hubID := params.Get(topics.HubParam)
	logger := messageContext(h.ctx, scope).WithField("HubID", hubID)
	if strings.TrimSpace(hubID) == "" {
		logger.Warn("Could not get hub from topic")
		return false
	}
	online, err := ParseStatus(msg.Payload)
	if err != nil {
		logger.WithError(err).Warn("Invalid hub status")
		return false
	}

	unlock := h.hubs.Lock(scope.TenantID, hubID)
	defer unlock()

	hub, err := h.hubs.GetOrCreate(ctx, scope, hubID)
	if err != nil {
		logger.WithError(err).Error("Could not get hub")
		return false
	}
	if _, err := h.hubs.SetOnlineStatus(ctx, scope, hub, online); err != nil {
		logger.WithError(err).Error("Could not set hub status")
		return false
	}
	if online {
		_, err = h.alerts.DeactivateHubAlerts(ctx, scope, hubID, types.AlertCodeHubOffline)
	} else {
		_, err = h.alerts.CreateHubOfflineAlert(ctx, scope, hub)
	}
	if err != nil {
		logger.WithError(err).Error("Could not update hub alerts")
		return false
	}
	if h.monitor != nil {
		if online {
			h.monitor.Seen(scope.TenantID, hubID)
		} else {
			h.monitor.Forget(scope.TenantID, hubID)
		}
	}
	logger.WithField("Online", online).Info("Handled hub status")
	return true
}
