// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package monitor marks hubs offline when they stop reporting.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// HubService tracks hubs
type HubService interface {
	Lock(tenantID uuid.UUID, hubID string) (unlock func())
	GetOrCreate(ctx context.Context, scope *types.TenantScope, hubID string) (*types.Hub, error)
	SetOnlineStatus(ctx context.Context, scope *types.TenantScope, hub *types.Hub, online bool) (bool, error)
}

// AlertService raises hub alerts
type AlertService interface {
	CreateHubOfflineAlert(ctx context.Context, scope *types.TenantScope, hub *types.Hub) (*types.Alert, error)
}

// ExpireTimeout is the time that marking a hub offline may take
var ExpireTimeout = 10 * time.Second

type hubKey struct {
	tenantID uuid.UUID
	hubID    string
}

// HubMonitor keeps a watchdog per hub that reported online
type HubMonitor struct {
	ctx     log.Interface
	hubs    HubService
	alerts  AlertService
	timeout time.Duration

	mu        sync.Mutex
	watchdogs map[hubKey]*watchdog
	stopped   bool
}

// New returns a new HubMonitor. A hub that does not report within the timeout is marked offline.
func New(hubs HubService, alerts AlertService, timeout time.Duration, ctx log.Interface) *HubMonitor {
	return &HubMonitor{
		ctx:       ctx.WithField("Component", "HubMonitor"),
		hubs:      hubs,
		alerts:    alerts,
		timeout:   timeout,
		watchdogs: make(map[hubKey]*watchdog),
	}
}

// Seen kicks the watchdog of the hub
func (m *HubMonitor) Seen(tenantID uuid.UUID, hubID string) {
	key := hubKey{tenantID, hubID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if existing, ok := m.watchdogs[key]; ok && existing.Kick() {
		return
	}
	var w *watchdog
	w = newWatchdog(m.timeout, func() { m.expire(key, w) })
	m.watchdogs[key] = w
}

// Forget stops watching the hub
func (m *HubMonitor) Forget(tenantID uuid.UUID, hubID string) {
	key := hubKey{tenantID, hubID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.watchdogs[key]; ok {
		w.Stop()
		delete(m.watchdogs, key)
	}
}

// Watching returns the number of hubs with a running watchdog
func (m *HubMonitor) Watching() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchdogs)
}

// Stop all watchdogs
func (m *HubMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for key, w := range m.watchdogs {
		w.Stop()
		delete(m.watchdogs, key)
	}
}

func (m *HubMonitor) expire(key hubKey, w *watchdog) {
	// The hub lock is taken before mu, as the status handler does when it calls Seen.
	unlock := m.hubs.Lock(key.tenantID, key.hubID)
	defer unlock()

	m.mu.Lock()
	if m.stopped || m.watchdogs[key] != w {
		m.mu.Unlock()
		return
	}
	delete(m.watchdogs, key)
	m.mu.Unlock()

	ctx := m.ctx.WithFields(log.Fields{
		"TenantID": key.tenantID,
		"HubID":    key.hubID,
	})
	scope := types.NewTenantScope(key.tenantID, "")
	defer scope.End()
	bg, cancel := context.WithTimeout(context.Background(), ExpireTimeout)
	defer cancel()

	hub, err := m.hubs.GetOrCreate(bg, scope, key.hubID)
	if err != nil {
		ctx.WithError(err).Error("Could not get hub")
		return
	}
	changed, err := m.hubs.SetOnlineStatus(bg, scope, hub, false)
	if err != nil {
		ctx.WithError(err).Error("Could not set hub status")
		return
	}
	if !changed {
		return
	}
	ctx.WithField("Timeout", m.timeout).Warn("Hub stopped reporting")
	if _, err := m.alerts.CreateHubOfflineAlert(bg, scope, hub); err != nil {
		ctx.WithError(err).Error("Could not raise offline alert")
	}
}
