// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/google/uuid"
)

type tenantState struct {
	hubs      map[string]types.Hub
	readings  map[string]types.Reading
	readingID int64
	alerts    map[uuid.UUID]types.Alert
	debug     map[string]types.NodeDebugConfiguration
}

// NewMemory returns a Store that keeps everything in memory
func NewMemory() Store {
	return &memory{
		tenants: make(map[uuid.UUID]*tenantState),
	}
}

type memory struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*tenantState
}

// tenant must be called with the lock held
func (m *memory) tenant(tenantID uuid.UUID) *tenantState {
	t, ok := m.tenants[tenantID]
	if !ok {
		t = &tenantState{
			hubs:     make(map[string]types.Hub),
			readings: make(map[string]types.Reading),
			alerts:   make(map[uuid.UUID]types.Alert),
			debug:    make(map[string]types.NodeDebugConfiguration),
		}
		m.tenants[tenantID] = t
	}
	return t
}

func (m *memory) GetHub(_ context.Context, tenantID uuid.UUID, hubID string) (*types.Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hub, ok := m.tenant(tenantID).hubs[hubID]
	if !ok {
		return nil, ErrNotFound
	}
	return &hub, nil
}

func (m *memory) SaveHub(_ context.Context, hub *types.Hub) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(hub.TenantID).hubs[hub.HubID] = *hub
	return nil
}

func (m *memory) NextReadingID(_ context.Context, tenantID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenantID)
	t.readingID++
	return t.readingID, nil
}

func (m *memory) SaveReading(_ context.Context, reading *types.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(reading.TenantID)
	if existing, ok := t.readings[reading.NodeID]; ok && existing.Timestamp.After(reading.Timestamp) {
		return nil
	}
	t.readings[reading.NodeID] = *reading
	return nil
}

func (m *memory) LatestReadings(_ context.Context, tenantID uuid.UUID) ([]*types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenantID)
	readings := make([]*types.Reading, 0, len(t.readings))
	for _, reading := range t.readings {
		reading := reading
		readings = append(readings, &reading)
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].NodeID < readings[j].NodeID })
	return readings, nil
}

func (m *memory) GetAlert(_ context.Context, tenantID, alertID uuid.UUID) (*types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.tenant(tenantID).alerts[alertID]
	if !ok {
		return nil, ErrNotFound
	}
	return &alert, nil
}

func (m *memory) SaveAlert(_ context.Context, alert *types.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(alert.TenantID).alerts[alert.ID] = *alert
	return nil
}

func (m *memory) Alerts(_ context.Context, tenantID uuid.UUID) ([]*types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenantID)
	alerts := make([]*types.Alert, 0, len(t.alerts))
	for _, alert := range t.alerts {
		alert := alert
		alerts = append(alerts, &alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.Before(alerts[j].CreatedAt) })
	return alerts, nil
}

func (m *memory) GetDebugConfiguration(_ context.Context, tenantID uuid.UUID, nodeID string) (*types.NodeDebugConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	config, ok := m.tenant(tenantID).debug[nodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &config, nil
}

func (m *memory) SaveDebugConfiguration(_ context.Context, tenantID uuid.UUID, config *types.NodeDebugConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenantID).debug[config.NodeID] = *config
	return nil
}
