// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package realtime

import (
	"github.com/TheThingsNetwork/iotgrid-bridge/status"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// Fanout publishes events to the members of their target groups
type Fanout struct {
	ctx      log.Interface
	registry *Registry
}

// NewFanout returns a new Fanout
func NewFanout(registry *Registry, ctx log.Interface) *Fanout {
	return &Fanout{
		ctx:      ctx.WithField("Component", "Fanout"),
		registry: registry,
	}
}

// Publish the event to every member of every target group. A connection that
// is in more than one target group receives the event once per group.
func (f *Fanout) Publish(evt types.OutboundEvent) {
	status.Event()
	var sent int
	for _, group := range evt.Targets {
		for _, conn := range f.registry.Members(group) {
			conn.send(evt.Type, evt.Payload)
			sent++
		}
	}
	f.ctx.WithFields(log.Fields{
		"Event":   evt.Type,
		"Targets": evt.Targets,
		"Sent":    sent,
	}).Debug("Published event")
}

// NotifyNewReading publishes a reading to its tenant and node
func (f *Fanout) NotifyNewReading(tenantID uuid.UUID, reading *types.Reading) {
	f.Publish(types.OutboundEvent{
		Type:    types.EventNewReading,
		Payload: reading,
		Targets: []types.GroupKey{types.TenantGroup(tenantID), types.DeviceGroup(reading.NodeID)},
	})
}

// NotifyAlertRaised publishes an alert to its tenant and level
func (f *Fanout) NotifyAlertRaised(tenantID uuid.UUID, alert *types.Alert) {
	f.Publish(types.OutboundEvent{
		Type:    types.EventAlertReceived,
		Payload: alert,
		Targets: []types.GroupKey{types.TenantGroup(tenantID), types.AlertGroup(alert.Level)},
	})
}

// NotifyAlertAcknowledged publishes an acknowledged alert to its tenant
func (f *Fanout) NotifyAlertAcknowledged(tenantID uuid.UUID, alert *types.Alert) {
	f.Publish(types.OutboundEvent{
		Type:    types.EventAlertAcknowledged,
		Payload: alert,
		Targets: []types.GroupKey{types.TenantGroup(tenantID)},
	})
}

// NotifyHubStatusChanged publishes a hub status change to its tenant and device
func (f *Fanout) NotifyHubStatusChanged(tenantID uuid.UUID, hub *types.Hub) {
	f.Publish(types.OutboundEvent{
		Type:    types.EventHubStatusChanged,
		Payload: hub,
		Targets: []types.GroupKey{types.TenantGroup(tenantID), types.DeviceGroup(hub.HubID)},
	})
}

// NotifyDebugLog publishes a debug log entry to the device and its debug stream
func (f *Fanout) NotifyDebugLog(nodeID string, entry *types.NodeDebugLog) {
	f.Publish(types.OutboundEvent{
		Type:    types.EventDebugLogReceived,
		Payload: entry,
		Targets: []types.GroupKey{types.DeviceGroup(nodeID), types.DebugGroup(nodeID)},
	})
}

// NotifyDebugConfigChanged publishes a debug configuration change to the device and to everyone
func (f *Fanout) NotifyDebugConfigChanged(nodeID string, config *types.NodeDebugConfiguration) {
	f.Publish(types.OutboundEvent{
		Type:    types.EventDebugConfigChanged,
		Payload: config,
		Targets: []types.GroupKey{types.DeviceGroup(nodeID), types.AllConnections},
	})
}
