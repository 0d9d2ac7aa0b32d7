// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package service implements the domain operations that the message handlers
// and the HTTP API call. Every operation takes the tenant explicitly.
package service

import (
	"errors"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/google/uuid"
)

// ErrRemoteLoggingDisabled is returned when a node sends debug logs while remote logging is off
var ErrRemoteLoggingDisabled = errors.New("service: remote logging disabled")

// Notifier publishes domain events to live connections
type Notifier interface {
	NotifyNewReading(tenantID uuid.UUID, reading *types.Reading)
	NotifyAlertRaised(tenantID uuid.UUID, alert *types.Alert)
	NotifyAlertAcknowledged(tenantID uuid.UUID, alert *types.Alert)
	NotifyHubStatusChanged(tenantID uuid.UUID, hub *types.Hub)
	NotifyDebugLog(nodeID string, entry *types.NodeDebugLog)
	NotifyDebugConfigChanged(nodeID string, config *types.NodeDebugConfiguration)
}

var now = func() time.Time { return time.Now().UTC() }
