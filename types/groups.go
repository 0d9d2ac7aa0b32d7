// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GroupKey addresses a group of live connections
type GroupKey string

// Group dimensions
const (
	TenantDimension = "tenant"
	DeviceDimension = "device"
	AlertDimension  = "alerts"
	DebugDimension  = "debug"
)

// AllConnections is a pseudo-group that every live connection is part of
const AllConnections GroupKey = "*"

// TenantGroup returns the group of all connections of a tenant
func TenantGroup(tenantID uuid.UUID) GroupKey {
	return GroupKey(TenantDimension + ":" + tenantID.String())
}

// DeviceGroup returns the group for a hub or node
func DeviceGroup(deviceID string) GroupKey {
	return GroupKey(DeviceDimension + ":" + deviceID)
}

// AlertGroup returns the group for alerts of the given level
func AlertGroup(level AlertLevel) GroupKey {
	return GroupKey(fmt.Sprintf("%s:%d", AlertDimension, level))
}

// DebugGroup returns the group for the debug stream of a device
func DebugGroup(deviceID string) GroupKey {
	return GroupKey(DebugDimension + ":" + deviceID)
}

// Dimension returns the dimension tag of the key
func (k GroupKey) Dimension() string {
	if idx := strings.IndexByte(string(k), ':'); idx > 0 {
		return string(k[:idx])
	}
	return ""
}

func (k GroupKey) String() string {
	return string(k)
}
