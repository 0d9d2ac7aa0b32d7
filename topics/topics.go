// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package topics contains the topic naming conventions of the telemetry broker.
//
// Devices publish under "{prefix}/{tenantId}/...", where tenantId is a UUID:
//
//	{prefix}/{tenantId}/sensordata            generic sensor samples
//	{prefix}/{tenantId}/readings              typed readings
//	{prefix}/{tenantId}/hubs/{hubId}/status   bare status token
//	{prefix}/{tenantId}/alerts                reserved
package topics

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// DefaultPrefix is the first topic level of all telemetry topics
const DefaultPrefix = "myiotgrid"

// LoRaWANUplinkFilter is owned by an external LoRaWAN network server bridge
const LoRaWANUplinkFilter = "application/+/device/+/event/up"

// Topic formats
var (
	SensorDataTopicFormat = "%s/%s/sensordata"
	ReadingsTopicFormat   = "%s/%s/readings"
	HubStatusTopicFormat  = "%s/%s/hubs/%s/status"
	AlertsTopicFormat     = "%s/%s/alerts"
)

// Capture group names used in route patterns
const (
	TenantParam = "tenant"
	HubParam    = "hub"
)

// Scheme builds topics, filters and patterns for one prefix
type Scheme struct {
	Prefix string
}

// New returns a Scheme for the prefix, or the default prefix if empty
func New(prefix string) Scheme {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Scheme{Prefix: prefix}
}

// SensorData returns the sensor data topic of a tenant
func (s Scheme) SensorData(tenantID uuid.UUID) string {
	return fmt.Sprintf(SensorDataTopicFormat, s.Prefix, tenantID)
}

// Readings returns the readings topic of a tenant
func (s Scheme) Readings(tenantID uuid.UUID) string {
	return fmt.Sprintf(ReadingsTopicFormat, s.Prefix, tenantID)
}

// HubStatus returns the status topic of a hub
func (s Scheme) HubStatus(tenantID uuid.UUID, hubID string) string {
	return fmt.Sprintf(HubStatusTopicFormat, s.Prefix, tenantID, hubID)
}

// Alerts returns the (reserved) alerts topic of a tenant
func (s Scheme) Alerts(tenantID uuid.UUID) string {
	return fmt.Sprintf(AlertsTopicFormat, s.Prefix, tenantID)
}

// Filters returns the wildcard subscriptions for all routed topics
func (s Scheme) Filters() []string {
	return []string{
		fmt.Sprintf(SensorDataTopicFormat, s.Prefix, "+"),
		fmt.Sprintf(ReadingsTopicFormat, s.Prefix, "+"),
		fmt.Sprintf(HubStatusTopicFormat, s.Prefix, "+", "+"),
	}
}

// SensorDataPattern matches sensor data topics
func (s Scheme) SensorDataPattern() *regexp.Regexp {
	return s.pattern(`/(?P<tenant>[^/]+)/sensordata$`)
}

// ReadingsPattern matches readings topics
func (s Scheme) ReadingsPattern() *regexp.Regexp {
	return s.pattern(`/(?P<tenant>[^/]+)/readings$`)
}

// HubStatusPattern matches hub status topics
func (s Scheme) HubStatusPattern() *regexp.Regexp {
	return s.pattern(`/(?P<tenant>[^/]+)/hubs/(?P<hub>[^/]+)/status$`)
}

func (s Scheme) pattern(suffix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(s.Prefix) + suffix)
}
