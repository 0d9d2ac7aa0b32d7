// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"time"

	"github.com/google/uuid"
)

// AlertLevel is the severity of an alert
type AlertLevel int

// Alert levels
const (
	AlertLevelOk AlertLevel = iota
	AlertLevelInfo
	AlertLevelWarning
	AlertLevelCritical
)

// Valid returns true for the levels 0 through 3
func (l AlertLevel) Valid() bool {
	return l >= AlertLevelOk && l <= AlertLevelCritical
}

func (l AlertLevel) String() string {
	switch l {
	case AlertLevelOk:
		return "Ok"
	case AlertLevelInfo:
		return "Info"
	case AlertLevelWarning:
		return "Warning"
	case AlertLevelCritical:
		return "Critical"
	}
	return "Unknown"
}

// CreateReading is the payload of a message on the readings topic
type CreateReading struct {
	NodeID          string     `json:"nodeId"`
	EndpointID      int        `json:"endpointId"`
	MeasurementType string     `json:"measurementType"`
	RawValue        float64    `json:"rawValue"`
	HubID           string     `json:"hubId,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
}

// CreateSensorData is the payload of a message on the sensordata topic
type CreateSensorData struct {
	SensorID   string     `json:"sensorId"`
	SensorType string     `json:"sensorType"`
	Value      float64    `json:"value"`
	HubID      string     `json:"hubId"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// Reading is a stored measurement
type Reading struct {
	ID              int64     `json:"id"`
	TenantID        uuid.UUID `json:"tenantId"`
	NodeID          string    `json:"nodeId"`
	HubID           string    `json:"hubId,omitempty"`
	EndpointID      int       `json:"endpointId,omitempty"`
	MeasurementType string    `json:"measurementType"`
	RawValue        float64   `json:"rawValue"`
	Value           float64   `json:"value"`
	Timestamp       time.Time `json:"timestamp"`
}

// Hub is a gateway that nodes report through
type Hub struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenantId"`
	HubID     string     `json:"hubId"`
	Name      string     `json:"name"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	IsOnline  bool       `json:"isOnline"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Alert codes
const (
	AlertCodeHubOffline = "hub_offline"
)

// Alert is raised by the hub itself or by a device
type Alert struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenantId"`
	HubID          string     `json:"hubId,omitempty"`
	NodeID         string     `json:"nodeId,omitempty"`
	AlertTypeCode  string     `json:"alertTypeCode"`
	Level          AlertLevel `json:"level"`
	Message        string     `json:"message"`
	Recommendation string     `json:"recommendation,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	IsActive       bool       `json:"isActive"`
}

// CreateNodeDebugLog is a single debug log entry as sent by a node
type CreateNodeDebugLog struct {
	NodeTimestamp int64  `json:"nodeTimestamp"`
	Level         string `json:"level"`
	Category      string `json:"category"`
	Message       string `json:"message"`
	StackTrace    string `json:"stackTrace,omitempty"`
}

// DebugLogBatch is a batch of debug log entries of one node
type DebugLogBatch struct {
	NodeID string               `json:"nodeId"`
	Logs   []CreateNodeDebugLog `json:"logs"`
}

// NodeDebugLog is a debug log entry that was received from a node
type NodeDebugLog struct {
	ID            uuid.UUID `json:"id"`
	NodeID        string    `json:"nodeId"`
	NodeTimestamp int64     `json:"nodeTimestamp"`
	ReceivedAt    time.Time `json:"receivedAt"`
	Level         string    `json:"level"`
	Category      string    `json:"category"`
	Message       string    `json:"message"`
	StackTrace    string    `json:"stackTrace,omitempty"`
}

// SetNodeDebugLevel changes the debug configuration of a node
type SetNodeDebugLevel struct {
	DebugLevel          string `json:"debugLevel"`
	EnableRemoteLogging bool   `json:"enableRemoteLogging"`
}

// NodeDebugConfiguration is the current debug configuration of a node
type NodeDebugConfiguration struct {
	NodeID              string     `json:"nodeId"`
	DebugLevel          string     `json:"debugLevel"`
	EnableRemoteLogging bool       `json:"enableRemoteLogging"`
	LastDebugChange     *time.Time `json:"lastDebugChange,omitempty"`
}
