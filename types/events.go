// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

// EventType is the name under which an event is emitted to live connections
type EventType string

// Event types
const (
	EventNewReading         EventType = "NewReading"
	EventAlertReceived      EventType = "AlertReceived"
	EventAlertAcknowledged  EventType = "AlertAcknowledged"
	EventHubStatusChanged   EventType = "HubStatusChanged"
	EventDebugLogReceived   EventType = "DebugLogReceived"
	EventDebugConfigChanged EventType = "DebugConfigChanged"
)

// OutboundEvent is an event that should be sent to all members of the target groups
type OutboundEvent struct {
	Type    EventType
	Payload interface{}
	Targets []GroupKey
}
