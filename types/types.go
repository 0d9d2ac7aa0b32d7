// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// InboundMessage is a message as it was received from the broker
type InboundMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// NewInboundMessage copies the payload, as broker clients may reuse their buffers
func NewInboundMessage(topic string, payload []byte) *InboundMessage {
	msg := &InboundMessage{
		Topic:      topic,
		Payload:    make([]byte, len(payload)),
		ReceivedAt: time.Now(),
	}
	copy(msg.Payload, payload)
	return msg
}

// Age returns the time since the message was received
func (m *InboundMessage) Age() time.Duration {
	return time.Since(m.ReceivedAt)
}

// TenantScope carries the tenant of exactly one routed message. A scope is
// never shared between messages, not even between messages of the same tenant.
type TenantScope struct {
	TenantID uuid.UUID
	Topic    string

	ended atomic.Bool
}

// NewTenantScope returns a fresh scope for the given tenant
func NewTenantScope(tenantID uuid.UUID, topic string) *TenantScope {
	return &TenantScope{TenantID: tenantID, Topic: topic}
}

// End marks the scope as finished. It must not be used afterwards.
func (s *TenantScope) End() {
	s.ended.Store(true)
}

// Ended returns true if the dispatch that owned this scope has returned
func (s *TenantScope) Ended() bool {
	return s.ended.Load()
}
