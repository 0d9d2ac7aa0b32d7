// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package deduplicate

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
)

// DefaultWindow in which an identical message on the same topic is considered a duplicate
var DefaultWindow = time.Second

// NewDeduplicate returns a middleware that drops messages that are received
// again on the same topic within the window, as happens with QoS 1 redelivery.
func NewDeduplicate(window time.Duration) *Deduplicate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicate{
		window:      window,
		lastMessage: make(map[string]*types.InboundMessage),
	}
}

// Deduplicate middleware
type Deduplicate struct {
	window      time.Duration
	mu          sync.Mutex
	lastMessage map[string]*types.InboundMessage
}

// ErrDuplicateMessage is returned when a message is received multiple times
var ErrDuplicateMessage = errors.New("deduplicate: already handled this message")

// HandleInbound blocks duplicate messages
func (d *Deduplicate) HandleInbound(_ *types.TenantScope, msg *types.InboundMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if lastMessage, ok := d.lastMessage[msg.Topic]; ok {
		if msg.ReceivedAt.Sub(lastMessage.ReceivedAt) < d.window &&
			bytes.Equal(msg.Payload, lastMessage.Payload) {
			return ErrDuplicateMessage
		}
	}
	d.lastMessage[msg.Topic] = msg
	return nil
}
