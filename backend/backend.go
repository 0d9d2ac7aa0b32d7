// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package backend

import "github.com/TheThingsNetwork/iotgrid-bridge/types"

// MessageHandler is called for every message received on a subscription
type MessageHandler func(msg *types.InboundMessage)

// Transport is a single connection to a publish/subscribe broker. Reconnection
// is not the responsibility of the transport.
type Transport interface {
	// Connect makes one connection attempt. The lost func is called when an
	// established connection drops unexpectedly; it is never called after Disconnect.
	Connect(lost func(error)) error
	// Subscribe subscribes to an MQTT-style topic filter
	Subscribe(filter string, handler MessageHandler) error
	// Disconnect gracefully closes the connection
	Disconnect()
}
