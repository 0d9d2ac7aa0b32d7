// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package mqtt connects to an MQTT broker in order to receive telemetry from hubs and nodes.
//
// The paho client is used with automatic reconnection disabled: the connection
// manager in package connection decides when to reconnect and replays the
// subscriptions afterwards. Retained messages are delivered, so that a retained
// hub status (for example a last will) is applied after every subscribe, unless
// Config.IgnoreRetained is set.
package mqtt
