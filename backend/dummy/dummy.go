// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package dummy implements an in-memory broker transport for development and tests.
package dummy

import (
	"errors"
	"strings"
	"sync"

	"github.com/TheThingsNetwork/iotgrid-bridge/backend"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
)

// ErrRefused is returned by Connect while connections are refused
var ErrRefused = errors.New("dummy: connection refused")

// ErrNotConnected is returned when subscribing while disconnected
var ErrNotConnected = errors.New("dummy: not connected")

// ErrConnectionLost is reported when the connection is dropped
var ErrConnectionLost = errors.New("dummy: connection lost")

type subscription struct {
	filter  string
	handler backend.MessageHandler
}

// Dummy backend
type Dummy struct {
	mu            sync.Mutex
	ctx           log.Interface
	connected     bool
	refuse        int
	connects      int
	lost          func(error)
	subscriptions []subscription
}

var _ backend.Transport = &Dummy{}

// New returns a new Dummy backend
func New(ctx log.Interface) *Dummy {
	return &Dummy{
		ctx: ctx.WithField("Connector", "Dummy"),
	}
}

// Refuse the next n connection attempts; -1 refuses all of them
func (d *Dummy) Refuse(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refuse = n
}

// Connect implements backend.Transport
func (d *Dummy) Connect(lost func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	if d.refuse != 0 {
		if d.refuse > 0 {
			d.refuse--
		}
		d.ctx.Debug("Refused connection")
		return ErrRefused
	}
	d.connected = true
	d.lost = lost
	d.subscriptions = nil
	d.ctx.Debug("Connected")
	return nil
}

// Subscribe implements backend.Transport
func (d *Dummy) Subscribe(filter string, handler backend.MessageHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.subscriptions = append(d.subscriptions, subscription{filter, handler})
	d.ctx.WithField("Filter", filter).Debug("Subscribed")
	return nil
}

// Disconnect implements backend.Transport
func (d *Dummy) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.lost = nil
	d.subscriptions = nil
	d.ctx.Debug("Disconnected")
}

// Drop the connection as if the broker went away
func (d *Dummy) Drop() {
	d.mu.Lock()
	lost := d.lost
	d.connected = false
	d.lost = nil
	d.subscriptions = nil
	d.mu.Unlock()
	if lost != nil {
		d.ctx.Debug("Dropped connection")
		lost(ErrConnectionLost)
	}
}

// Connected returns true while connected
func (d *Dummy) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Connects returns the number of connection attempts
func (d *Dummy) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Subscriptions returns the filters of the current connection
func (d *Dummy) Subscriptions() (filters []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subscriptions {
		filters = append(filters, sub.filter)
	}
	return
}

// Publish delivers a message to every matching subscription. It returns
// the number of deliveries; messages are lost while disconnected.
func (d *Dummy) Publish(topic string, payload []byte) int {
	d.mu.Lock()
	var handlers []backend.MessageHandler
	for _, sub := range d.subscriptions {
		if Match(sub.filter, topic) {
			handlers = append(handlers, sub.handler)
		}
	}
	d.mu.Unlock()
	for _, handler := range handlers {
		handler(types.NewInboundMessage(topic, payload))
	}
	if len(handlers) == 0 {
		d.ctx.WithField("Topic", topic).Debug("Did not publish [no subscribers]")
	}
	return len(handlers)
}

// Match returns true if the MQTT topic filter matches the topic
func Match(filter, topic string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")
	for i, level := range filterLevels {
		if level == "#" {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}
