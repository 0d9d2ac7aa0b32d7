// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package realtime

import (
	"sort"
	"strings"
	"sync"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
)

// BufferSize indicates the maximum number of events that are buffered per connection
var BufferSize = 10

// Sender sends an event over a live connection
type Sender interface {
	Emit(event string, payload interface{}) error
}

type outbound struct {
	event   types.EventType
	payload interface{}
}

// Connection is a live client connection and the groups it is a member of.
// Memberships are only changed by the connection's own join and leave calls.
type Connection struct {
	ID       string
	TenantID uuid.UUID

	ctx         log.Interface
	sender      Sender
	memberships mapset.Set
	outbound    chan outbound
	done        chan struct{}
	closeOnce   sync.Once
}

func newConnection(id string, tenantID uuid.UUID, sender Sender, ctx log.Interface) *Connection {
	c := &Connection{
		ID:          id,
		TenantID:    tenantID,
		ctx:         ctx.WithField("ConnectionID", id),
		sender:      sender,
		memberships: mapset.NewSet(),
		outbound:    make(chan outbound, BufferSize),
		done:        make(chan struct{}),
	}
	c.memberships.Add(types.TenantGroup(tenantID))
	go c.write()
	return c
}

func (c *Connection) write() {
	for {
		select {
		case <-c.done:
			return
		case o := <-c.outbound:
			if err := c.sender.Emit(string(o.event), o.payload); err != nil {
				c.ctx.WithError(err).WithField("Event", o.event).Debug("Could not send event")
				continue
			}
			eventsSent.WithLabelValues(string(o.event)).Inc()
		}
	}
}

// send queues the event without blocking
func (c *Connection) send(event types.EventType, payload interface{}) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.outbound <- outbound{event, payload}:
	default:
		eventsDropped.Inc()
		c.ctx.WithField("Event", event).Warn("Dropping event: buffer full")
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.memberships.Clear()
	})
}

// IsMember returns true if the connection is in the group
func (c *Connection) IsMember(group types.GroupKey) bool {
	return c.memberships.Contains(group)
}

// Groups returns the sorted memberships of the connection
func (c *Connection) Groups() []types.GroupKey {
	members := c.memberships.ToSlice()
	groups := make([]types.GroupKey, 0, len(members))
	for _, member := range members {
		groups = append(groups, member.(types.GroupKey))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

func (c *Connection) join(group types.GroupKey) {
	if c.memberships.Add(group) {
		c.ctx.WithField("Group", group).Debug("Joined group")
	}
}

func (c *Connection) leave(group types.GroupKey) {
	if c.memberships.Contains(group) {
		c.memberships.Remove(group)
		c.ctx.WithField("Group", group).Debug("Left group")
	}
}

func (c *Connection) validID(kind, id string) bool {
	if strings.TrimSpace(id) == "" {
		c.ctx.Warnf("Ignoring %s group request with empty id", kind)
		return false
	}
	return true
}

func (c *Connection) validLevel(level int) bool {
	if !types.AlertLevel(level).Valid() {
		c.ctx.WithField("Level", level).Warn("Ignoring alert group request with invalid level")
		return false
	}
	return true
}

// JoinDeviceGroup subscribes the connection to events of a hub or node
func (c *Connection) JoinDeviceGroup(deviceID string) {
	if c.validID("device", deviceID) {
		c.join(types.DeviceGroup(deviceID))
	}
}

// LeaveDeviceGroup unsubscribes the connection from events of a hub or node
func (c *Connection) LeaveDeviceGroup(deviceID string) {
	if c.validID("device", deviceID) {
		c.leave(types.DeviceGroup(deviceID))
	}
}

// JoinAlertGroup subscribes the connection to alerts of a level (0-3)
func (c *Connection) JoinAlertGroup(level int) {
	if c.validLevel(level) {
		c.join(types.AlertGroup(types.AlertLevel(level)))
	}
}

// LeaveAlertGroup unsubscribes the connection from alerts of a level
func (c *Connection) LeaveAlertGroup(level int) {
	if c.validLevel(level) {
		c.leave(types.AlertGroup(types.AlertLevel(level)))
	}
}

// JoinDebugGroup subscribes the connection to the debug stream of a device
func (c *Connection) JoinDebugGroup(deviceID string) {
	if c.validID("debug", deviceID) {
		c.join(types.DebugGroup(deviceID))
	}
}

// LeaveDebugGroup unsubscribes the connection from the debug stream of a device
func (c *Connection) LeaveDebugGroup(deviceID string) {
	if c.validID("debug", deviceID) {
		c.leave(types.DebugGroup(deviceID))
	}
}
