// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package realtime pushes domain events to live client connections, addressed by group.
package realtime

import (
	"sync"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// Registry of live connections
type Registry struct {
	ctx log.Interface

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewRegistry returns a new Registry
func NewRegistry(ctx log.Interface) *Registry {
	return &Registry{
		ctx:         ctx.WithField("Component", "Registry"),
		connections: make(map[string]*Connection),
	}
}

// Register a connection. The connection joins its tenant group.
func (r *Registry) Register(id string, tenantID uuid.UUID, sender Sender) *Connection {
	conn := newConnection(id, tenantID, sender, r.ctx)
	r.mu.Lock()
	previous, exists := r.connections[id]
	r.connections[id] = conn
	count := len(r.connections)
	r.mu.Unlock()
	if exists {
		previous.close()
	}
	liveConnections.Set(float64(count))
	r.ctx.WithFields(log.Fields{
		"ConnectionID": id,
		"TenantID":     tenantID,
	}).Debug("Connection registered")
	return conn
}

// Unregister a connection and clear its memberships
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	conn, ok := r.connections[id]
	delete(r.connections, id)
	count := len(r.connections)
	r.mu.Unlock()
	if !ok {
		return
	}
	conn.close()
	liveConnections.Set(float64(count))
	r.ctx.WithField("ConnectionID", id).Debug("Connection unregistered")
}

// Get a registered connection
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	return conn, ok
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Members returns the connections that are in the group
func (r *Registry) Members(group types.GroupKey) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Connection, 0)
	for _, conn := range r.connections {
		if group == types.AllConnections || conn.IsMember(group) {
			members = append(members, conn)
		}
	}
	return members
}

// All returns every live connection
func (r *Registry) All() []*Connection {
	return r.Members(types.AllConnections)
}
