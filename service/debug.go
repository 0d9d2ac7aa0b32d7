// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TheThingsNetwork/iotgrid-bridge/store"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// ErrInvalidDebugLevel is returned for an unknown debug level
var ErrInvalidDebugLevel = errors.New("service: invalid debug level")

// DebugLevels that a node accepts
var DebugLevels = []string{"Production", "Normal", "Debug"}

// DebugService handles the remote debugging of nodes
type DebugService struct {
	ctx    log.Interface
	store  store.Store
	notify Notifier
}

// NewDebugService returns a new DebugService
func NewDebugService(s store.Store, notify Notifier, ctx log.Interface) *DebugService {
	return &DebugService{
		ctx:    ctx.WithField("Component", "DebugService"),
		store:  s,
		notify: notify,
	}
}

// IngestLogs publishes a batch of debug logs of a node. Logs are only
// accepted when remote logging is enabled for the node. It returns the
// number of accepted entries.
func (d *DebugService) IngestLogs(ctx context.Context, scope *types.TenantScope, batch *types.DebugLogBatch) (int, error) {
	config, err := d.store.GetDebugConfiguration(ctx, scope.TenantID, batch.NodeID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !config.EnableRemoteLogging) {
		d.ctx.WithField("NodeID", batch.NodeID).Debug("Remote logging disabled for node")
		return 0, ErrRemoteLoggingDisabled
	}
	if err != nil {
		return 0, fmt.Errorf("could not get debug configuration: %w", err)
	}
	received := now()
	for _, in := range batch.Logs {
		d.notify.NotifyDebugLog(batch.NodeID, &types.NodeDebugLog{
			ID:            uuid.New(),
			NodeID:        batch.NodeID,
			NodeTimestamp: in.NodeTimestamp,
			ReceivedAt:    received,
			Level:         in.Level,
			Category:      in.Category,
			Message:       in.Message,
			StackTrace:    in.StackTrace,
		})
	}
	d.ctx.WithFields(log.Fields{
		"TenantID": scope.TenantID,
		"NodeID":   batch.NodeID,
		"Count":    len(batch.Logs),
	}).Debug("Received debug logs")
	return len(batch.Logs), nil
}

func normalizeDebugLevel(level string) (string, bool) {
	for _, known := range DebugLevels {
		if strings.EqualFold(known, level) {
			return known, true
		}
	}
	return "", false
}

// SetDebugLevel changes the debug configuration of a node
func (d *DebugService) SetDebugLevel(ctx context.Context, scope *types.TenantScope, nodeID string, in *types.SetNodeDebugLevel) (*types.NodeDebugConfiguration, error) {
	level, ok := normalizeDebugLevel(in.DebugLevel)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDebugLevel, in.DebugLevel)
	}
	changed := now()
	config := &types.NodeDebugConfiguration{
		NodeID:              nodeID,
		DebugLevel:          level,
		EnableRemoteLogging: in.EnableRemoteLogging,
		LastDebugChange:     &changed,
	}
	if err := d.store.SaveDebugConfiguration(ctx, scope.TenantID, config); err != nil {
		return nil, fmt.Errorf("could not save debug configuration: %w", err)
	}
	d.ctx.WithFields(log.Fields{
		"TenantID":      scope.TenantID,
		"NodeID":        nodeID,
		"DebugLevel":    level,
		"RemoteLogging": in.EnableRemoteLogging,
	}).Info("Debug level changed")
	d.notify.NotifyDebugConfigChanged(nodeID, config)
	return config, nil
}

// GetConfiguration returns the debug configuration of a node
func (d *DebugService) GetConfiguration(ctx context.Context, scope *types.TenantScope, nodeID string) (*types.NodeDebugConfiguration, error) {
	return d.store.GetDebugConfiguration(ctx, scope.TenantID, nodeID)
}
