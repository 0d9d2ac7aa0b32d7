// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package store persists the state that the domain services need: hubs, the
// latest reading per node, alerts and node debug configuration. All state is
// partitioned by tenant.
package store

import (
	"context"
	"errors"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/google/uuid"
)

// ErrNotFound is returned when an item does not exist
var ErrNotFound = errors.New("store: not found")

// Store interface
type Store interface {
	GetHub(ctx context.Context, tenantID uuid.UUID, hubID string) (*types.Hub, error)
	SaveHub(ctx context.Context, hub *types.Hub) error

	NextReadingID(ctx context.Context, tenantID uuid.UUID) (int64, error)
	SaveReading(ctx context.Context, reading *types.Reading) error
	LatestReadings(ctx context.Context, tenantID uuid.UUID) ([]*types.Reading, error)

	GetAlert(ctx context.Context, tenantID, alertID uuid.UUID) (*types.Alert, error)
	SaveAlert(ctx context.Context, alert *types.Alert) error
	Alerts(ctx context.Context, tenantID uuid.UUID) ([]*types.Alert, error)

	GetDebugConfiguration(ctx context.Context, tenantID uuid.UUID, nodeID string) (*types.NodeDebugConfiguration, error)
	SaveDebugConfiguration(ctx context.Context, tenantID uuid.UUID, config *types.NodeDebugConfiguration) error
}
