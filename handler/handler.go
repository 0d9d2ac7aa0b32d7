// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package handler turns routed broker messages into domain service calls.
// Handlers log their failures and report them as not handled; they never
// return errors to the router.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// Validation errors
var (
	ErrMissingField  = errors.New("handler: missing field")
	ErrInvalidField  = errors.New("handler: invalid field")
	ErrInvalidStatus = errors.New("handler: invalid status")
)

// ReadingService creates readings
type ReadingService interface {
	Create(ctx context.Context, scope *types.TenantScope, in *types.CreateReading) (*types.Reading, error)
}

// SensorDataService creates readings from sensor samples
type SensorDataService interface {
	Create(ctx context.Context, scope *types.TenantScope, in *types.CreateSensorData) (*types.Reading, error)
}

// HubService tracks hubs
type HubService interface {
	Lock(tenantID uuid.UUID, hubID string) (unlock func())
	GetOrCreate(ctx context.Context, scope *types.TenantScope, hubID string) (*types.Hub, error)
	SetOnlineStatus(ctx context.Context, scope *types.TenantScope, hub *types.Hub, online bool) (bool, error)
}

// AlertService raises and clears hub alerts
type AlertService interface {
	CreateHubOfflineAlert(ctx context.Context, scope *types.TenantScope, hub *types.Hub) (*types.Alert, error)
	DeactivateHubAlerts(ctx context.Context, scope *types.TenantScope, hubID, code string) (int, error)
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func messageContext(ctx log.Interface, scope *types.TenantScope) log.Interface {
	return ctx.WithFields(log.Fields{
		"Topic":    scope.Topic,
		"TenantID": scope.TenantID,
	})
}

// decode unmarshals the JSON payload. Keys are matched case-insensitively.
func decode(payload []byte, v interface{}) error {
	return json.Unmarshal(payload, v)
}
