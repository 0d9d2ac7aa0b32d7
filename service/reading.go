// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package service

import (
	"context"
	"fmt"

	"github.com/TheThingsNetwork/iotgrid-bridge/store"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
)

// ReadingService stores readings and publishes them
type ReadingService struct {
	ctx    log.Interface
	store  store.Store
	notify Notifier
}

// NewReadingService returns a new ReadingService
func NewReadingService(s store.Store, notify Notifier, ctx log.Interface) *ReadingService {
	return &ReadingService{
		ctx:    ctx.WithField("Component", "ReadingService"),
		store:  s,
		notify: notify,
	}
}

// Create stores the reading as the latest reading of its node
func (r *ReadingService) Create(ctx context.Context, scope *types.TenantScope, in *types.CreateReading) (*types.Reading, error) {
	id, err := r.store.NextReadingID(ctx, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("could not allocate reading id: %w", err)
	}
	reading := &types.Reading{
		ID:              id,
		TenantID:        scope.TenantID,
		NodeID:          in.NodeID,
		HubID:           in.HubID,
		EndpointID:      in.EndpointID,
		MeasurementType: in.MeasurementType,
		RawValue:        in.RawValue,
		Value:           in.RawValue,
		Timestamp:       now(),
	}
	if in.Timestamp != nil {
		reading.Timestamp = in.Timestamp.UTC()
	}
	if err := r.store.SaveReading(ctx, reading); err != nil {
		return nil, fmt.Errorf("could not save reading: %w", err)
	}
	r.ctx.WithFields(log.Fields{
		"TenantID":        scope.TenantID,
		"NodeID":          reading.NodeID,
		"MeasurementType": reading.MeasurementType,
	}).Debug("Created reading")
	r.notify.NotifyNewReading(scope.TenantID, reading)
	return reading, nil
}

// SensorDataService stores legacy sensor samples as readings
type SensorDataService struct {
	readings *ReadingService
}

// NewSensorDataService returns a new SensorDataService
func NewSensorDataService(readings *ReadingService) *SensorDataService {
	return &SensorDataService{readings: readings}
}

// Create stores the sample as a reading of the sensor
func (s *SensorDataService) Create(ctx context.Context, scope *types.TenantScope, in *types.CreateSensorData) (*types.Reading, error) {
	return s.readings.Create(ctx, scope, &types.CreateReading{
		NodeID:          in.SensorID,
		MeasurementType: in.SensorType,
		RawValue:        in.Value,
		HubID:           in.HubID,
		Timestamp:       in.Timestamp,
	})
}

// Latest returns the latest reading of every node of the tenant
func (r *ReadingService) Latest(ctx context.Context, scope *types.TenantScope) ([]*types.Reading, error) {
	return r.store.LatestReadings(ctx, scope.TenantID)
}
