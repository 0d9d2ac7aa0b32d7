// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package handler

import (
	"context"
	"strings"

	"github.com/TheThingsNetwork/iotgrid-bridge/router"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
)

// SensorData handles messages on the legacy sensordata topic
type SensorData struct {
	ctx        log.Interface
	sensorData SensorDataService
}

// NewSensorData returns a new SensorData handler
func NewSensorData(sensorData SensorDataService, ctx log.Interface) *SensorData {
	return &SensorData{
		ctx:        ctx.WithField("Handler", "SensorData"),
		sensorData: sensorData,
	}
}

// ValidateSensorData checks the required fields of a sensor sample
func ValidateSensorData(in *types.CreateSensorData) error {
	if strings.TrimSpace(in.HubID) == "" {
		return missing("hubId")
	}
	if strings.TrimSpace(in.SensorType) == "" {
		return missing("sensorType")
	}
	return nil
}

// Handle implements router.Handler
func (h *SensorData) Handle(ctx context.Context, scope *types.TenantScope, msg *types.InboundMessage, _ router.Params) bool {
	logger := messageContext(h.ctx, scope)
	var in types.CreateSensorData
	if err := decode(msg.Payload, &in); err != nil {
		logger.WithError(err).Error("Could not decode sensor data")
		return false
	}
	if err := ValidateSensorData(&in); err != nil {
		logger.WithError(err).Warn("Invalid sensor data")
		return false
	}
	if _, err := h.sensorData.Create(ctx, scope, &in); err != nil {
		logger.WithError(err).Error("Could not create sensor data")
		return false
	}
	logger.WithField("HubID", in.HubID).Debug("Handled sensor data")
	return true
}
