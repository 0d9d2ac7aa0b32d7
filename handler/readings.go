// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheThingsNetwork/iotgrid-bridge/router"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
)

// Readings handles messages on the readings topic
type Readings struct {
	ctx      log.Interface
	readings ReadingService
}

// NewReadings returns a new Readings handler
func NewReadings(readings ReadingService, ctx log.Interface) *Readings {
	return &Readings{
		ctx:      ctx.WithField("Handler", "Readings"),
		readings: readings,
	}
}

// ValidateReading checks the required fields of a reading
func ValidateReading(in *types.CreateReading) error {
	if strings.TrimSpace(in.NodeID) == "" {
		return missing("nodeId")
	}
	if strings.TrimSpace(in.MeasurementType) == "" {
		return missing("measurementType")
	}
	if in.EndpointID <= 0 {
		return fmt.Errorf("%w: endpointId must be positive", ErrInvalidField)
	}
	return nil
}

// Handle implements router.Handler
func (h *Readings) Handle(ctx context.Context, scope *types.TenantScope, msg *types.InboundMessage, _ router.Params) bool {
	logger := messageContext(h.ctx, scope)
	var in types.CreateReading
	if err := decode(msg.Payload, &in); err != nil {
		logger.WithError(err).Error("Could not decode reading")
		return false
	}
	if err := ValidateReading(&in); err != nil {
		logger.WithError(err).Warn("Invalid reading")
		return false
	}
	reading, err := h.readings.Create(ctx, scope, &in)
	if err != nil {
		logger.WithError(err).Error("Could not create reading")
		return false
	}
	logger.WithFields(log.Fields{
		"NodeID":          reading.NodeID,
		"MeasurementType": reading.MeasurementType,
	}).Debug("Handled reading")
	return true
}
