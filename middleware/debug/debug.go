// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package debug

import (
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
)

// New returns a middleware that debugs traffic
func New(ctx log.Interface) *Debug {
	return &Debug{ctx: ctx.WithField("Middleware", "Debug")}
}

// Debug middleware
type Debug struct {
	ctx log.Interface
}

// HandleInbound debugs inbound traffic
func (d *Debug) HandleInbound(scope *types.TenantScope, msg *types.InboundMessage) error {
	d.ctx.WithFields(log.Fields{
		"Topic":    msg.Topic,
		"TenantID": scope.TenantID,
		"Size":     len(msg.Payload),
		"Delay":    msg.Age(),
	}).Debug("Inbound message")
	return nil
}
