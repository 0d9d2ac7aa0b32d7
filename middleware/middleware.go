// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package middleware filters inbound messages after their tenant is known and
// before they reach a handler.
package middleware

import (
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
)

// Inbound middleware. Returning an error drops the message.
type Inbound interface {
	HandleInbound(scope *types.TenantScope, msg *types.InboundMessage) error
}

// Func is an adapter that allows ordinary functions as middleware
type Func func(scope *types.TenantScope, msg *types.InboundMessage) error

// HandleInbound calls f
func (f Func) HandleInbound(scope *types.TenantScope, msg *types.InboundMessage) error {
	return f(scope, msg)
}

// Chain of middleware
type Chain []Inbound

// Execute the chain, stopping at the first error
func (c Chain) Execute(scope *types.TenantScope, msg *types.InboundMessage) error {
	for _, middleware := range c {
		if err := middleware.HandleInbound(scope, msg); err != nil {
			return err
		}
	}
	return nil
}
