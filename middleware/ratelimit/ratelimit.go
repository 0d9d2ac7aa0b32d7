// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// NewRateLimit returns a middleware that limits the number of messages per minute per tenant
func NewRateLimit(perMinute int) *RateLimit {
	return &RateLimit{
		perMinute: perMinute,
		tenants:   make(map[uuid.UUID]*rate.Limiter),
	}
}

// RateLimit inbound messages per tenant
type RateLimit struct {
	perMinute int

	mu      sync.Mutex
	tenants map[uuid.UUID]*rate.Limiter
}

func (l *RateLimit) get(tenantID uuid.UUID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.tenants[tenantID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.tenants[tenantID] = limiter
	}
	return limiter
}

// ErrRateLimited is returned if the rate limit has been reached
var ErrRateLimited = errors.New("rate limit reached")

// HandleInbound rate-limits messages of the tenant
func (l *RateLimit) HandleInbound(scope *types.TenantScope, _ *types.InboundMessage) error {
	if l.perMinute <= 0 {
		return nil
	}
	if !l.get(scope.TenantID).Allow() {
		return ErrRateLimited
	}
	return nil
}
