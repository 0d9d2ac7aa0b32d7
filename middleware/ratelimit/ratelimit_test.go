// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package ratelimit

import (
	"testing"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRateLimit(t *testing.T) {
	Convey("Given a RateLimit of 3 messages per minute", t, func(c C) {
		l := NewRateLimit(3)
		tenant, other := uuid.New(), uuid.New()

		send := func(tenantID uuid.UUID) error {
			scope := types.NewTenantScope(tenantID, "myiotgrid/x/readings")
			return l.HandleInbound(scope, types.NewInboundMessage(scope.Topic, nil))
		}

		Convey("When sending 3 messages", func() {
			for i := 0; i < 3; i++ {
				So(send(tenant), ShouldBeNil)
			}
			Convey("Then the fourth should be rate limited", func() {
				So(send(tenant), ShouldEqual, ErrRateLimited)
			})
			Convey("Then another tenant should not be affected", func() {
				So(send(other), ShouldBeNil)
			})
		})
	})

	Convey("Given a disabled RateLimit", t, func(c C) {
		l := NewRateLimit(0)
		scope := types.NewTenantScope(uuid.New(), "myiotgrid/x/readings")
		for i := 0; i < 100; i++ {
			So(l.HandleInbound(scope, nil), ShouldBeNil)
		}
	})
}
