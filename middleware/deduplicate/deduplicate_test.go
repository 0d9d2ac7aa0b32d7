// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package deduplicate

import (
	"testing"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeduplicate(t *testing.T) {
	Convey("Given a new Deduplicate", t, func(c C) {
		i := NewDeduplicate(time.Minute)
		topic := "myiotgrid/0f8fad5b-d9cb-469f-a165-70867728950e/hubs/hub-7/status"
		scope := types.NewTenantScope(uuid.New(), topic)

		Convey("When sending a message", func() {
			err := i.HandleInbound(scope, types.NewInboundMessage(topic, []byte("online")))
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
			})
			Convey("When sending a duplicate of that message", func() {
				err := i.HandleInbound(scope, types.NewInboundMessage(topic, []byte("online")))
				Convey("There should be an error", func() {
					So(err, ShouldEqual, ErrDuplicateMessage)
				})
			})
			Convey("When sending another message", func() {
				err := i.HandleInbound(scope, types.NewInboundMessage(topic, []byte("offline")))
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})
			})
			Convey("When sending the same payload on another topic", func() {
				err := i.HandleInbound(scope, types.NewInboundMessage(topic+"x", []byte("online")))
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})
			})
			Convey("When sending the same payload after the window", func() {
				msg := types.NewInboundMessage(topic, []byte("online"))
				msg.ReceivedAt = msg.ReceivedAt.Add(2 * time.Minute)
				err := i.HandleInbound(scope, msg)
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})
			})
		})
	})
}
