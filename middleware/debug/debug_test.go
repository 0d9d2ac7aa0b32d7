// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package debug

import (
	"bytes"
	"testing"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDebug(t *testing.T) {
	Convey("Given a Debug middleware", t, func() {
		var logs bytes.Buffer
		d := New(&log.Logger{Handler: text.New(&logs), Level: log.DebugLevel})

		Convey("When handling a message", func() {
			tenantID := uuid.New()
			msg := types.NewInboundMessage("myiotgrid/"+tenantID.String()+"/readings", []byte("{}"))
			err := d.HandleInbound(types.NewTenantScope(tenantID, msg.Topic), msg)

			Convey("Then it should pass and be logged", func() {
				So(err, ShouldBeNil)
				So(logs.String(), ShouldContainSubstring, "Inbound message")
				So(logs.String(), ShouldContainSubstring, tenantID.String())
			})
		})
	})
}
