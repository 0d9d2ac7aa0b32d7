// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package topics

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScheme(t *testing.T) {
	Convey("Given the default scheme", t, func() {
		s := New("")
		tenantID := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")

		Convey("Then topics should carry the prefix and tenant", func() {
			So(s.Readings(tenantID), ShouldEqual, "myiotgrid/0f8fad5b-d9cb-469f-a165-70867728950e/readings")
			So(s.SensorData(tenantID), ShouldEqual, "myiotgrid/0f8fad5b-d9cb-469f-a165-70867728950e/sensordata")
			So(s.HubStatus(tenantID, "hub-7"), ShouldEqual, "myiotgrid/0f8fad5b-d9cb-469f-a165-70867728950e/hubs/hub-7/status")
			So(s.Alerts(tenantID), ShouldEqual, "myiotgrid/0f8fad5b-d9cb-469f-a165-70867728950e/alerts")
		})

		Convey("Then the filters should not include the reserved alerts topic", func() {
			So(s.Filters(), ShouldResemble, []string{
				"myiotgrid/+/sensordata",
				"myiotgrid/+/readings",
				"myiotgrid/+/hubs/+/status",
			})
		})

		Convey("Then every built topic should be matched by exactly one pattern", func() {
			patterns := []*regexp.Regexp{s.SensorDataPattern(), s.ReadingsPattern(), s.HubStatusPattern()}
			for _, topic := range []string{s.Readings(tenantID), s.SensorData(tenantID), s.HubStatus(tenantID, "hub-7")} {
				var matches int
				for _, p := range patterns {
					if p.MatchString(topic) {
						matches++
					}
				}
				So(matches, ShouldEqual, 1)
			}
			So(s.ReadingsPattern().MatchString(s.Alerts(tenantID)), ShouldBeFalse)
		})

		Convey("Then the hub status pattern should capture tenant and hub", func() {
			p := s.HubStatusPattern()
			m := p.FindStringSubmatch(s.HubStatus(tenantID, "hub-7"))
			So(m, ShouldHaveLength, 3)
			So(m[p.SubexpIndex(TenantParam)], ShouldEqual, tenantID.String())
			So(m[p.SubexpIndex(HubParam)], ShouldEqual, "hub-7")
		})
	})

	Convey("Given a scheme with a prefix containing regexp metacharacters", t, func() {
		s := New("grid.v1")
		Convey("Then the prefix should be matched literally", func() {
			So(s.ReadingsPattern().MatchString("gridXv1/abc/readings"), ShouldBeFalse)
			So(s.ReadingsPattern().MatchString("grid.v1/abc/readings"), ShouldBeTrue)
		})
	})
}
