// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package realtime

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

type sentEvent struct {
	event   string
	payload interface{}
}

type fakeSender struct {
	mu     sync.Mutex
	err    error
	block  chan struct{}
	events []sentEvent
}

func (s *fakeSender) Emit(event string, payload interface{}) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, sentEvent{event, payload})
	return nil
}

func (s *fakeSender) count(event types.EventType) (n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.event == string(event) {
			n++
		}
	}
	return
}

func eventually(condition func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return condition()
}

func TestRegistry(t *testing.T) {
	Convey("Given a new Context", t, func(c C) {
		var logs bytes.Buffer
		ctx := &log.Logger{
			Handler: text.New(&logs),
			Level:   log.DebugLevel,
		}
		defer func() {
			if logs.Len() > 0 {
				c.Printf("\n%s", logs.String())
			}
		}()

		registry := NewRegistry(ctx)
		tenantID := uuid.New()

		Convey("When registering a connection", func() {
			conn := registry.Register("conn-1", tenantID, &fakeSender{})
			Reset(func() { registry.Unregister("conn-1") })

			Convey("Then it should only be a member of its tenant group", func() {
				So(conn.Groups(), ShouldResemble, []types.GroupKey{types.TenantGroup(tenantID)})
				So(registry.Count(), ShouldEqual, 1)
				So(registry.Members(types.TenantGroup(tenantID)), ShouldHaveLength, 1)
			})

			Convey("When joining and leaving groups", func() {
				before := conn.Groups()
				conn.JoinDeviceGroup("hub-7")
				conn.JoinDeviceGroup("hub-7")
				conn.JoinAlertGroup(2)
				conn.JoinDebugGroup("node-1")

				Convey("Then joining twice should be a no-op", func() {
					So(conn.Groups(), ShouldResemble, []types.GroupKey{
						"alerts:2", "debug:node-1", "device:hub-7", types.TenantGroup(tenantID),
					})
				})

				Convey("Then leaving should restore the memberships", func() {
					conn.LeaveDeviceGroup("hub-7")
					conn.LeaveAlertGroup(2)
					conn.LeaveDebugGroup("node-1")
					conn.LeaveDebugGroup("node-1")
					So(conn.Groups(), ShouldResemble, before)
				})
			})

			Convey("When leaving a group that was never joined", func() {
				conn.LeaveDeviceGroup("hub-9")
				conn.LeaveAlertGroup(0)
				Convey("Then nothing should change", func() {
					So(conn.Groups(), ShouldHaveLength, 1)
				})
			})

			Convey("When joining with an empty id", func() {
				conn.JoinDeviceGroup("")
				conn.JoinDebugGroup("  ")
				Convey("Then the request should be ignored with a warning", func() {
					So(conn.Groups(), ShouldHaveLength, 1)
					So(logs.String(), ShouldContainSubstring, "empty id")
				})
			})

			Convey("When joining an alert group with an invalid level", func() {
				conn.JoinAlertGroup(4)
				conn.JoinAlertGroup(-1)
				Convey("Then the request should be ignored with a warning", func() {
					So(conn.Groups(), ShouldHaveLength, 1)
					So(logs.String(), ShouldContainSubstring, "invalid level")
				})
			})

			Convey("When the connection is unregistered", func() {
				conn.JoinDeviceGroup("hub-7")
				registry.Unregister("conn-1")

				Convey("Then its memberships should be cleared", func() {
					So(conn.Groups(), ShouldBeEmpty)
					So(registry.Members(types.DeviceGroup("hub-7")), ShouldBeEmpty)
					So(registry.Count(), ShouldEqual, 0)
				})

				Convey("When it reconnects with the same id", func() {
					conn = registry.Register("conn-1", tenantID, &fakeSender{})
					Convey("Then it should have to join its groups again", func() {
						So(conn.Groups(), ShouldResemble, []types.GroupKey{types.TenantGroup(tenantID)})
					})
				})
			})
		})

		Convey("When registering two connections", func() {
			a := registry.Register("a", tenantID, &fakeSender{})
			b := registry.Register("b", tenantID, &fakeSender{})
			Reset(func() {
				registry.Unregister("a")
				registry.Unregister("b")
			})

			Convey("Then joining with one should not change the other", func() {
				a.JoinDeviceGroup("hub-7")
				So(a.IsMember(types.DeviceGroup("hub-7")), ShouldBeTrue)
				So(b.IsMember(types.DeviceGroup("hub-7")), ShouldBeFalse)
			})

			Convey("Then both should be in the pseudo-group of all connections", func() {
				So(registry.Members(types.AllConnections), ShouldHaveLength, 2)
			})
		})
	})
}

func TestFanout(t *testing.T) {
	Convey("Given a new Context", t, func(c C) {
		var logs bytes.Buffer
		ctx := &log.Logger{
			Handler: text.New(&logs),
			Level:   log.DebugLevel,
		}
		defer func() {
			if logs.Len() > 0 {
				c.Printf("\n%s", logs.String())
			}
		}()

		registry := NewRegistry(ctx)
		fanout := NewFanout(registry, ctx)
		tenantID, otherTenant := uuid.New(), uuid.New()

		tenantOnly, both, deviceOnly, other := &fakeSender{}, &fakeSender{}, &fakeSender{}, &fakeSender{}
		registry.Register("tenant-only", tenantID, tenantOnly)
		registry.Register("both", tenantID, both).JoinDeviceGroup("hub-7")
		registry.Register("device-only", otherTenant, deviceOnly).JoinDeviceGroup("hub-7")
		registry.Register("other", otherTenant, other)
		Reset(func() {
			for _, id := range []string{"tenant-only", "both", "device-only", "other"} {
				registry.Unregister(id)
			}
		})

		Convey("When a hub status change is published", func() {
			fanout.NotifyHubStatusChanged(tenantID, &types.Hub{TenantID: tenantID, HubID: "hub-7"})

			Convey("Then members of either group should receive it", func() {
				So(eventually(func() bool { return tenantOnly.count(types.EventHubStatusChanged) == 1 }), ShouldBeTrue)
				So(eventually(func() bool { return deviceOnly.count(types.EventHubStatusChanged) == 1 }), ShouldBeTrue)
			})

			Convey("Then a member of both groups should receive it once per group", func() {
				So(eventually(func() bool { return both.count(types.EventHubStatusChanged) == 2 }), ShouldBeTrue)
				time.Sleep(10 * time.Millisecond)
				So(both.count(types.EventHubStatusChanged), ShouldEqual, 2)
			})

			Convey("Then a connection in neither group should not receive it", func() {
				time.Sleep(10 * time.Millisecond)
				So(other.count(types.EventHubStatusChanged), ShouldEqual, 0)
			})
		})

		Convey("When a reading is published", func() {
			fanout.NotifyNewReading(tenantID, &types.Reading{TenantID: tenantID, NodeID: "hub-7"})
			Convey("Then it should reach the tenant and the node group", func() {
				So(eventually(func() bool { return tenantOnly.count(types.EventNewReading) == 1 }), ShouldBeTrue)
				So(eventually(func() bool { return deviceOnly.count(types.EventNewReading) == 1 }), ShouldBeTrue)
			})
		})

		Convey("When an alert is raised", func() {
			alerts := &fakeSender{}
			registry.Register("alerts", otherTenant, alerts).JoinAlertGroup(int(types.AlertLevelCritical))
			Reset(func() { registry.Unregister("alerts") })
			fanout.NotifyAlertRaised(tenantID, &types.Alert{TenantID: tenantID, Level: types.AlertLevelCritical})

			Convey("Then it should reach the tenant and the alert level group", func() {
				So(eventually(func() bool { return tenantOnly.count(types.EventAlertReceived) == 1 }), ShouldBeTrue)
				So(eventually(func() bool { return alerts.count(types.EventAlertReceived) == 1 }), ShouldBeTrue)
			})

			Convey("When the alert is acknowledged", func() {
				fanout.NotifyAlertAcknowledged(tenantID, &types.Alert{TenantID: tenantID, Level: types.AlertLevelCritical})
				Convey("Then only the tenant should be notified", func() {
					So(eventually(func() bool { return tenantOnly.count(types.EventAlertAcknowledged) == 1 }), ShouldBeTrue)
					time.Sleep(10 * time.Millisecond)
					So(alerts.count(types.EventAlertAcknowledged), ShouldEqual, 0)
				})
			})
		})

		Convey("When a debug log is published", func() {
			debug := &fakeSender{}
			registry.Register("debug", otherTenant, debug).JoinDebugGroup("hub-7")
			Reset(func() { registry.Unregister("debug") })
			fanout.NotifyDebugLog("hub-7", &types.NodeDebugLog{NodeID: "hub-7"})

			Convey("Then it should reach the device and debug groups but not the tenant", func() {
				So(eventually(func() bool { return debug.count(types.EventDebugLogReceived) == 1 }), ShouldBeTrue)
				So(eventually(func() bool { return deviceOnly.count(types.EventDebugLogReceived) == 1 }), ShouldBeTrue)
				time.Sleep(10 * time.Millisecond)
				So(tenantOnly.count(types.EventDebugLogReceived), ShouldEqual, 0)
			})
		})

		Convey("When a debug configuration change is published", func() {
			fanout.NotifyDebugConfigChanged("hub-7", &types.NodeDebugConfiguration{NodeID: "hub-7"})

			Convey("Then every connection should receive it", func() {
				for _, s := range []*fakeSender{tenantOnly, other} {
					s := s
					So(eventually(func() bool { return s.count(types.EventDebugConfigChanged) == 1 }), ShouldBeTrue)
				}
				So(eventually(func() bool { return deviceOnly.count(types.EventDebugConfigChanged) == 2 }), ShouldBeTrue)
			})
		})

		Convey("Given a connection that does not read", func() {
			stuck := &fakeSender{block: make(chan struct{})}
			registry.Register("stuck", tenantID, stuck)
			Reset(func() {
				close(stuck.block)
				registry.Unregister("stuck")
			})

			Convey("When more events are published than fit in its buffer", func() {
				for i := 0; i < BufferSize+5; i++ {
					fanout.NotifyAlertAcknowledged(tenantID, &types.Alert{})
					n := i + 1
					eventually(func() bool { return tenantOnly.count(types.EventAlertAcknowledged) == n })
				}

				Convey("Then other connections should still receive every event", func() {
					So(eventually(func() bool { return tenantOnly.count(types.EventAlertAcknowledged) == BufferSize+5 }), ShouldBeTrue)
				})

				Convey("Then events for the stuck connection should be dropped", func() {
					So(logs.String(), ShouldContainSubstring, "Dropping event: buffer full")
				})
			})
		})

		Convey("Given a connection whose sends fail", func() {
			failing := &fakeSender{err: errors.New("connection closed")}
			registry.Register("failing", tenantID, failing)
			Reset(func() { registry.Unregister("failing") })

			Convey("When an event is published", func() {
				fanout.NotifyAlertAcknowledged(tenantID, &types.Alert{})
				Convey("Then the failure should not affect other connections", func() {
					So(eventually(func() bool { return tenantOnly.count(types.EventAlertAcknowledged) == 1 }), ShouldBeTrue)
				})
			})
		})
	})
}
