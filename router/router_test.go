// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/TheThingsNetwork/iotgrid-bridge/middleware"
	"github.com/TheThingsNetwork/iotgrid-bridge/topics"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingHandler struct {
	mu     sync.Mutex
	result bool
	calls  int
	scopes []*types.TenantScope
	params []Params
}

func (h *recordingHandler) Handle(_ context.Context, scope *types.TenantScope, _ *types.InboundMessage, params Params) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.scopes = append(h.scopes, scope)
	h.params = append(h.params, params)
	return h.result
}

func TestRouter(t *testing.T) {
	scheme := topics.New("")
	tenantID := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")

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

		Convey("Given a Router with the telemetry routes", func() {
			sensorData := &recordingHandler{result: true}
			readings := &recordingHandler{result: true}
			hubStatus := &recordingHandler{result: true}

			r := New(ctx)
			r.Add("sensordata", scheme.SensorDataPattern(), sensorData)
			r.Add("readings", scheme.ReadingsPattern(), readings)
			r.Add("hubstatus", scheme.HubStatusPattern(), hubStatus)

			all := []*recordingHandler{sensorData, readings, hubStatus}
			totalCalls := func() (n int) {
				for _, h := range all {
					n += h.calls
				}
				return
			}

			Convey("Then every topic built from a template should be handled by exactly one handler", func() {
				for i, topic := range []string{
					scheme.SensorData(tenantID),
					scheme.Readings(tenantID),
					scheme.HubStatus(tenantID, "hub-7"),
				} {
					So(r.Route(context.Background(), types.NewInboundMessage(topic, nil)), ShouldBeTrue)
					So(all[i].calls, ShouldEqual, 1)
				}
				So(totalCalls(), ShouldEqual, 3)
			})

			Convey("When routing a hub status message", func() {
				r.Route(context.Background(), types.NewInboundMessage(scheme.HubStatus(tenantID, "hub-7"), []byte("offline")))

				Convey("Then the handler should get the tenant in its scope and the hub as param", func() {
					So(hubStatus.scopes[0].TenantID, ShouldEqual, tenantID)
					So(hubStatus.params[0].Get(topics.HubParam), ShouldEqual, "hub-7")
					So(hubStatus.params[0], ShouldNotContainKey, topics.TenantParam)
				})

				Convey("Then the scope should have ended when Route returned", func() {
					So(hubStatus.scopes[0].Ended(), ShouldBeTrue)
				})
			})

			Convey("When routing the same topic twice", func() {
				r.Route(context.Background(), types.NewInboundMessage(scheme.Readings(tenantID), nil))
				r.Route(context.Background(), types.NewInboundMessage(scheme.Readings(tenantID), nil))

				Convey("Then each message should get its own scope", func() {
					So(readings.scopes, ShouldHaveLength, 2)
					So(readings.scopes[0], ShouldNotPointTo, readings.scopes[1])
				})
			})

			Convey("When routing topics with malformed tenants", func() {
				for _, tenant := range []string{"not-a-uuid", "0f8fad5b-d9cb-469f-a165", "tenant", "0f8fad5b-d9cb-469f-a165-70867728950z"} {
					So(r.Route(context.Background(), types.NewInboundMessage(fmt.Sprintf("myiotgrid/%s/readings", tenant), nil)), ShouldBeFalse)
					So(r.Route(context.Background(), types.NewInboundMessage(fmt.Sprintf("myiotgrid/%s/hubs/h/status", tenant), nil)), ShouldBeFalse)
				}

				Convey("Then no handler should be called", func() {
					So(totalCalls(), ShouldEqual, 0)
				})

				Convey("Then a warning should be logged", func() {
					So(logs.String(), ShouldContainSubstring, "Invalid tenant in topic")
				})
			})

			Convey("When routing a topic that has no route", func() {
				handled := r.Route(context.Background(), types.NewInboundMessage(scheme.Alerts(tenantID), nil))

				Convey("Then it should not be handled", func() {
					So(handled, ShouldBeFalse)
					So(totalCalls(), ShouldEqual, 0)
					So(logs.String(), ShouldContainSubstring, "No route for topic")
				})
			})

			Convey("When a handler rejects a message", func() {
				readings.result = false
				handled := r.Route(context.Background(), types.NewInboundMessage(scheme.Readings(tenantID), nil))

				Convey("Then the message should not be handled", func() {
					So(handled, ShouldBeFalse)
					So(readings.calls, ShouldEqual, 1)
				})
			})
		})

		Convey("Given a Router with two overlapping routes", func() {
			first := &recordingHandler{result: true}
			second := &recordingHandler{result: true}
			r := New(ctx)
			r.Add("first", regexp.MustCompile(`^myiotgrid/(?P<tenant>[^/]+)/.*$`), first)
			r.Add("second", scheme.ReadingsPattern(), second)

			Convey("Then only the first matching route should be called", func() {
				So(r.Route(context.Background(), types.NewInboundMessage(scheme.Readings(tenantID), nil)), ShouldBeTrue)
				So(first.calls, ShouldEqual, 1)
				So(second.calls, ShouldEqual, 0)
			})
		})

		Convey("Given a Router with a middleware that rejects everything", func() {
			h := &recordingHandler{result: true}
			r := New(ctx, middleware.Func(func(*types.TenantScope, *types.InboundMessage) error {
				return errors.New("blocked")
			}))
			r.Add("readings", scheme.ReadingsPattern(), h)

			Convey("Then the handler should not be called", func() {
				So(r.Route(context.Background(), types.NewInboundMessage(scheme.Readings(tenantID), nil)), ShouldBeFalse)
				So(h.calls, ShouldEqual, 0)
			})
		})

		Convey("When adding a route without a tenant group", func() {
			r := New(ctx)
			Convey("Then it should panic", func() {
				So(func() { r.Add("bad", regexp.MustCompile(`^x/([^/]+)$`), &recordingHandler{}) }, ShouldPanic)
			})
		})

		Convey("Given concurrent messages of different tenants", func() {
			tenants := []uuid.UUID{uuid.New(), uuid.New()}
			var mu sync.Mutex
			var mismatches, calls int

			r := New(ctx)
			r.Add("readings", scheme.ReadingsPattern(), HandlerFunc(func(_ context.Context, scope *types.TenantScope, msg *types.InboundMessage, _ Params) bool {
				expected := uuid.MustParse(string(msg.Payload))
				mu.Lock()
				defer mu.Unlock()
				calls++
				if scope.TenantID != expected || scope.Topic != msg.Topic {
					mismatches++
				}
				return true
			}))

			var wg sync.WaitGroup
			for i := 0; i < 200; i++ {
				tenant := tenants[i%2]
				wg.Add(1)
				go func() {
					defer wg.Done()
					r.Route(context.Background(), types.NewInboundMessage(scheme.Readings(tenant), []byte(tenant.String())))
				}()
			}
			wg.Wait()

			Convey("Then every handler should have seen the tenant of its own message", func() {
				So(calls, ShouldEqual, 200)
				So(mismatches, ShouldEqual, 0)
			})
		})
	})
}
