// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package router

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	. "github.com/smartystreets/goconvey/convey"
)

type blockingRouter struct {
	started chan string
	release chan struct{}

	mu     sync.Mutex
	routed []string
}

func newBlockingRouter() *blockingRouter {
	return &blockingRouter{
		started: make(chan string, 100),
		release: make(chan struct{}),
	}
}

func (r *blockingRouter) Route(_ context.Context, msg *types.InboundMessage) bool {
	r.started <- msg.Topic
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed = append(r.routed, msg.Topic)
	return true
}

func (r *blockingRouter) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routed...)
}

func waitFor(ch <-chan string) string {
	select {
	case topic := <-ch:
		return topic
	case <-time.After(2 * time.Second):
		return ""
	}
}

func TestDispatcher(t *testing.T) {
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

		Convey("When parsing overflow policies", func() {
			p, err := ParseOverflowPolicy("block")
			So(err, ShouldBeNil)
			So(p, ShouldEqual, Block)
			p, err = ParseOverflowPolicy("")
			So(err, ShouldBeNil)
			So(p, ShouldEqual, DropOldest)
			_, err = ParseOverflowPolicy("drop-newest")
			So(err, ShouldNotBeNil)
		})

		Convey("Given a Dispatcher with one worker, a queue of two and drop-oldest", func() {
			r := newBlockingRouter()
			d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 2, Overflow: DropOldest}, r, ctx)
			d.Start()

			Convey("When more messages are submitted than fit in the queue", func() {
				d.Submit(types.NewInboundMessage("m1", nil))
				So(waitFor(r.started), ShouldEqual, "m1")
				d.Submit(types.NewInboundMessage("m2", nil))
				d.Submit(types.NewInboundMessage("m3", nil))
				d.Submit(types.NewInboundMessage("m4", nil))

				Convey("Then the oldest queued message should be dropped", func() {
					close(r.release)
					So(waitFor(r.started), ShouldEqual, "m3")
					So(waitFor(r.started), ShouldEqual, "m4")
					So(d.Stop(time.Second), ShouldBeTrue)
					So(r.get(), ShouldResemble, []string{"m1", "m3", "m4"})
					So(logs.String(), ShouldContainSubstring, "Dropping oldest message")
				})
			})
		})

		Convey("Given a Dispatcher with one worker, a queue of one and block", func() {
			r := newBlockingRouter()
			d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 1, Overflow: Block}, r, ctx)
			d.Start()

			d.Submit(types.NewInboundMessage("m1", nil))
			So(waitFor(r.started), ShouldEqual, "m1")
			d.Submit(types.NewInboundMessage("m2", nil))

			Convey("When the queue is full", func() {
				submitted := make(chan struct{})
				go func() {
					d.Submit(types.NewInboundMessage("m3", nil))
					close(submitted)
				}()

				Convey("Then Submit should block until there is room", func() {
					select {
					case <-submitted:
						So("Submit returned early", ShouldBeFalse)
					case <-time.After(20 * time.Millisecond):
					}
					close(r.release)
					select {
					case <-submitted:
					case <-time.After(2 * time.Second):
						So("Timeout Exceeded", ShouldBeFalse)
					}
					So(waitFor(r.started), ShouldEqual, "m2")
					So(waitFor(r.started), ShouldEqual, "m3")
					So(d.Stop(time.Second), ShouldBeTrue)
					So(r.get(), ShouldResemble, []string{"m1", "m2", "m3"})
				})
			})
		})

		Convey("Given a Dispatcher with a handler that does not return", func() {
			r := newBlockingRouter()
			d := NewDispatcher(DispatcherConfig{Workers: 1}, r, ctx)
			d.Start()
			d.Submit(types.NewInboundMessage("m1", nil))
			So(waitFor(r.started), ShouldEqual, "m1")

			Convey("Then Stop should give up after the timeout", func() {
				So(d.Stop(10*time.Millisecond), ShouldBeFalse)
				close(r.release)
			})

			Convey("Then Submit after Stop should not block", func() {
				d.Stop(10 * time.Millisecond)
				d.Submit(types.NewInboundMessage("m2", nil))
				So(logs.String(), ShouldContainSubstring, "dispatcher stopped")
				close(r.release)
			})
		})
	})
}
