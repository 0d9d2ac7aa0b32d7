// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
)

// OverflowPolicy decides what happens when the dispatch queue is full
type OverflowPolicy int

// Overflow policies
const (
	// DropOldest discards the oldest queued message to make room
	DropOldest OverflowPolicy = iota
	// Block makes the broker callback wait until there is room
	Block
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case Block:
		return "block"
	}
	return "unknown"
}

// ParseOverflowPolicy parses "drop-oldest" or "block"
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "drop-oldest":
		return DropOldest, nil
	case "block":
		return Block, nil
	}
	return DropOldest, fmt.Errorf("router: unknown overflow policy %q", s)
}

// DispatcherConfig configures the worker pool
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Overflow  OverflowPolicy
}

// Defaults for DispatcherConfig
var (
	DefaultWorkers   = 8
	DefaultQueueSize = 256
)

// Routable is implemented by Router
type Routable interface {
	Route(ctx context.Context, msg *types.InboundMessage) bool
}

// Dispatcher hands messages from the broker callback to a fixed number of workers
type Dispatcher struct {
	ctx    log.Interface
	config DispatcherConfig
	router Routable

	queue     chan *types.InboundMessage
	done      chan struct{}
	baseCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher returns a new Dispatcher
func NewDispatcher(config DispatcherConfig, router Routable, ctx log.Interface) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:     ctx.WithField("Component", "Dispatcher"),
		config:  config,
		router:  router,
		queue:   make(chan *types.InboundMessage, config.QueueSize),
		done:    make(chan struct{}),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
}

// Start the workers
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.config.Workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
		d.ctx.WithFields(log.Fields{
			"Workers":   d.config.Workers,
			"QueueSize": d.config.QueueSize,
			"Overflow":  d.config.Overflow,
		}).Debug("Started")
	})
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case msg := <-d.queue:
			queueDepth.Dec()
			d.router.Route(d.baseCtx, msg)
		}
	}
}

// Submit a message. Its signature matches backend.MessageHandler.
func (d *Dispatcher) Submit(msg *types.InboundMessage) {
	select {
	case <-d.done:
		d.ctx.WithField("Topic", msg.Topic).Debug("Dropping message: dispatcher stopped")
		return
	default:
	}

	if d.config.Overflow == Block {
		select {
		case d.queue <- msg:
			queueDepth.Inc()
		case <-d.done:
		}
		return
	}

	for {
		select {
		case d.queue <- msg:
			queueDepth.Inc()
			return
		default:
		}
		select {
		case dropped := <-d.queue:
			queueDepth.Dec()
			droppedCounter.Inc()
			d.ctx.WithField("Topic", dropped.Topic).Warn("Dropping oldest message: queue full")
		default:
		}
	}
}

// Stop the workers. Queued messages are abandoned; messages that are being
// handled get until the timeout to finish. Returns false on timeout.
func (d *Dispatcher) Stop(timeout time.Duration) (finished bool) {
	d.stopOnce.Do(func() {
		close(d.done)
		stopped := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(stopped)
		}()
		select {
		case <-stopped:
			finished = true
		case <-time.After(timeout):
			d.ctx.Warn("Abandoning messages that are still being handled")
		}
		d.cancel()
	})
	return
}
