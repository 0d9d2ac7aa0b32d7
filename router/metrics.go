// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package router

import "github.com/prometheus/client_golang/prometheus"

const (
	resultHandled  = "handled"
	resultRejected = "rejected"
	resultFiltered = "filtered"
	resultInvalid  = "invalid"
	resultUnrouted = "unrouted"
)

var routedCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotgrid",
		Subsystem: "bridge",
		Name:      "messages_routed_total",
		Help:      "Total number of inbound messages by route and result.",
	}, []string{"route", "result"},
)

var droppedCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "iotgrid",
		Subsystem: "bridge",
		Name:      "messages_dropped_total",
		Help:      "Total number of inbound messages dropped because the dispatch queue was full.",
	},
)

var queueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "iotgrid",
		Subsystem: "bridge",
		Name:      "dispatch_queue_depth",
		Help:      "Number of inbound messages waiting for a worker.",
	},
)

func registerRouted(route, result string) {
	routedCounter.WithLabelValues(route, result).Inc()
}

func init() {
	prometheus.MustRegister(routedCounter)
	prometheus.MustRegister(droppedCounter)
	prometheus.MustRegister(queueDepth)
}
