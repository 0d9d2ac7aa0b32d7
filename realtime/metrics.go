// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package realtime

import "github.com/prometheus/client_golang/prometheus"

var liveConnections = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "iotgrid",
		Subsystem: "bridge",
		Name:      "live_connections",
		Help:      "Number of live client connections.",
	},
)

var eventsSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotgrid",
		Subsystem: "bridge",
		Name:      "events_sent_total",
		Help:      "Total number of events sent to live connections.",
	}, []string{"event"},
)

var eventsDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "iotgrid",
		Subsystem: "bridge",
		Name:      "events_dropped_total",
		Help:      "Total number of events dropped because a connection buffer was full.",
	},
)

func init() {
	prometheus.MustRegister(liveConnections)
	prometheus.MustRegister(eventsSent)
	prometheus.MustRegister(eventsDropped)
}
