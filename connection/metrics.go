// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package connection

import "github.com/prometheus/client_golang/prometheus"

var brokerConnected = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "iotgrid",
		Subsystem: "bridge",
		Name:      "broker_connected",
		Help:      "Whether the bridge is connected to the broker.",
	},
)

var connectionEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotgrid",
		Subsystem: "bridge",
		Name:      "broker_connection_events_total",
		Help:      "Total number of broker connection events.",
	}, []string{"event"},
)

func init() {
	prometheus.MustRegister(brokerConnected)
	prometheus.MustRegister(connectionEvents)
}
