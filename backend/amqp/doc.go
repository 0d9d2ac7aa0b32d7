// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package amqp connects to an AMQP broker in order to receive telemetry from hubs and nodes.
//
// Brokers such as RabbitMQ expose MQTT traffic on a topic exchange (amq.topic by
// default), replacing the "/" topic separator with "." and the "+" wildcard with
// "*". Subscriptions are given as MQTT filters and translated to routing keys;
// routing keys of deliveries are translated back to MQTT topics, so the rest of
// the bridge does not need to know which broker it talks to.
//
// Every subscription gets its own exclusive, auto-deleted queue, which is
// removed by the broker when the connection is lost. The connection manager
// replays the subscriptions after reconnecting.
package amqp
