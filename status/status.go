// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package status serves the status of the bridge over HTTP: the state of the
// broker connection, the number of live connections and message rates.
package status

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/connection"
	metrics "github.com/rcrowley/go-metrics"
)

// Broker is the broker connection whose state is reported
type Broker interface {
	State() connection.State
	Attempts() int
	Exhausted() <-chan struct{}
}

// Connections counts the live client connections
type Connections interface {
	Count() int
}

var global = newStatusServer()

type statusServer struct {
	mu          sync.RWMutex
	accessKeys  []string
	broker      Broker
	connections Connections
	started     time.Time

	messages metrics.Meter
	events   metrics.Meter
}

func newStatusServer() *statusServer {
	return &statusServer{
		started:  time.Now(),
		messages: metrics.NewMeter(),
		events:   metrics.NewMeter(),
	}
}

func (s *statusServer) AddAccessKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessKeys = append(s.accessKeys, key)
}

// AddAccessKey adds an access key for a client
func AddAccessKey(key string) {
	global.AddAccessKey(key)
}

func (s *statusServer) Watch(broker Broker, connections Connections) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broker = broker
	s.connections = connections
}

// Watch the broker connection and the live connections in the default status server
func Watch(broker Broker, connections Connections) {
	global.Watch(broker, connections)
}

func (s *statusServer) Message() {
	s.messages.Mark(1)
}

// Message registers a routed message in the default status server
func Message() {
	global.Message()
}

func (s *statusServer) Event() {
	s.events.Mark(1)
}

// Event registers a published event in the default status server
func Event() {
	global.Event()
}

// Rates of a meter
type Rates struct {
	Count  int64   `json:"count"`
	Rate1  float64 `json:"rate1"`
	Rate5  float64 `json:"rate5"`
	Rate15 float64 `json:"rate15"`
}

func rates(m metrics.Meter) Rates {
	snapshot := m.Snapshot()
	return Rates{
		Count:  snapshot.Count(),
		Rate1:  snapshot.Rate1(),
		Rate5:  snapshot.Rate5(),
		Rate15: snapshot.Rate15(),
	}
}

// BrokerStatus is the state of the broker connection
type BrokerStatus struct {
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	Exhausted bool   `json:"exhausted"`
}

// Response of the status endpoint
type Response struct {
	Uptime      string        `json:"uptime"`
	Broker      *BrokerStatus `json:"broker,omitempty"`
	Connections int           `json:"connections"`
	Messages    Rates         `json:"messages"`
	Events      Rates         `json:"events"`
}

func (s *statusServer) getStatus() *Response {
	s.mu.RLock()
	broker, connections := s.broker, s.connections
	s.mu.RUnlock()

	status := &Response{
		Uptime:   time.Since(s.started).Truncate(time.Second).String(),
		Messages: rates(s.messages),
		Events:   rates(s.events),
	}
	if broker != nil {
		status.Broker = &BrokerStatus{
			State:    broker.State().String(),
			Attempts: broker.Attempts(),
		}
		select {
		case <-broker.Exhausted():
			status.Broker.Exhausted = true
		default:
		}
	}
	if connections != nil {
		status.Connections = connections.Count()
	}
	return status
}

func (s *statusServer) authorized(r *http.Request) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.accessKeys) == 0 {
		return true
	}
	key := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Key "))
	for _, allowed := range s.accessKeys {
		if key == allowed {
			return true
		}
	}
	return false
}

func (s *statusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.getStatus())
}

// Handler returns the HTTP handler of the default status server
func Handler() http.Handler {
	return global
}
