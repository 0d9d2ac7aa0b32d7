// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package connection owns the single broker connection of the bridge.
package connection

import (
	"sync"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/backend"
	"github.com/apex/log"
)

// State of the broker connection
type State int

// Connection states
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Defaults for Config
var (
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectDelay       = 5 * time.Second
)

// Config of the reconnect policy
type Config struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

type subscription struct {
	filter  string
	handler backend.MessageHandler
}

// Manager keeps one transport connected and replays the subscriptions after every connect
type Manager struct {
	ctx       log.Interface
	config    Config
	transport backend.Transport

	subscriptions []subscription

	mu        sync.RWMutex
	state     State
	attempts  int
	stopped   bool
	listeners []func(State)

	lost      chan error
	done      chan struct{}
	exhausted chan struct{}
	finished  chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns a new Manager for the transport
func New(config Config, transport backend.Transport, ctx log.Interface) *Manager {
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	return &Manager{
		ctx:       ctx.WithField("Component", "Connection"),
		config:    config,
		transport: transport,
		lost:      make(chan error, 1),
		done:      make(chan struct{}),
		exhausted: make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Subscribe adds filters to the static subscription list. It must be called before Start.
func (m *Manager) Subscribe(filters []string, handler backend.MessageHandler) {
	for _, filter := range filters {
		m.subscriptions = append(m.subscriptions, subscription{filter, handler})
	}
}

// OnStateChange registers a func that is called on every state transition
func (m *Manager) OnStateChange(f func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, f)
}

// State returns the current state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns the number of consecutive failed connection attempts
func (m *Manager) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// Exhausted is closed when the manager gave up reconnecting
func (m *Manager) Exhausted() <-chan struct{} {
	return m.exhausted
}

// Start connecting in the background
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

// Stop disconnects and stops reconnecting. The manager can not be restarted.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		wasConnected := m.state == Connected
		m.mu.Unlock()
		close(m.done)

		started := true
		m.startOnce.Do(func() { started = false })
		if started {
			<-m.finished
		}
		if wasConnected || m.State() == Connected {
			m.transport.Disconnect()
		}
		m.setState(Disconnected)
		m.ctx.Info("Stopped")
	})
}

func (m *Manager) connectionLost(err error) {
	select {
	case m.lost <- err:
	default:
	}
}

func (m *Manager) run() {
	defer close(m.finished)
	for {
		if !m.connectWithRetry() {
			return
		}
		select {
		case err := <-m.lost:
			connectionEvents.WithLabelValues("lost").Inc()
			ctx := m.ctx
			if err != nil {
				ctx = ctx.WithError(err)
			}
			ctx.Warn("Connection lost, reconnecting")
			m.setState(Disconnected)
			select {
			case <-time.After(m.config.ReconnectDelay):
			case <-m.done:
				return
			}
		case <-m.done:
			return
		}
	}
}

// connectWithRetry returns false if the manager was stopped or gave up
func (m *Manager) connectWithRetry() bool {
	for {
		select {
		case <-m.done:
			return false
		default:
		}

		m.setState(Connecting)
		// Drain a loss that was reported for the previous connection
		select {
		case <-m.lost:
		default:
		}

		err := m.transport.Connect(m.connectionLost)
		if err == nil {
			m.mu.Lock()
			if m.stopped {
				m.mu.Unlock()
				m.transport.Disconnect()
				return false
			}
			m.attempts = 0
			m.mu.Unlock()
			connectionEvents.WithLabelValues("connected").Inc()
			m.setState(Connected)
			m.resubscribe()
			return true
		}

		m.mu.Lock()
		m.attempts++
		attempts := m.attempts
		m.mu.Unlock()
		connectionEvents.WithLabelValues("failed").Inc()
		m.setState(Disconnected)

		ctx := m.ctx.WithError(err).WithFields(log.Fields{
			"Attempt":     attempts,
			"MaxAttempts": m.config.MaxReconnectAttempts,
		})
		if attempts >= m.config.MaxReconnectAttempts {
			ctx.WithField("fatal", true).Error("Could not connect to broker, giving up")
			close(m.exhausted)
			return false
		}
		ctx.Warnf("Could not connect to broker, retrying in %s", m.config.ReconnectDelay)

		select {
		case <-time.After(m.config.ReconnectDelay):
		case <-m.done:
			return false
		}
	}
}

// resubscribe replays the static subscription list on a fresh session
func (m *Manager) resubscribe() {
	for _, sub := range m.subscriptions {
		if err := m.transport.Subscribe(sub.filter, sub.handler); err != nil {
			m.ctx.WithError(err).WithField("Filter", sub.filter).Error("Could not subscribe")
			continue
		}
		m.ctx.WithField("Filter", sub.filter).Info("Subscribed")
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	listeners := make([]func(State), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if state == Connected {
		brokerConnected.Set(1)
	} else {
		brokerConnected.Set(0)
	}
	for _, listener := range listeners {
		listener(state)
	}
}
