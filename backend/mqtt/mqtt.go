// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/backend"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// ConnectTimeout is the time after which a connection attempt is given up
var ConnectTimeout = 10 * time.Second

// SubscribeTimeout is the time after which a subscription attempt is given up
var SubscribeTimeout = 5 * time.Second

// Config contains configuration for MQTT
type Config struct {
	Brokers   []string
	Username  string
	Password  string
	ClientID  string
	KeepAlive time.Duration
	// QoS of the subscriptions.
	// 0: The broker/client will deliver the message once, with no confirmation.
	// 1: The broker/client will deliver the message at least once, with confirmation required.
	QoS       byte
	TLSConfig *tls.Config
	// IgnoreRetained drops retained messages instead of delivering them.
	IgnoreRetained bool
}

var brokerRegexp = regexp.MustCompile(`^(?:([0-9A-Za-z_-]+)(?::([^@]+))?@)?([0-9A-Za-z.-]+:[0-9]+)$`)

// ParseBroker parses a broker in the form user:pass@host:port or a broker URL
func ParseBroker(broker string) (Config, error) {
	if strings.Contains(broker, "://") {
		return Config{Brokers: []string{broker}}, nil
	}
	parts := brokerRegexp.FindStringSubmatch(broker)
	if parts == nil {
		return Config{}, fmt.Errorf("mqtt: invalid broker address %q", broker)
	}
	return Config{
		Brokers:  []string{"tcp://" + parts[3]},
		Username: parts[1],
		Password: parts[2],
	}, nil
}

// ErrConnectTimeout is returned when the broker does not answer in time
var ErrConnectTimeout = errors.New("mqtt: connect timed out")

// MQTT transport
type MQTT struct {
	ctx    log.Interface
	config Config
	client paho.Client

	mu   sync.Mutex
	lost func(error)
}

var _ backend.Transport = &MQTT{}

// New returns a new MQTT
func New(config Config, ctx log.Interface) *MQTT {
	mqtt := &MQTT{
		ctx: ctx.WithField("Connector", "MQTT"),
	}
	if config.ClientID == "" {
		config.ClientID = fmt.Sprintf("iotgrid-bridge-%s", uuid.NewString())
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = 30 * time.Second
	}

	mqttOpts := paho.NewClientOptions()
	for _, broker := range config.Brokers {
		mqttOpts.AddBroker(broker)
	}
	if config.TLSConfig != nil {
		mqttOpts.SetTLSConfig(config.TLSConfig)
	}
	mqttOpts.SetClientID(config.ClientID)
	mqttOpts.SetUsername(config.Username)
	mqttOpts.SetPassword(config.Password)
	mqttOpts.SetKeepAlive(config.KeepAlive)
	mqttOpts.SetPingTimeout(10 * time.Second)
	mqttOpts.SetCleanSession(true)
	mqttOpts.SetAutoReconnect(false)
	mqttOpts.SetConnectRetry(false)
	mqttOpts.SetOrderMatters(false)
	mqttOpts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		mqtt.ctx.WithField("Topic", msg.Topic()).Warn("Received unhandled message on MQTT")
	})
	mqttOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		mqtt.mu.Lock()
		lost := mqtt.lost
		mqtt.mu.Unlock()
		if lost != nil {
			lost(err)
		}
	})

	mqtt.config = config
	mqtt.client = paho.NewClient(mqttOpts)
	return mqtt
}

// Connect to MQTT
func (c *MQTT) Connect(lost func(error)) error {
	c.mu.Lock()
	c.lost = lost
	c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(ConnectTimeout) {
		return ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: could not connect: %w", err)
	}
	c.ctx.Info("Connected")
	return nil
}

func (c *MQTT) deliver(ctx log.Interface, handler backend.MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if msg.Retained() && c.config.IgnoreRetained {
			ctx.WithField("Topic", msg.Topic()).Debug("Ignore retained message")
			return
		}
		handler(types.NewInboundMessage(msg.Topic(), msg.Payload()))
	}
}

// Subscribe to a topic filter
func (c *MQTT) Subscribe(filter string, handler backend.MessageHandler) error {
	ctx := c.ctx.WithField("Filter", filter)
	token := c.client.Subscribe(filter, c.config.QoS, c.deliver(ctx, handler))
	if !token.WaitTimeout(SubscribeTimeout) {
		return fmt.Errorf("mqtt: subscribe to %s timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: could not subscribe to %s: %w", filter, err)
	}
	ctx.Debug("Subscribed")
	return nil
}

// Disconnect from MQTT
func (c *MQTT) Disconnect() {
	c.mu.Lock()
	c.lost = nil
	c.mu.Unlock()
	c.client.Disconnect(250)
}
