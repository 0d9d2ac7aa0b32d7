// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package amqp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/backend"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// Config contains configuration for AMQP
type Config struct {
	Address        string
	Username       string
	Password       string
	VHost          string
	ExchangeName   string
	ConsumerPrefix string
	Heartbeat      time.Duration
	TLSConfig      *tls.Config
}

func (c Config) url() (url string) {
	if c.TLSConfig != nil {
		url += "amqps://"
	} else {
		url += "amqp://"
	}
	if c.Username != "" {
		url += c.Username
		if c.Password != "" {
			url += ":" + c.Password
		}
		url += "@"
	}
	url += c.Address
	if c.VHost != "" {
		url += "/" + c.VHost
	}
	return
}

// ErrNotConnected is returned when subscribing without a connection
var ErrNotConnected = errors.New("amqp: not connected")

// AMQP transport
type AMQP struct {
	ctx    log.Interface
	config Config

	mu        sync.Mutex
	conn      *amqp.Connection
	consumers int
}

var _ backend.Transport = &AMQP{}

// New returns a new AMQP
func New(config Config, ctx log.Interface) *AMQP {
	if config.ExchangeName == "" {
		config.ExchangeName = "amq.topic"
	}
	if config.ConsumerPrefix == "" {
		config.ConsumerPrefix = "iotgrid-bridge"
		if user, err := user.Current(); err == nil {
			config.ConsumerPrefix += "-" + user.Username
		}
		if hostname, err := os.Hostname(); err == nil {
			config.ConsumerPrefix += "@" + hostname
		}
	}
	if config.Heartbeat == 0 {
		config.Heartbeat = 30 * time.Second
	}
	return &AMQP{
		ctx:    ctx.WithField("Connector", "AMQP"),
		config: config,
	}
}

// Connect to AMQP
func (c *AMQP) Connect(lost func(error)) error {
	conn, err := amqp.DialConfig(c.config.url(), amqp.Config{
		Heartbeat:       c.config.Heartbeat,
		TLSClientConfig: c.config.TLSConfig,
	})
	if err != nil {
		return fmt.Errorf("amqp: could not connect: %w", err)
	}

	if !strings.HasPrefix(c.config.ExchangeName, "amq.") {
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return fmt.Errorf("amqp: could not open channel: %w", err)
		}
		err = ch.ExchangeDeclare(c.config.ExchangeName, "topic", true, false, false, false, nil)
		ch.Close()
		if err != nil {
			conn.Close()
			return fmt.Errorf("amqp: could not declare exchange %s: %w", c.config.ExchangeName, err)
		}
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		// A graceful close closes the channel without an error
		if err, ok := <-closed; ok && err != nil {
			c.ctx.WithError(err).Warn("Connection closed by broker")
			lost(err)
		}
	}()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.ctx.Info("Connected")
	return nil
}

// Subscribe to a topic filter
func (c *AMQP) Subscribe(filter string, handler backend.MessageHandler) error {
	c.mu.Lock()
	conn := c.conn
	c.consumers++
	consumer := fmt.Sprintf("%s-%d", c.config.ConsumerPrefix, c.consumers)
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	routingKey := RoutingKey(filter)
	ctx := c.ctx.WithField("RoutingKey", routingKey)

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp: could not open channel: %w", err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("amqp: could not declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, routingKey, c.config.ExchangeName, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("amqp: could not bind queue to %s: %w", routingKey, err)
	}
	deliveries, err := ch.Consume(queue.Name, consumer, true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("amqp: could not consume %s: %w", routingKey, err)
	}

	go func() {
		for delivery := range deliveries {
			handler(types.NewInboundMessage(Topic(delivery.RoutingKey), delivery.Body))
		}
		ctx.Debug("Stopped consuming")
	}()

	ctx.Debug("Subscribed")
	return nil
}

// Disconnect from AMQP
func (c *AMQP) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.ctx.WithError(err).Debug("Could not close connection")
	}
	c.conn = nil
}

// RoutingKey translates an MQTT topic filter to an AMQP topic exchange binding key
func RoutingKey(filter string) string {
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if level == "+" {
			levels[i] = "*"
		}
	}
	return strings.Join(levels, ".")
}

// Topic translates an AMQP routing key to an MQTT topic
func Topic(routingKey string) string {
	return strings.Replace(routingKey, ".", "/", -1)
}

var brokerRegexp = regexp.MustCompile(`^(?:([0-9A-Za-z_-]+)(?::([^@]+))?@)?([0-9A-Za-z.-]+:[0-9]+)$`)

// ParseBroker parses a broker in the form user:pass@host:port
func ParseBroker(broker string) (Config, error) {
	parts := brokerRegexp.FindStringSubmatch(broker)
	if parts == nil {
		return Config{}, fmt.Errorf("amqp: invalid broker address %q", broker)
	}
	return Config{
		Address:  parts[3],
		Username: parts[1],
		Password: parts[2],
	}, nil
}
