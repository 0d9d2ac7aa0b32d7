// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/TheThingsNetwork/iotgrid-bridge/api"
	"github.com/TheThingsNetwork/iotgrid-bridge/backend"
	"github.com/TheThingsNetwork/iotgrid-bridge/backend/amqp"
	"github.com/TheThingsNetwork/iotgrid-bridge/backend/dummy"
	"github.com/TheThingsNetwork/iotgrid-bridge/backend/mqtt"
	"github.com/TheThingsNetwork/iotgrid-bridge/connection"
	"github.com/TheThingsNetwork/iotgrid-bridge/handler"
	"github.com/TheThingsNetwork/iotgrid-bridge/middleware"
	"github.com/TheThingsNetwork/iotgrid-bridge/middleware/blocklist"
	"github.com/TheThingsNetwork/iotgrid-bridge/middleware/debug"
	"github.com/TheThingsNetwork/iotgrid-bridge/middleware/deduplicate"
	"github.com/TheThingsNetwork/iotgrid-bridge/middleware/ratelimit"
	"github.com/TheThingsNetwork/iotgrid-bridge/monitor"
	"github.com/TheThingsNetwork/iotgrid-bridge/realtime"
	"github.com/TheThingsNetwork/iotgrid-bridge/router"
	"github.com/TheThingsNetwork/iotgrid-bridge/service"
	"github.com/TheThingsNetwork/iotgrid-bridge/status"
	"github.com/TheThingsNetwork/iotgrid-bridge/store"
	"github.com/TheThingsNetwork/iotgrid-bridge/topics"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	jsonlog "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BridgeCmd is the main command that is executed when running iotgrid-bridge
var BridgeCmd = &cobra.Command{
	Use:   "iotgrid-bridge",
	Short: "myIoTGrid telemetry bridge",
	Long:  `iotgrid-bridge bridges between the telemetry broker and live dashboard connections`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logHandlers []log.Handler

		logHandlers = append(logHandlers, cli.New(os.Stdout))

		if logFileLocation := config.GetString("log-file"); logFileLocation != "" {
			absLogFileLocation, err := filepath.Abs(logFileLocation)
			if err != nil {
				panic(err)
			}
			logFile, err = os.OpenFile(absLogFileLocation, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
			if err != nil {
				panic(err)
			}
			logHandlers = append(logHandlers, jsonlog.New(logFile))
		}

		ctx = &log.Logger{
			Level:   log.InfoLevel,
			Handler: multi.New(logHandlers...),
		}
		if config.GetBool("debug") {
			ctx.Level = log.DebugLevel
		}
	},
	Run: runBridge,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			time.Sleep(100 * time.Millisecond)
			logFile.Close()
		}
	},
}

func runBridge(cmd *cobra.Command, args []string) {
	if err := validateConfig(config); err != nil {
		ctx.WithError(err).Fatal("Invalid configuration")
	}
	scheme := topics.New(config.GetString("topic-prefix"))

	var defaultTenant uuid.UUID
	if tenant := config.GetString("default-tenant"); tenant != "" {
		defaultTenant = uuid.MustParse(tenant)
	}

	// Set up the store
	var st store.Store
	if config.GetBool("redis") {
		client := redis.NewClient(&redis.Options{
			Addr:     config.GetString("redis-address"),
			Password: config.GetString("redis-password"),
			DB:       config.GetInt("redis-db"),
		})
		defer client.Close()
		ctx.Info("Initializing Redis store")
		st = store.NewRedis(client, "")
	} else {
		ctx.Info("Initializing Memory store")
		st = store.NewMemory()
	}

	// Set up the realtime connections and the domain services
	registry := realtime.NewRegistry(ctx)
	fanout := realtime.NewFanout(registry, ctx)
	sockets := realtime.NewServer(registry, realtime.DefaultTenantResolver(defaultTenant), ctx)

	readings := service.NewReadingService(st, fanout, ctx)
	hubs := service.NewHubService(st, fanout, ctx)
	alerts := service.NewAlertService(st, fanout, ctx)
	debugService := service.NewDebugService(st, fanout, ctx)

	// Set up the middleware
	var chain []middleware.Inbound
	if config.GetBool("debug") {
		chain = append(chain, debug.New(ctx))
	}
	if files := config.GetStringSlice("blocklist"); len(files) > 0 {
		ctx.WithField("Files", files).Info("Initializing blocklist")
		b, err := blocklist.NewBlocklist(ctx, files...)
		if err != nil {
			ctx.WithError(err).Fatal("Could not initialize blocklist")
		}
		defer b.Close()
		chain = append(chain, b)
	}
	if perMinute := config.GetInt("rate-limit"); perMinute > 0 {
		ctx.WithField("PerMinute", perMinute).Info("Initializing tenant rate limit")
		chain = append(chain, ratelimit.NewRateLimit(perMinute))
	}
	if config.GetBool("deduplicate") {
		chain = append(chain, deduplicate.NewDeduplicate(config.GetDuration("deduplicate-window")))
	}

	// Set up the routes
	r := router.New(ctx, chain...)
	r.Add("sensordata", scheme.SensorDataPattern(), handler.NewSensorData(service.NewSensorDataService(readings), ctx))
	r.Add("readings", scheme.ReadingsPattern(), handler.NewReadings(readings, ctx))
	hubStatus := handler.NewHubStatus(hubs, alerts, ctx)
	if timeout := config.GetDuration("hub-offline-timeout"); timeout > 0 {
		ctx.WithField("Timeout", timeout).Info("Initializing hub monitor")
		hubMonitor := monitor.New(hubs, alerts, timeout, ctx)
		defer hubMonitor.Stop()
		hubStatus.WithMonitor(hubMonitor)
	}
	r.Add("hubstatus", scheme.HubStatusPattern(), hubStatus)

	overflow, _ := router.ParseOverflowPolicy(config.GetString("dispatch-overflow"))
	dispatcher := router.NewDispatcher(router.DispatcherConfig{
		Workers:   config.GetInt("dispatch-workers"),
		QueueSize: config.GetInt("dispatch-queue"),
		Overflow:  overflow,
	}, r, ctx)
	dispatcher.Start()

	// Set up the broker connection
	var transport backend.Transport
	var dummyBroker *dummy.Dummy
	switch broker := config.GetString("broker"); broker {
	case "mqtt":
		mqttConfig, err := mqtt.ParseBroker(config.GetString("mqtt"))
		if err != nil {
			ctx.WithError(err).Fatal("Invalid MQTT broker")
		}
		mqttConfig.QoS = byte(config.GetInt("mqtt-qos"))
		mqttConfig.KeepAlive = config.GetDuration("keep-alive")
		mqttConfig.IgnoreRetained = config.GetBool("mqtt-ignore-retained")
		ctx.WithField("Username", mqttConfig.Username).WithField("Address", mqttConfig.Brokers).Info("Initializing MQTT")
		transport = mqtt.New(mqttConfig, ctx)
	case "amqp":
		amqpConfig, err := amqp.ParseBroker(config.GetString("amqp"))
		if err != nil {
			ctx.WithError(err).Fatal("Invalid AMQP broker")
		}
		amqpConfig.ExchangeName = config.GetString("amqp-exchange")
		ctx.WithField("Username", amqpConfig.Username).WithField("Address", amqpConfig.Address).Info("Initializing AMQP")
		transport = amqp.New(amqpConfig, ctx)
	case "dummy":
		ctx.Warn("Initializing in-memory broker, publish on /dummy/publish")
		dummyBroker = dummy.New(ctx)
		transport = dummyBroker
	default:
		ctx.WithField("Broker", broker).Fatal("Unknown broker")
	}

	filters := scheme.Filters()
	if config.GetBool("lorawan-uplink") {
		filters = append(filters, topics.LoRaWANUplinkFilter)
	}
	manager := connection.New(connection.Config{
		MaxReconnectAttempts: config.GetInt("max-reconnect-attempts"),
		ReconnectDelay:       config.GetDuration("reconnect-delay"),
	}, transport, ctx)
	manager.Subscribe(filters, dispatcher.Submit)

	status.Watch(manager, registry)
	for _, key := range config.GetStringSlice("status-key") {
		status.AddAccessKey(key)
	}

	// Set up the HTTP server
	mux := chi.NewRouter()
	mux.Handle("/socket.io/*", sockets)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/status", status.Handler())
	mux.Get("/healthz", healthHandler(manager, registry))
	mux.Mount("/api", api.New(debugService, alerts, readings, defaultTenant, ctx).Routes())
	if dummyBroker != nil {
		mux.Handle("/dummy/publish", dummyBroker)
	}

	srv := &http.Server{
		Addr:    config.GetString("http-address"),
		Handler: mux,
	}
	sockets.Serve()
	go func() {
		ctx.WithField("Address", srv.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ctx.WithError(err).Fatal("Could not serve HTTP")
		}
	}()

	manager.Start()

	defer func() {
		manager.Stop()
		if !dispatcher.Stop(config.GetDuration("shutdown-timeout")) {
			ctx.Warn("Not all messages were handled before shutdown")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			ctx.WithError(err).Warn("Could not shut down HTTP server")
		}
		sockets.Close()
		time.Sleep(100 * time.Millisecond)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ctx.WithField("signal", <-sigChan).Info("signal received")
}

func healthHandler(manager *connection.Manager, registry *realtime.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"broker":      manager.State().String(),
			"connections": registry.Count(),
		}
		w.Header().Set("Content-Type", "application/json")
		if manager.State() != connection.Connected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}

func init() {
	BridgeCmd.Flags().String("log-file", "", "Location of the log file")
	BridgeCmd.Flags().Bool("debug", false, "Print debug logs")

	BridgeCmd.Flags().String("broker", "mqtt", "Broker to connect to (mqtt, amqp or dummy)")
	BridgeCmd.Flags().String("mqtt", "localhost:1883", "MQTT Broker to connect to (user:pass@host:port or URL)")
	BridgeCmd.Flags().Int("mqtt-qos", 1, "QoS of the MQTT subscriptions (0 or 1)")
	BridgeCmd.Flags().Bool("mqtt-ignore-retained", false, "Drop retained MQTT messages")
	BridgeCmd.Flags().String("amqp", "guest:guest@localhost:5672", "AMQP Broker to connect to (user:pass@host:port)")
	BridgeCmd.Flags().String("amqp-exchange", "amq.topic", "AMQP topic exchange to bind to")
	BridgeCmd.Flags().Duration("keep-alive", 30*time.Second, "Keep-alive interval of the broker connection")
	BridgeCmd.Flags().Int("max-reconnect-attempts", connection.DefaultMaxReconnectAttempts, "Number of failed connection attempts after which the bridge gives up")
	BridgeCmd.Flags().Duration("reconnect-delay", connection.DefaultReconnectDelay, "Delay between connection attempts")

	BridgeCmd.Flags().String("topic-prefix", topics.DefaultPrefix, "Prefix of the telemetry topics")
	BridgeCmd.Flags().Bool("lorawan-uplink", false, "Also subscribe to LoRaWAN uplink messages")
	BridgeCmd.Flags().Duration("hub-offline-timeout", 0, "Mark hubs offline when they do not report online within this time (0 disables)")

	BridgeCmd.Flags().Int("dispatch-workers", router.DefaultWorkers, "Number of workers that handle messages")
	BridgeCmd.Flags().Int("dispatch-queue", router.DefaultQueueSize, "Number of messages that are queued for the workers")
	BridgeCmd.Flags().String("dispatch-overflow", "drop-oldest", "What to do when the queue is full (drop-oldest or block)")
	BridgeCmd.Flags().Duration("shutdown-timeout", 5*time.Second, "Time to finish queued messages on shutdown")

	BridgeCmd.Flags().StringSlice("blocklist", nil, "Blocklist files of tenants and topics")
	BridgeCmd.Flags().Int("rate-limit", 0, "Maximum number of messages per tenant per minute (0 is unlimited)")
	BridgeCmd.Flags().Bool("deduplicate", false, "Drop identical messages on the same topic")
	BridgeCmd.Flags().Duration("deduplicate-window", deduplicate.DefaultWindow, "Window in which identical messages are dropped")

	BridgeCmd.Flags().Bool("redis", false, "Use Redis store")
	BridgeCmd.Flags().String("redis-address", "localhost:6379", "Redis host and port")
	BridgeCmd.Flags().String("redis-password", "", "Redis password")
	BridgeCmd.Flags().Int("redis-db", 0, "Redis database")

	BridgeCmd.Flags().String("http-address", ":8080", "Address of the HTTP server")
	BridgeCmd.Flags().String("default-tenant", "", "Tenant of connections and requests that do not specify one")
	BridgeCmd.Flags().StringSlice("status-key", nil, "Access keys of the status endpoint")

	viper.BindPFlags(BridgeCmd.Flags())
}
