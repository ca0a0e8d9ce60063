package push

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sensorthings-bridge/internal/dispatch"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/config"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/sensorthings-bridge/internal/metrics"
)

// Connection constants.
const (
	// connectWait bounds the initial broker connect. Missing it is a soft
	// failure: the bridge keeps running on the poll channel alone.
	connectWait = 10 * time.Second

	// subscribeWait bounds the observation topic subscription.
	subscribeWait = 5 * time.Second

	// disconnectQuiesce is the time in milliseconds for pending
	// operations to finish on disconnect.
	disconnectQuiesce = 500

	// keepAlive is the MQTT keepalive interval.
	keepAlive = 60 * time.Second

	// maxReconnectInterval caps the auto-reconnect backoff after an
	// established connection drops.
	maxReconnectInterval = 2 * time.Minute
)

// ObservationsTopic builds the broker topic that streams new Observations
// with their owning Datastream expanded.
//
// FROST scopes its MQTT topics by API version, so the version segment is
// taken from the configured base URL ("…/v1.1" yields "v1.1/Observations").
// URLs without a version segment fall back to v1.1.
func ObservationsTopic(baseURL string) string {
	version := "v1.1"
	if u, err := url.Parse(baseURL); err == nil {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := parts[len(parts)-1]; strings.HasPrefix(last, "v") && len(last) > 1 {
			version = last
		}
	}
	return version + "/Observations?$expand=Datastream($select=id)"
}

// Listener owns the push channel: an MQTT subscription to the server's
// built-in broker that delivers every new Observation as it is created.
//
// Decoded messages are routed through a Registry and executed on the
// dispatcher goroutine. Malformed or unroutable messages are counted,
// logged, and dropped; they never take the listener down.
//
// Thread Safety: All methods are safe for concurrent use.
type Listener struct {
	cfg        config.MQTTConfig
	brokerHost string
	topic      string
	registry   *Registry
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	logger     *logging.Logger

	mu        sync.RWMutex
	client    pahomqtt.Client
	connected bool
}

// NewListener creates a push channel listener. Start must be called before
// any messages arrive.
func NewListener(
	cfg *config.Config,
	registry *Registry,
	dispatcher *dispatch.Dispatcher,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Listener {
	return &Listener{
		cfg:        cfg.MQTT,
		brokerHost: cfg.BrokerHost(),
		topic:      ObservationsTopic(cfg.SensorThings.BaseURL),
		registry:   registry,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With("component", "push"),
	}
}

// Start connects to the broker and subscribes to the observation topic.
//
// The initial connect waits at most connectWait. On timeout or refusal
// the client is torn down and ErrConnectFailed is returned; the caller
// continues poll-only and may retry later via Reconnect.
//
// Returns:
//   - error: ErrDisabled, ErrConnectFailed, or ErrSubscribeFailed
func (l *Listener) Start(ctx context.Context) error {
	if !l.cfg.Enabled {
		return ErrDisabled
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return nil
	}

	opts := l.buildOptions()
	client := pahomqtt.NewClient(opts)

	token := client.Connect()
	if !waitToken(ctx, token, connectWait) {
		client.Disconnect(0)
		return fmt.Errorf("%w: no answer within %v", ErrConnectFailed, connectWait)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if err := l.subscribe(client); err != nil {
		client.Disconnect(disconnectQuiesce)
		return err
	}

	// The OnConnect handler runs asynchronously and may not have fired
	// yet, so mark connected here as well.
	l.client = client
	l.connected = true

	l.logger.Info("push channel connected",
		"broker", l.brokerHost, "port", l.cfg.Port, "topic", l.topic)
	return nil
}

// waitToken waits for a paho token, honouring context cancellation.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) bool {
	done := make(chan bool, 1)
	go func() { done <- token.WaitTimeout(timeout) }()
	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (l *Listener) buildOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", l.brokerHost, l.cfg.Port))
	opts.SetClientID(l.cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(keepAlive)
	opts.SetConnectTimeout(connectWait)

	// Initial connect is a single bounded attempt; only established
	// connections auto-reconnect.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		l.mu.Lock()
		l.connected = true
		l.mu.Unlock()
		// Clean sessions lose subscriptions across reconnects.
		if err := l.subscribe(c); err != nil {
			l.logger.Error("resubscribe after reconnect failed", "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		l.mu.Lock()
		l.connected = false
		l.mu.Unlock()
		l.logger.Warn("push channel connection lost", "error", err)
	})

	return opts
}

func (l *Listener) subscribe(client pahomqtt.Client) error {
	token := client.Subscribe(l.topic, byte(l.cfg.QoS), l.handleMessage)
	if !token.WaitTimeout(subscribeWait) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, subscribeWait)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// handleMessage runs on a paho network goroutine. It decodes the pushed
// Observation, resolves the target callback, and hands execution to the
// dispatcher goroutine.
func (l *Listener) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	l.metrics.IncPushReceived()

	streamID, result, at, err := decodeObservation(msg.Payload())
	if err != nil {
		l.metrics.IncPushDropped()
		l.logger.Warn("dropping malformed push message", "error", err)
		return
	}

	cb, ok := l.registry.Lookup(streamID)
	if !ok {
		l.metrics.IncPushUnroutable()
		l.logger.Debug("no subscriber for pushed observation", "datastream_id", streamID)
		return
	}

	if err := l.dispatcher.Submit(func() { cb(result, at) }); err != nil {
		l.logger.Warn("push message dropped at shutdown", "datastream_id", streamID)
	}
}

// IsConnected reports whether the push channel is live. Entities consult
// this to decide whether a poll refresh is still worth requesting.
func (l *Listener) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected && l.client != nil && l.client.IsConnected()
}

// Stop disconnects from the broker. Safe to call multiple times and on a
// listener that never connected.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		return
	}

	l.client.Disconnect(disconnectQuiesce)
	l.client = nil
	l.connected = false
	l.logger.Info("push channel stopped")
}

// Reconnect tears down any existing connection and starts a fresh one.
// Used by the operator reconnect command; calling it twice in a row still
// leaves exactly one live connection.
func (l *Listener) Reconnect(ctx context.Context) error {
	l.Stop()
	l.metrics.IncPushReconnects()
	return l.Start(ctx)
}

// HealthCheck verifies the push channel state.
//
// Returns:
//   - error: ErrNotStarted when the channel is down, nil when live or
//     when the channel is disabled in config
func (l *Listener) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("push health check: %w", ctx.Err())
	default:
	}

	if !l.cfg.Enabled {
		return nil
	}
	if !l.IsConnected() {
		return ErrNotStarted
	}
	return nil
}
