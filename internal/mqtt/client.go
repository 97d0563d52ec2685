package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"rpi-weatherstation/internal/config"
	"rpi-weatherstation/internal/readings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("client stopped")
)

const publishTimeout = 5 * time.Second

// Client publishes the station's readings. It satisfies sampler.Sink.
type Client struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	seq       atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := newClient(cfg, logger)
	opts, err := c.options()
	if err != nil {
		return nil, err
	}
	c.client = mqtt.NewClient(opts)
	return c, nil
}

func newClient(cfg config.Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}
}

func (c *Client) options() (*mqtt.ClientOptions, error) {
	cfg := c.cfg
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// The broker marks the station unhealthy if the connection drops.
	will, err := json.Marshal(StationHealth{StationID: cfg.StationID, Healthy: false})
	if err != nil {
		return nil, fmt.Errorf("marshal will: %w", err)
	}
	opts.SetBinaryWill(healthTopic(cfg.StationID), will, 1, true)

	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		c.setConnected(true)
		c.logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// Handlers must not block; the token is not awaited.
		if data, err := json.Marshal(StationHealth{StationID: cfg.StationID, LastSeen: time.Now().UTC(), Healthy: true}); err == nil {
			cl.Publish(healthTopic(cfg.StationID), 1, true, data)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("mqtt connection lost", "error", err)
	})
	return opts, nil
}

// Connect waits for the initial connection, respecting ctx and Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry the client keeps retrying after this returns.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

func (c *Client) publish(topic string, retained bool, v any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	c.logger.Debug("published", "topic", topic, "bytes", len(data))
	return nil
}

func (c *Client) WriteBME280(_ context.Context, r readings.BME280Reading) error {
	t, p, h := r.TemperatureC, r.PressureHPa, r.HumidityPct
	seq := int(c.seq.Add(1))
	return c.publish(telemetryTopic(c.cfg.StationID), false, Telemetry{
		StationID:   c.cfg.StationID,
		Timestamp:   r.Time,
		Temperature: &t,
		Humidity:    &h,
		Pressure:    &p,
		Sequence:    &seq,
	})
}

func (c *Client) WriteVEML7700(_ context.Context, r readings.VEML7700Reading) error {
	return c.publish(lightTopic(c.cfg.StationID), false, Light{
		StationID:         c.cfg.StationID,
		Timestamp:         r.Time,
		Lux:               r.Lux,
		ALS:               r.ALS,
		White:             r.White,
		Gain:              r.Gain,
		IntegrationTimeMS: r.IntegrationTimeMS,
		Saturated:         r.Saturated,
	})
}

func (c *Client) WriteSGP40(_ context.Context, r readings.SGP40Reading) error {
	return c.publish(airQualityTopic(c.cfg.StationID), false, AirQuality{
		StationID:    c.cfg.StationID,
		Timestamp:    r.Time,
		SRAW:         r.SRAW,
		VOCIndex:     r.VOCIndex,
		Label:        r.Label,
		Rating:       r.Rating,
		TemperatureC: r.TemperatureC,
		HumidityPct:  r.HumidityPct,
	})
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect publishes an unhealthy status, then closes the connection.
// It is safe to call more than once; Connect fails afterwards.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.IsConnected() {
		if err := c.publish(healthTopic(c.cfg.StationID), true, StationHealth{
			StationID: c.cfg.StationID, LastSeen: time.Now().UTC(), Healthy: false,
		}); err != nil {
			c.logger.Warn("failed to publish station health", "error", err)
		}
	}
	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
