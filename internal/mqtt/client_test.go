package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rpi-weatherstation/internal/config"
	"rpi-weatherstation/internal/readings"
	"rpi-weatherstation/internal/sensors/bme280"
	"rpi-weatherstation/internal/sensors/sgp40"
	"rpi-weatherstation/internal/sensors/veml7700"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes. Methods it does not override panic.
type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	connected    bool
	publishErr   error
	published    []message
	disconnected bool
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload any) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message{topic, retained, payload.([]byte)})
	return doneToken{err: f.publishErr}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func testConfig() config.Config {
	return config.Config{
		StationID:    "attic",
		MQTTBroker:   "broker.local",
		MQTTPort:     1884,
		MQTTClientID: "ws-test",
	}
}

func connectedClient(t *testing.T) (*Client, *fakeClient) {
	t.Helper()
	fake := &fakeClient{connected: true}
	c := newClient(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.client = fake
	c.setConnected(true)
	return c, fake
}

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestOptions(t *testing.T) {
	c := newClient(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	opts, err := c.options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:1884" {
		t.Errorf("Servers = %v; want tcp://broker.local:1884", opts.Servers)
	}
	if opts.ClientID != "ws-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if !opts.WillEnabled || opts.WillTopic != "stations/attic/health" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	var will StationHealth
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if will.Healthy || will.StationID != "attic" {
		t.Errorf("will = %+v", will)
	}
}

func TestWriteBME280(t *testing.T) {
	c, fake := connectedClient(t)
	r := readings.BME280Reading{
		Time:    ts,
		Reading: bme280.Reading{TemperatureC: 21.5, PressureHPa: 1012.25, HumidityPct: 48},
	}
	for range 2 {
		if err := c.WriteBME280(context.Background(), r); err != nil {
			t.Fatalf("WriteBME280: %v", err)
		}
	}
	if len(fake.published) != 2 {
		t.Fatalf("published %d messages; want 2", len(fake.published))
	}
	msg := fake.published[1]
	if msg.topic != "stations/attic/telemetry" || msg.retained {
		t.Errorf("topic = %q retained=%v", msg.topic, msg.retained)
	}
	var got Telemetry
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.StationID != "attic" || !got.Timestamp.Equal(ts) {
		t.Errorf("got %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 21.5 || got.Pressure == nil || *got.Pressure != 1012.25 {
		t.Errorf("values = %+v", got)
	}
	if got.Sequence == nil || *got.Sequence != 2 {
		t.Errorf("sequence = %v; want 2", got.Sequence)
	}
}

func TestWriteVEML7700AndSGP40(t *testing.T) {
	c, fake := connectedClient(t)
	if err := c.WriteVEML7700(context.Background(), readings.VEML7700Reading{
		Time:    ts,
		Reading: veml7700.Reading{Lux: 120.5, ALS: 2000, Gain: 0.25, IntegrationTimeMS: 100},
	}); err != nil {
		t.Fatalf("WriteVEML7700: %v", err)
	}
	idx := 140
	if err := c.WriteSGP40(context.Background(), readings.SGP40Reading{
		Time:   ts,
		Sample: sgp40.Sample{SRAW: 30100, VOCIndex: &idx, Label: "Moderate", Rating: "Fair"},
	}); err != nil {
		t.Fatalf("WriteSGP40: %v", err)
	}
	if len(fake.published) != 2 {
		t.Fatalf("published %d messages; want 2", len(fake.published))
	}
	if fake.published[0].topic != "stations/attic/light" {
		t.Errorf("light topic = %q", fake.published[0].topic)
	}
	var aq AirQuality
	if err := json.Unmarshal(fake.published[1].payload, &aq); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if fake.published[1].topic != "stations/attic/voc" || aq.VOCIndex == nil || *aq.VOCIndex != 140 || aq.SRAW != 30100 {
		t.Errorf("air quality = %q %+v", fake.published[1].topic, aq)
	}
}

func TestWrite_notConnected(t *testing.T) {
	c, fake := connectedClient(t)
	fake.connected = false
	err := c.WriteBME280(context.Background(), readings.BME280Reading{Time: ts})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v; want ErrNotConnected", err)
	}
	if len(fake.published) != 0 {
		t.Errorf("published %d messages while offline", len(fake.published))
	}
}

func TestWrite_publishError(t *testing.T) {
	c, fake := connectedClient(t)
	fake.publishErr = errors.New("queue full")
	err := c.WriteBME280(context.Background(), readings.BME280Reading{Time: ts})
	if err == nil || !errors.Is(err, fake.publishErr) {
		t.Errorf("err = %v; want wrapped publish error", err)
	}
}

func TestDisconnect(t *testing.T) {
	c, fake := connectedClient(t)
	c.Disconnect()
	c.Disconnect()

	if !fake.disconnected {
		t.Error("underlying client not disconnected")
	}
	if len(fake.published) != 1 {
		t.Fatalf("published %d messages; want one health update", len(fake.published))
	}
	msg := fake.published[0]
	var h StationHealth
	if err := json.Unmarshal(msg.payload, &h); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.topic != "stations/attic/health" || !msg.retained || h.Healthy {
		t.Errorf("health = %q retained=%v %+v", msg.topic, msg.retained, h)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Connect after Disconnect = %v; want ErrStopped", err)
	}
}
