package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// NoChannel means a device is wired to the bus directly, not behind the mux.
const NoChannel = -1

type Config struct {
	AppEnv    string
	LogLevel  slog.Level
	HTTPAddr  string
	StationID string

	// I2CBus names the periph bus to open. Empty selects the first bus,
	// "sim" a simulated station.
	I2CBus string
	// MuxAddress is the TCA9548A address. Zero means no mux.
	MuxAddress uint16

	BME280Address uint16
	BME280Channel int

	VEML7700Address         uint16
	VEML7700Channel         int
	VEML7700Gain            float64
	VEML7700IntegrationTime time.Duration
	VEML7700Autorange       bool

	SGP40Address uint16
	SGP40Channel int

	SampleEvery int
	SamplerTick time.Duration
	Retention   time.Duration

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	DBLogSQL              bool

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	BLEEnabled bool
	BLEName    string
}

// InfluxEnabled reports whether an InfluxDB sink is configured.
func (c Config) InfluxEnabled() bool {
	return c.InfluxURL != ""
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:       appEnv,
		LogLevel:     level,
		HTTPAddr:     env("HTTP_ADDR", ":8080"),
		StationID:    env("STATION_ID", "home"),
		I2CBus:       env("I2C_BUS", ""),
		SQLiteDriver: env("DB_DRIVER", "sqlite3"),
		SQLiteDSN:    env("DB_DSN", ""),
		SQLitePath:   env("SQLITE_PATH", "data/weather.db"),
		MQTTBroker:   env("MQTT_BROKER", "localhost"),
		MQTTClientID: env("MQTT_CLIENT_ID", "rpi-weatherstation"),
		InfluxURL:    env("INFLUX_URL", ""),
		InfluxToken:  env("INFLUX_TOKEN", ""),
		InfluxOrg:    env("INFLUX_ORG", ""),
		InfluxBucket: env("INFLUX_BUCKET", "weather"),
		BLEName:      env("BLE_NAME", "weatherstation"),
	}

	p := &parser{}
	cfg.MuxAddress = p.address("MUX_ADDRESS", "")
	cfg.BME280Address = p.address("BME280_ADDRESS", "0x76")
	cfg.BME280Channel = p.channel("BME280_CHANNEL")
	cfg.VEML7700Address = p.address("VEML7700_ADDRESS", "0x10")
	cfg.VEML7700Channel = p.channel("VEML7700_CHANNEL")
	cfg.VEML7700Gain = p.float("VEML7700_GAIN", "0.25")
	cfg.VEML7700IntegrationTime = p.duration("VEML7700_INTEGRATION_TIME", "100ms")
	cfg.VEML7700Autorange = p.boolean("VEML7700_AUTORANGE", "true")
	cfg.SGP40Address = p.address("SGP40_ADDRESS", "0x59")
	cfg.SGP40Channel = p.channel("SGP40_CHANNEL")
	cfg.SampleEvery = p.integer("SAMPLE_EVERY", "60")
	cfg.SamplerTick = p.duration("SAMPLER_TICK", "1s")
	cfg.Retention = p.duration("RETENTION", "720h")
	cfg.SQLiteMaxOpenConns = p.integer("DB_MAX_OPEN_CONNS", "1")
	cfg.SQLiteMaxIdleConns = p.integer("DB_MAX_IDLE_CONNS", "1")
	cfg.SQLiteConnMaxLifetime = p.duration("DB_CONN_MAX_LIFETIME", "0s")
	cfg.DBLogSQL = p.boolean("DB_LOG_SQL", "false")
	cfg.MQTTEnabled = p.boolean("MQTT_ENABLED", "false")
	cfg.MQTTPort = p.integer("MQTT_PORT", "1883")
	cfg.BLEEnabled = p.boolean("BLE_ENABLED", "false")
	if p.err != nil {
		return Config{}, p.err
	}

	switch {
	case cfg.SampleEvery <= 0:
		return Config{}, fmt.Errorf("SAMPLE_EVERY must be positive, got %d", cfg.SampleEvery)
	case cfg.SamplerTick <= 0:
		return Config{}, fmt.Errorf("SAMPLER_TICK must be positive, got %v", cfg.SamplerTick)
	case cfg.Retention < 0:
		return Config{}, fmt.Errorf("RETENTION must not be negative, got %v", cfg.Retention)
	}
	return cfg, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// parser keeps the first error so LoadFromEnv can read every variable and
// check once.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
}

func (p *parser) address(key, def string) uint16 {
	raw := env(key, def)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 0, 7)
	if err != nil {
		p.fail(key, raw, err)
	}
	return uint16(v)
}

func (p *parser) channel(key string) int {
	raw := env(key, "")
	if raw == "" || strings.EqualFold(raw, "none") {
		return NoChannel
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return NoChannel
	}
	if v < 0 || v > 7 {
		p.fail(key, raw, fmt.Errorf("channel must be 0..7"))
	}
	return v
}

func (p *parser) integer(key, def string) int {
	raw := env(key, def)
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return v
}

func (p *parser) float(key, def string) float64 {
	raw := env(key, def)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
	}
	return v
}

func (p *parser) boolean(key, def string) bool {
	raw := env(key, def)
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return v
}

func (p *parser) duration(key, def string) time.Duration {
	raw := env(key, def)
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return v
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
