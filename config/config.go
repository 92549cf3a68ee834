package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"github.com/chzchzchz/sniffrx/dsp"
)

type Config struct {
	// Demodulation
	Demod dsp.Config

	// Engine
	RewindInterval time.Duration
	LiveMaxSamples int
	HTTPAddr       string
	// SinkDir holds sink files opened through the HTTP API.
	SinkDir string

	// MQTT sink
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string

	// ClickHouse sink
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string
}

// Load reads .env if present, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	def := dsp.DefaultConfig()
	return &Config{
		Demod: dsp.Config{
			BitLength:  getEnvInt("SNIFF_BIT_LENGTH", def.BitLength),
			Center:     getEnvFloat("SNIFF_CENTER", def.Center),
			Noise:      getEnvFloat("SNIFF_NOISE", def.Noise),
			Tolerance:  getEnvInt("SNIFF_TOLERANCE", def.Tolerance),
			Modulation: getEnvModulation("SNIFF_MODULATION", def.Modulation),
		},

		RewindInterval: getEnvDuration("SNIFF_REWIND_INTERVAL", 5*time.Second),
		LiveMaxSamples: getEnvInt("SNIFF_LIVE_MAX_SAMPLES", 1<<20),
		HTTPAddr:       getEnv("SNIFF_HTTP_ADDR", ""),
		SinkDir:        getEnv("SNIFF_SINK_DIR", "sniffs"),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "sniffrx"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		MQTTTopic:    getEnv("MQTT_TOPIC", "sniffrx/messages"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "default"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),
	}
}

// LoadProfile overlays the named section of an ini file. Keys missing from
// the section fall back to the file's default section, then to c.
func (c *Config) LoadProfile(path, name string) error {
	f, err := ini.Load(path)
	if err != nil {
		return err
	}
	defaultSection, err := f.GetSection(ini.DefaultSection)
	if err != nil {
		return err
	}
	section := defaultSection
	if name != "" {
		if section, err = f.GetSection(name); err != nil {
			return fmt.Errorf("profile %q: %v", name, err)
		}
	}
	key := func(k string) *ini.Key {
		if section.HasKey(k) {
			return section.Key(k)
		} else if defaultSection.HasKey(k) {
			return defaultSection.Key(k)
		}
		return nil
	}

	cfg := c.Demod
	if k := key("bit_length"); k != nil {
		if cfg.BitLength, err = k.Int(); err != nil {
			return fmt.Errorf("bit_length: %v", err)
		}
	}
	if k := key("center"); k != nil {
		if cfg.Center, err = k.Float64(); err != nil {
			return fmt.Errorf("center: %v", err)
		}
	}
	if k := key("noise"); k != nil {
		if cfg.Noise, err = k.Float64(); err != nil {
			return fmt.Errorf("noise: %v", err)
		}
	}
	if k := key("tolerance"); k != nil {
		if cfg.Tolerance, err = k.Int(); err != nil {
			return fmt.Errorf("tolerance: %v", err)
		}
	}
	if k := key("modulation"); k != nil {
		if cfg.Modulation, err = dsp.ParseModulation(k.String()); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.Demod = cfg

	if k := key("rewind_interval"); k != nil {
		if c.RewindInterval, err = k.Duration(); err != nil {
			return fmt.Errorf("rewind_interval: %v", err)
		}
	}
	if k := key("live_max_samples"); k != nil {
		if c.LiveMaxSamples, err = k.Int(); err != nil {
			return fmt.Errorf("live_max_samples: %v", err)
		}
	}
	if k := key("http_addr"); k != nil {
		c.HTTPAddr = k.String()
	}
	if k := key("sink_dir"); k != nil {
		c.SinkDir = k.String()
	}
	if k := key("mqtt_topic"); k != nil {
		c.MQTTTopic = k.String()
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[config] failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("[config] failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[config] failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return d
}

func getEnvModulation(key string, defaultValue dsp.Modulation) dsp.Modulation {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	m, err := dsp.ParseModulation(value)
	if err != nil {
		log.Printf("[config] %s: %v, using default", key, err)
		return defaultValue
	}
	return m
}
