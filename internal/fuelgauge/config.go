package fuelgauge

import (
	"fmt"
	"path/filepath"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
	"github.com/spf13/viper"
)

const (
	profileFileName = "fuel-gauge.toml"
	gaugeKey        = "fuel-gauge"
	serviceKey      = "fuel-gauge-service"

	transportDirect = "direct"
	transportDbus   = "dbus"

	chargingFromCurrent = "current"
	chargingFromDbus    = "dbus"
)

// ServiceConfig is the [fuel-gauge-service] table of the profile file.
type ServiceConfig struct {
	Transport    string        `mapstructure:"transport"`
	Bus          string        `mapstructure:"bus"`
	Address      uint16        `mapstructure:"address"`
	AlertPin     string        `mapstructure:"alert-pin"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	// ChargingSource is "current" to follow the sign of the measured current
	// or "dbus" to wait for SetCharging calls.
	ChargingSource    string `mapstructure:"charging-source"`
	ChargingCurrentMA int    `mapstructure:"charging-current"`
	// BoardSensor reads the board temperature from the hat's AHT20 each tick.
	BoardSensor  bool   `mapstructure:"board-sensor"`
	StateFile    string `mapstructure:"state-file"`
	ReadingsFile string `mapstructure:"readings-file"`
	MaxReadings  int    `mapstructure:"max-readings"`
	LowCapacity  int    `mapstructure:"low-capacity"`
	MQTTBroker   string `mapstructure:"mqtt-broker"`
	MQTTTopic    string `mapstructure:"mqtt-topic"`
	RedisAddr    string `mapstructure:"redis-addr"`
	RedisKey     string `mapstructure:"redis-key"`
}

func defaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Transport:         transportDbus,
		Address:           0x71,
		AlertPin:          "GPIO6",
		PollInterval:      10 * time.Second,
		ChargingSource:    chargingFromCurrent,
		ChargingCurrentMA: 20,
		BoardSensor:       true,
		StateFile:         "/var/lib/tc2-fuel-gauge/state.json",
		ReadingsFile:      "/var/log/fuel-gauge.csv",
		MaxReadings:       20000,
		LowCapacity:       10,
		MQTTTopic:         "tc2/fuel-gauge",
		RedisKey:          "fuel-gauge",
	}
}

type config struct {
	Gauge   gauge.Config
	Service ServiceConfig
}

// loadConfig reads the battery profile and service settings from dir. The
// daemon only runs when battery readings are enabled in the platform config.
func loadConfig(dir string) (*config, error) {
	platform, err := goconfig.New(dir)
	if err != nil {
		return nil, err
	}
	battery := goconfig.DefaultBattery()
	if err := platform.Unmarshal(goconfig.BatteryKey, &battery); err != nil {
		return nil, fmt.Errorf("failed to load battery config: %w", err)
	}
	if !battery.EnableVoltageReadings {
		return nil, fmt.Errorf("battery voltage readings disabled")
	}
	return loadProfile(filepath.Join(dir, profileFileName))
}

func loadProfile(path string) (*config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	conf := &config{
		Gauge:   gauge.DefaultConfig(),
		Service: defaultServiceConfig(),
	}
	if err := v.UnmarshalKey(gaugeKey, &conf.Gauge); err != nil {
		return nil, fmt.Errorf("parsing [%s]: %w", gaugeKey, err)
	}
	if err := v.UnmarshalKey(serviceKey, &conf.Service); err != nil {
		return nil, fmt.Errorf("parsing [%s]: %w", serviceKey, err)
	}
	if err := conf.Gauge.Validate(); err != nil {
		return nil, err
	}
	switch conf.Service.Transport {
	case transportDirect, transportDbus:
	default:
		return nil, fmt.Errorf("unknown transport '%s'", conf.Service.Transport)
	}
	switch conf.Service.ChargingSource {
	case chargingFromCurrent, chargingFromDbus:
	default:
		return nil, fmt.Errorf("unknown charging source '%s'", conf.Service.ChargingSource)
	}
	if conf.Service.PollInterval <= 0 {
		return nil, fmt.Errorf("poll-interval must be positive")
	}
	return conf, nil
}
