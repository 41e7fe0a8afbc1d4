package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/lidar-avoidance/internal/avoidance"
	"github.com/roman-kulish/lidar-avoidance/internal/flight"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar/replay"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar/rplidar"
)

const (
	SourceRPLidar = rplidar.Device
	SourceReplay  = replay.Device

	VehicleUDP    = "udp"
	VehicleDryRun = "dry-run"

	defaultSerialPort     = "/dev/ttyUSB0"
	defaultVehicleAddress = "192.168.10.1:8889" // Tello SDK command port
)

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings" json:"-"`
	Lidar     LidarConfig     `yaml:"lidar" json:"lidar"`
	Avoidance AvoidanceConfig `yaml:"avoidance" json:"avoidance"`
	Vehicle   VehicleConfig   `yaml:"vehicle" json:"vehicle"`
	Storage   StorageConfig   `yaml:"storage" json:"-"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level; an empty level is info
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, err
	}
	return level, nil
}

// LidarConfig represents the sweep source settings
type LidarConfig struct {
	Type            string       `yaml:"type" json:"type"`
	SerialPort      string       `yaml:"serialPort" json:"serialPort,omitempty"`
	BaudRate        int          `yaml:"baudRate" json:"baudRate,omitempty"`
	MaxSamples      int          `yaml:"maxSamples" json:"maxSamples"`
	Ascending       bool         `yaml:"ascending" json:"ascending"`
	MotorPWM        uint16       `yaml:"motorPWM" json:"motorPWM,omitempty"`
	SweepTimeout    Duration     `yaml:"sweepTimeout" json:"sweepTimeout"`
	SkipHealthCheck bool         `yaml:"skipHealthCheck" json:"skipHealthCheck,omitempty"`
	Replay          ReplayConfig `yaml:"replay" json:"replay,omitempty"`
}

// ReplayConfig selects the recording played back by the replay source
type ReplayConfig struct {
	DBPath    string `yaml:"dbPath" json:"dbPath,omitempty"`
	SessionID int64  `yaml:"sessionID" json:"sessionID,omitempty"`
	Pace      bool   `yaml:"pace" json:"pace,omitempty"`
	Loop      bool   `yaml:"loop" json:"loop,omitempty"`
}

// AvoidanceConfig represents the obstacle monitor tunables
type AvoidanceConfig struct {
	BatchSize          int      `yaml:"batchSize" json:"batchSize"`
	QualityThreshold   float64  `yaml:"qualityThreshold" json:"qualityThreshold"`
	BlockingDistance   float64  `yaml:"blockingDistance" json:"blockingDistance"`
	Interval           Duration `yaml:"interval" json:"interval"`
	CommandAttempts    int      `yaml:"commandAttempts" json:"commandAttempts"`
	CommandRetryDelay  Duration `yaml:"commandRetryDelay" json:"commandRetryDelay"`
	MaxAcquireFailures int      `yaml:"maxAcquireFailures" json:"maxAcquireFailures"`
}

func (c AvoidanceConfig) Config() avoidance.Config {
	return avoidance.Config{
		BatchSize:          c.BatchSize,
		QualityThreshold:   c.QualityThreshold,
		BlockingDistance:   c.BlockingDistance,
		Interval:           time.Duration(c.Interval),
		CommandAttempts:    c.CommandAttempts,
		CommandRetryDelay:  time.Duration(c.CommandRetryDelay),
		MaxAcquireFailures: c.MaxAcquireFailures,
	}
}

// VehicleConfig represents the motion controller settings
type VehicleConfig struct {
	Type            string   `yaml:"type" json:"type"`
	Address         string   `yaml:"address" json:"address,omitempty"`
	LocalPort       int      `yaml:"localPort" json:"localPort,omitempty"`
	ResponseTimeout Duration `yaml:"responseTimeout" json:"responseTimeout"`

	// Commands overrides the text commands, unset ones keep the Tello defaults
	Commands CommandsConfig `yaml:"commands" json:"commands"`
}

type CommandsConfig struct {
	TakeControl    *string `yaml:"takeControl" json:"takeControl,omitempty"`
	Stop           *string `yaml:"stop" json:"stop,omitempty"`
	ReleaseControl *string `yaml:"releaseControl" json:"releaseControl,omitempty"`
}

func (c CommandsConfig) Commands() flight.Commands {
	commands := flight.DefaultCommands()
	if c.TakeControl != nil {
		commands.TakeControl = *c.TakeControl
	}
	if c.Stop != nil {
		commands.Stop = *c.Stop
	}
	if c.ReleaseControl != nil {
		commands.ReleaseControl = *c.ReleaseControl
	}
	return commands
}

// StorageConfig represents flight recorder settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// NewConfig returns the configuration with all defaults set
func NewConfig() *Config {
	defaults := avoidance.DefaultConfig()

	return &Config{
		Lidar: LidarConfig{
			Type:         SourceRPLidar,
			SerialPort:   defaultSerialPort,
			BaudRate:     rplidar.DefaultBaudRate,
			MaxSamples:   rplidar.DefaultMaxSamples,
			SweepTimeout: Duration(rplidar.DefaultSweepTimeout),
		},
		Avoidance: AvoidanceConfig{
			BatchSize:          defaults.BatchSize,
			QualityThreshold:   defaults.QualityThreshold,
			BlockingDistance:   defaults.BlockingDistance,
			Interval:           Duration(defaults.Interval),
			CommandAttempts:    defaults.CommandAttempts,
			CommandRetryDelay:  Duration(defaults.CommandRetryDelay),
			MaxAcquireFailures: defaults.MaxAcquireFailures,
		},
		Vehicle: VehicleConfig{
			Type:            VehicleDryRun,
			Address:         defaultVehicleAddress,
			ResponseTimeout: Duration(flight.DefaultResponseTimeout),
		},
		Storage: StorageConfig{
			DataDirectory: storageDir,
		},
	}
}

// LoadConfig reads the YAML configuration file at path over the defaults
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, fmt.Errorf("settings: invalid log level: %w", err))
	}

	switch c.Lidar.Type {
	case SourceRPLidar:
		if c.Lidar.SerialPort == "" {
			errs = append(errs, errors.New("lidar: serial port is required"))
		}
		if c.Lidar.BaudRate <= 0 {
			errs = append(errs, fmt.Errorf("lidar: baud rate must be positive: %d given", c.Lidar.BaudRate))
		}
		if c.Lidar.MaxSamples <= 0 {
			errs = append(errs, fmt.Errorf("lidar: max samples must be positive: %d given", c.Lidar.MaxSamples))
		}
		if c.Lidar.SweepTimeout <= 0 {
			errs = append(errs, fmt.Errorf("lidar: sweep timeout must be positive: %s given", c.Lidar.SweepTimeout))
		}

	case SourceReplay:
		if c.Lidar.Replay.DBPath == "" {
			errs = append(errs, errors.New("lidar: replay database path is required"))
		}
		if c.Lidar.Replay.SessionID <= 0 {
			errs = append(errs, errors.New("lidar: replay session id is required"))
		}

	default:
		errs = append(errs, fmt.Errorf("lidar: unknown source type '%s'", c.Lidar.Type))
	}

	if err := c.Avoidance.Config().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("avoidance: %w", err))
	}

	switch c.Vehicle.Type {
	case VehicleUDP:
		if c.Vehicle.Address == "" {
			errs = append(errs, errors.New("vehicle: address is required"))
		}
		if c.Vehicle.ResponseTimeout <= 0 {
			errs = append(errs, fmt.Errorf("vehicle: response timeout must be positive: %s given", c.Vehicle.ResponseTimeout))
		}

	case VehicleDryRun:

	default:
		errs = append(errs, fmt.Errorf("vehicle: unknown type '%s'", c.Vehicle.Type))
	}

	return errors.Join(errs...)
}
