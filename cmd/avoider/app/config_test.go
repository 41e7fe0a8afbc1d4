package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/lidar-avoidance/internal/avoidance"
	"github.com/roman-kulish/lidar-avoidance/internal/flight"
)

func TestParseConfig_Defaults(t *testing.T) {
	c, err := ParseConfig([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, SourceRPLidar, c.Lidar.Type)
	assert.Equal(t, "/dev/ttyUSB0", c.Lidar.SerialPort)
	assert.Equal(t, 115200, c.Lidar.BaudRate)
	assert.Equal(t, VehicleDryRun, c.Vehicle.Type)
	assert.Equal(t, avoidance.DefaultConfig(), c.Avoidance.Config())

	level, err := c.Settings.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig([]byte(`
settings:
  logLevel: debug
lidar:
  type: rplidar
  serialPort: /dev/ttyAMA0
  ascending: true
  motorPWM: 660
  sweepTimeout: 1500ms
avoidance:
  batchSize: 4
  blockingDistance: 750
  interval: 10ms
  commandAttempts: 3
  commandRetryDelay: 20ms
  maxAcquireFailures: 25
vehicle:
  type: udp
  address: 127.0.0.1:8889
  responseTimeout: 2s
  commands:
    stop: rc 0 0 0 0
    releaseControl: ""
storage:
  enabled: true
  dataDirectory: /var/lib/avoider
`))
	require.NoError(t, err)

	level, err := c.Settings.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	assert.Equal(t, "/dev/ttyAMA0", c.Lidar.SerialPort)
	assert.True(t, c.Lidar.Ascending)
	assert.Equal(t, uint16(660), c.Lidar.MotorPWM)
	assert.Equal(t, 1500*time.Millisecond, time.Duration(c.Lidar.SweepTimeout))

	assert.Equal(t, avoidance.Config{
		BatchSize:          4,
		QualityThreshold:   avoidance.DefaultQualityThreshold,
		BlockingDistance:   750,
		Interval:           10 * time.Millisecond,
		CommandAttempts:    3,
		CommandRetryDelay:  20 * time.Millisecond,
		MaxAcquireFailures: 25,
	}, c.Avoidance.Config())

	assert.Equal(t, flight.Commands{
		TakeControl:    "command",
		Stop:           "rc 0 0 0 0",
		ReleaseControl: "",
	}, c.Vehicle.Commands.Commands())
	assert.Equal(t, 2*time.Second, time.Duration(c.Vehicle.ResponseTimeout))

	assert.True(t, c.Storage.Enabled)
	assert.Equal(t, "/var/lib/avoider", c.Storage.DataDirectory)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad duration", "avoidance:\n  interval: soon\n", "failed to parse"},
		{"bad log level", "settings:\n  logLevel: loud\n", "invalid log level"},
		{"unknown source", "lidar:\n  type: sonar\n", "unknown source type"},
		{"replay without db", "lidar:\n  type: replay\n", "replay database path is required"},
		{"bad batch size", "avoidance:\n  batchSize: 0\n", "batch size must be positive"},
		{"unknown vehicle", "vehicle:\n  type: boat\n", "unknown type"},
		{"udp without address", "vehicle:\n  type: udp\n  address: \"\"\n", "address is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avoider.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lidar:\n  type: rplidar\n  baudRate: 256000\n"), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 256000, c.Lidar.BaudRate)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading configuration")
}

func TestDuration_MarshalYAML(t *testing.T) {
	v, err := Duration(1500 * time.Millisecond).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", v)
}

func TestLoadConfig_Example(t *testing.T) {
	c, err := LoadConfig(filepath.Join("..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, VehicleUDP, c.Vehicle.Type)
	assert.Equal(t, 100*time.Microsecond, time.Duration(c.Avoidance.Interval))
	assert.Equal(t, 3, c.Avoidance.CommandAttempts)
	assert.True(t, c.Storage.Enabled)
}
