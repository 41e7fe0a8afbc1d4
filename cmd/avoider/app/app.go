package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"

	"github.com/roman-kulish/lidar-avoidance/internal/avoidance"
	"github.com/roman-kulish/lidar-avoidance/internal/flight"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar/replay"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar/rplidar"
	"github.com/roman-kulish/lidar-avoidance/internal/storage"
)

const (
	storageDir = "data"
)

// ErrUnhealthy is returned when the sensor reports an error status at startup
var ErrUnhealthy = errors.New("sensor reports an error status")

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	source, err := createSource(ctx, &config.Lidar, logger)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	defer func() {
		err = multierr.Append(err, source.Dispose())
	}()

	controller, err := createController(&config.Vehicle, logger)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	if c, ok := controller.(interface{ Close() error }); ok {
		defer func() {
			err = multierr.Append(err, c.Close())
		}()
	}

	options := []func(*avoidance.Monitor){
		avoidance.WithLogger(logger),
	}

	if config.Storage.Enabled {
		store, recorder, rErr := createRecorder(ctx, config)
		if rErr != nil {
			return rErr
		}
		defer func() {
			err = multierr.Append(err, store.Close())
		}()

		options = append(options, avoidance.WithRecorder(recorder))
		defer logRecorderStats(logger, recorder)
	}

	monitor, err := avoidance.NewMonitor(source, controller, config.Avoidance.Config(), options...)
	if err != nil {
		return err
	}

	started := time.Now()
	defer func() {
		logger.Info("monitor finished",
			slog.Duration("uptime", time.Since(started).Round(time.Millisecond)),
			slog.Bool("asserted", monitor.Asserted()))
	}()

	return monitor.Run(ctx)
}

func createSource(ctx context.Context, config *LidarConfig, logger *slog.Logger) (lidar.Source, error) {
	switch config.Type {
	case SourceRPLidar:
		driver, err := rplidar.Connect(config.SerialPort, config.BaudRate,
			rplidar.WithLogger(logger),
			rplidar.WithMaxSamples(config.MaxSamples),
			rplidar.WithAscending(config.Ascending),
			rplidar.WithMotorPWM(config.MotorPWM),
			rplidar.WithSweepTimeout(time.Duration(config.SweepTimeout)),
		)
		if err != nil {
			return nil, err
		}

		if !config.SkipHealthCheck {
			if err = checkHealth(ctx, driver, logger); err != nil {
				return nil, multierr.Append(err, driver.Dispose())
			}
		}
		return driver, nil

	case SourceReplay:
		if _, err := os.Stat(config.Replay.DBPath); err != nil {
			return nil, lidar.NewConnectError(config.Replay.DBPath, err)
		}

		store := storage.NewSqliteStore(config.Replay.DBPath)
		if _, err := store.Session(ctx, config.Replay.SessionID); err != nil {
			return nil, lidar.NewConnectError(config.Replay.DBPath, multierr.Append(err, store.Close()))
		}

		source := replay.New(replay.FromStore(store, config.Replay.SessionID),
			replay.WithLogger(logger),
			replay.WithPacing(config.Replay.Pace),
			replay.WithLoop(config.Replay.Loop),
		)
		return &replaySource{Source: source, store: store}, nil
	}

	return nil, fmt.Errorf("unknown source type '%s'", config.Type)
}

func checkHealth(ctx context.Context, driver *rplidar.Driver, logger *slog.Logger) error {
	health, err := driver.Health(ctx)
	if err != nil {
		return fmt.Errorf("checking sensor health: %w", err)
	}

	switch health.Status {
	case rplidar.HealthGood:
		logger.Info("sensor health is good")
	case rplidar.HealthWarning:
		logger.Warn("sensor health warning", slog.Int("errorCode", int(health.ErrorCode)))
	default:
		return fmt.Errorf("%w: %s, code %d", ErrUnhealthy, health.Status, health.ErrorCode)
	}
	return nil
}

// replaySource closes the recording store together with the source
type replaySource struct {
	*replay.Source
	store *storage.SqliteStore
}

func (s *replaySource) Dispose() error {
	return multierr.Append(s.Source.Dispose(), s.store.Close())
}

func createController(config *VehicleConfig, logger *slog.Logger) (flight.Controller, error) {
	switch config.Type {
	case VehicleDryRun:
		return flight.NewDryRun(logger), nil

	case VehicleUDP:
		return flight.Dial(config.Address,
			flight.WithUDPLogger(logger),
			flight.WithCommands(config.Commands.Commands()),
			flight.WithResponseTimeout(time.Duration(config.ResponseTimeout)),
			flight.WithLocalPort(config.LocalPort),
		)
	}

	return nil, fmt.Errorf("unknown vehicle type '%s'", config.Type)
}

func sourceID(config *LidarConfig) string {
	if config.Type == SourceReplay {
		return fmt.Sprintf("%s#%d", config.Replay.DBPath, config.Replay.SessionID)
	}
	return config.SerialPort
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := config.DataDirectory
	if dbPath == "" {
		dbPath = storageDir
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("avoider_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}

// createRecorder opens a new session file and binds a recorder to a fresh
// session in it. The store is closed when the session cannot be created.
func createRecorder(ctx context.Context, config *Config) (*storage.SqliteStore, *storage.Recorder, error) {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage: %w", err)
	}

	sessionID, err := store.CreateSession(ctx, config.Lidar.Type, sourceID(&config.Lidar), config)
	if err != nil {
		return nil, nil, multierr.Append(fmt.Errorf("failed to create session: %w", err), store.Close())
	}

	return store, storage.NewRecorder(store, sessionID), nil
}

func logRecorderStats(logger *slog.Logger, recorder *storage.Recorder) {
	sweeps, commands, failed := recorder.Stats()

	logger.Info("session recorded",
		slog.Int64("session", recorder.SessionID()),
		slog.String("sweeps", humanize.Comma(sweeps)),
		slog.String("commands", humanize.Comma(commands)),
		slog.String("failedCommands", humanize.Comma(failed)))
}
