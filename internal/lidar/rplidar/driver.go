// Package rplidar implements a lidar.Source for Slamtec RPLIDAR A-series
// sensors connected over a serial port.
package rplidar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

const (
	Device = "rplidar"

	// DefaultBaudRate is the serial speed of the A1 and A2 models
	DefaultBaudRate = 115200

	// DefaultMaxSamples is the number of samples kept per rotation
	DefaultMaxSamples = 360

	// DefaultSweepTimeout is how long AcquireSweep waits for a full rotation
	DefaultSweepTimeout = 2 * time.Second

	responseTimeout = 500 * time.Millisecond
	readTimeout     = 50 * time.Millisecond
)

var (
	// ErrNotScanning is returned by AcquireSweep before StartScan
	ErrNotScanning = errors.New("sensor is not scanning")

	// ErrScanning is returned by requests which are not allowed while scanning
	ErrScanning = errors.New("sensor is scanning")

	errResponseTimeout = errors.New("response timeout")
)

// Port is the subset of serial.Port used by the driver
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// PortOpener opens the serial port at path
type PortOpener func(path string, mode *serial.Mode) (Port, error)

func openSerialPort(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// WithLogger sets the logger for the driver
func WithLogger(logger *slog.Logger) func(d *Driver) {
	return func(d *Driver) {
		d.logger = logger.With(
			slog.String("device", Device),
			slog.String("port", d.portName),
		)
	}
}

// WithMaxSamples sets the maximum number of samples kept per rotation
func WithMaxSamples(n int) func(d *Driver) {
	return func(d *Driver) {
		d.maxSamples = n
	}
}

// WithAscending sorts the samples of each sweep by angle
func WithAscending(ascending bool) func(d *Driver) {
	return func(d *Driver) {
		d.ascending = ascending
	}
}

// WithMotorPWM sets the motor speed for sensors with PWM motor control
// (A2 and A3). Zero keeps DTR-only motor control.
func WithMotorPWM(pwm uint16) func(d *Driver) {
	return func(d *Driver) {
		d.motorPWM = pwm
	}
}

// WithSweepTimeout sets how long AcquireSweep waits for a full rotation
func WithSweepTimeout(timeout time.Duration) func(d *Driver) {
	return func(d *Driver) {
		d.sweepTimeout = timeout
	}
}

// WithOpener replaces the serial port opener
func WithOpener(opener PortOpener) func(d *Driver) {
	return func(d *Driver) {
		d.opener = opener
	}
}

// Driver struct represents a connected RPLIDAR sensor
type Driver struct {
	portName string
	port     Port
	opener   PortOpener

	maxSamples   int
	ascending    bool
	motorPWM     uint16
	sweepTimeout time.Duration

	buffer   *lidar.SweepBuffer
	pending  []byte
	readBuf  [256]byte
	resyncs  uint64
	scanning atomic.Bool

	disposeOnce sync.Once
	disposeErr  error

	logger *slog.Logger
}

var _ lidar.Source = (*Driver)(nil)

// Connect opens the serial port and returns a connected driver. Errors are
// reported as *lidar.ConnectError.
func Connect(portName string, baudRate int, options ...func(d *Driver)) (*Driver, error) {
	d := Driver{
		portName:     portName,
		opener:       openSerialPort,
		maxSamples:   DefaultMaxSamples,
		sweepTimeout: DefaultSweepTimeout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	buffer, err := lidar.NewSweepBuffer(d.maxSamples, d.ascending)
	if err != nil {
		return nil, lidar.NewConnectError(portName, err)
	}
	d.buffer = buffer

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := d.opener(portName, mode)
	if err != nil {
		return nil, lidar.NewConnectError(portName, err)
	}

	if err = port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, lidar.NewConnectError(portName, fmt.Errorf("setting read timeout: %w", err))
	}

	d.port = port
	d.logger.Info("connected", slog.Int("baudRate", baudRate))

	return &d, nil
}

// Health requests the sensor self-test status. It is not allowed while scanning.
func (d *Driver) Health(ctx context.Context) (Health, error) {
	if d.scanning.Load() {
		return Health{}, ErrScanning
	}

	d.pending = d.pending[:0]
	if err := d.write(encodeRequest(cmdGetHealth, nil)); err != nil {
		return Health{}, err
	}

	deadline := time.Now().Add(responseTimeout)
	desc, err := d.readDescriptor(ctx, deadline)
	if err != nil {
		return Health{}, fmt.Errorf("reading health descriptor: %w", err)
	}
	if err = desc.expect(healthSize, responseModeSingle, healthResponseType); err != nil {
		return Health{}, err
	}

	if err = d.fill(ctx, healthSize, deadline); err != nil {
		return Health{}, fmt.Errorf("reading health: %w", err)
	}

	return parseHealth(d.consume(healthSize)), nil
}

// StartSpin starts the motor. The A1 motor is enabled by pulling DTR low;
// sensors with PWM motor control also receive the configured speed.
func (d *Driver) StartSpin() error {
	if err := d.port.SetDTR(false); err != nil {
		return fmt.Errorf("clearing DTR: %w", err)
	}
	if d.motorPWM > 0 {
		if err := d.write(encodeMotorPWM(d.motorPWM)); err != nil {
			return fmt.Errorf("setting motor PWM: %w", err)
		}
	}

	d.logger.Debug("motor started")
	return nil
}

// StopSpin stops the motor
func (d *Driver) StopSpin() error {
	if d.motorPWM > 0 {
		if err := d.write(encodeMotorPWM(0)); err != nil {
			return fmt.Errorf("setting motor PWM: %w", err)
		}
	}
	if err := d.port.SetDTR(true); err != nil {
		return fmt.Errorf("setting DTR: %w", err)
	}

	d.logger.Debug("motor stopped")
	return nil
}

// StartScan requests continuous scanning and validates the response descriptor
func (d *Driver) StartScan() error {
	if d.scanning.Load() {
		return nil
	}

	if err := d.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("resetting input buffer: %w", err)
	}
	d.pending = d.pending[:0]
	d.buffer.Clear()

	if err := d.write(encodeRequest(cmdScan, nil)); err != nil {
		return err
	}

	desc, err := d.readDescriptor(context.Background(), time.Now().Add(responseTimeout))
	if err != nil {
		return fmt.Errorf("reading scan descriptor: %w", err)
	}
	if err = desc.expect(nodeSize, responseModeMulti, scanResponseType); err != nil {
		return err
	}

	d.scanning.Store(true)
	d.logger.Info("scanning started")
	return nil
}

// StopScan stops scanning and drops any unread measurements
func (d *Driver) StopScan() error {
	if !d.scanning.Load() {
		return nil
	}

	d.scanning.Store(false)
	if err := d.write(encodeRequest(cmdStop, nil)); err != nil {
		return err
	}

	d.pending = d.pending[:0]
	d.buffer.Clear()
	if err := d.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("resetting input buffer: %w", err)
	}

	d.logger.Info("scanning stopped", slog.Uint64("resyncs", d.resyncs))
	return nil
}

// AcquireSweep reads measurements until a full rotation is received.
// Errors are reported as *lidar.AcquireError.
func (d *Driver) AcquireSweep(ctx context.Context) (lidar.Sweep, error) {
	if !d.scanning.Load() {
		return lidar.Sweep{}, lidar.NewAcquireError(ErrNotScanning)
	}

	deadline := time.Now().Add(d.sweepTimeout)
	for {
		if err := d.fill(ctx, nodeSize, deadline); err != nil {
			if errors.Is(err, errResponseTimeout) {
				return lidar.Sweep{}, lidar.NewTimeoutError(fmt.Errorf("no full rotation within %s", d.sweepTimeout))
			}
			return lidar.Sweep{}, lidar.NewAcquireError(err)
		}

		n, ok := parseNode(d.pending[:nodeSize])
		if !ok {
			d.consume(1) // resync one byte at a time
			d.resyncs++
			continue
		}
		d.consume(nodeSize)

		if sweep, done := d.buffer.Insert(n.sample, n.start, time.Now()); done {
			return sweep, nil
		}
	}
}

// Dispose closes the serial port
func (d *Driver) Dispose() error {
	d.disposeOnce.Do(func() {
		d.scanning.Store(false)
		d.disposeErr = d.port.Close()
		d.logger.Info("disconnected")
	})

	return d.disposeErr
}

func (d *Driver) write(p []byte) error {
	if _, err := d.port.Write(p); err != nil {
		return fmt.Errorf("writing request %#02x: %w", p[1], err)
	}
	return nil
}

// readDescriptor scans the input for the response sync bytes and decodes
// the descriptor that follows them.
func (d *Driver) readDescriptor(ctx context.Context, deadline time.Time) (descriptor, error) {
	for {
		if err := d.fill(ctx, descriptorSize, deadline); err != nil {
			return descriptor{}, err
		}
		if d.pending[0] == syncByte && d.pending[1] == syncByte2 {
			return parseDescriptor(d.consume(descriptorSize))
		}
		d.consume(1)
	}
}

// fill reads from the port until at least n bytes are pending. The port read
// timeout bounds each read so that ctx and the deadline are checked regularly.
func (d *Driver) fill(ctx context.Context, n int, deadline time.Time) error {
	for len(d.pending) < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return errResponseTimeout
		}

		read, err := d.port.Read(d.readBuf[:])
		if err != nil {
			return fmt.Errorf("reading port: %w", err)
		}
		d.pending = append(d.pending, d.readBuf[:read]...)
	}
	return nil
}

func (d *Driver) consume(n int) []byte {
	p := d.pending[:n]
	d.pending = d.pending[n:]
	return p
}
