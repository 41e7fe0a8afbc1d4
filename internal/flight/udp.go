package flight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultResponseTimeout = time.Second

	drainTimeout = time.Millisecond
)

// Commands maps the monitor commands to the text commands understood by the
// vehicle. An empty command is not sent and always succeeds.
type Commands struct {
	TakeControl    string `json:"takeControl"`
	Stop           string `json:"stop"`
	ReleaseControl string `json:"releaseControl"`
}

// DefaultCommands returns the commands of the Tello text SDK: "command" puts
// the vehicle into SDK mode and "stop" makes it hover in place. The SDK has
// no way to hand control back, so release is not sent.
func DefaultCommands() Commands {
	return Commands{
		TakeControl: "command",
		Stop:        "stop",
	}
}

// WithUDPLogger sets the logger for the controller
func WithUDPLogger(logger *slog.Logger) func(c *UDPController) {
	return func(c *UDPController) {
		c.logger = logger.With(slog.String("vehicle", c.addr))
	}
}

// WithCommands sets the text commands sent to the vehicle
func WithCommands(commands Commands) func(c *UDPController) {
	return func(c *UDPController) {
		c.commands = commands
	}
}

// WithResponseTimeout sets how long to wait for the vehicle to answer a command
func WithResponseTimeout(timeout time.Duration) func(c *UDPController) {
	return func(c *UDPController) {
		c.timeout = timeout
	}
}

// WithLocalPort binds the control connection to a local UDP port
func WithLocalPort(port int) func(c *UDPController) {
	return func(c *UDPController) {
		c.localPort = port
	}
}

// UDPController sends text commands to a vehicle over UDP and waits for an
// "ok" or "error" answer to each of them.
type UDPController struct {
	addr      string
	localPort int
	commands  Commands
	timeout   time.Duration

	mu   sync.Mutex
	conn *net.UDPConn
	buf  [1024]byte

	logger *slog.Logger
}

var _ Controller = (*UDPController)(nil)

// Dial connects to the vehicle at addr (host:port)
func Dial(addr string, options ...func(c *UDPController)) (*UDPController, error) {
	c := UDPController{
		addr:     addr,
		commands: DefaultCommands(),
		timeout:  DefaultResponseTimeout,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving vehicle address: %w", err)
	}

	var localAddr *net.UDPAddr
	if c.localPort > 0 {
		if localAddr, err = net.ResolveUDPAddr("udp", ":"+strconv.Itoa(c.localPort)); err != nil {
			return nil, fmt.Errorf("resolving local address: %w", err)
		}
	}

	if c.conn, err = net.DialUDP("udp", localAddr, remoteAddr); err != nil {
		return nil, fmt.Errorf("dialing vehicle: %w", err)
	}

	c.logger.Info("vehicle connected")
	return &c, nil
}

func (c *UDPController) TakeControl(ctx context.Context) error {
	if err := c.send(ctx, c.commands.TakeControl); err != nil {
		return &ControlError{Command: CommandTakeControl, Err: err}
	}
	return nil
}

func (c *UDPController) ReleaseControl(ctx context.Context) error {
	if err := c.send(ctx, c.commands.ReleaseControl); err != nil {
		return &ControlError{Command: CommandReleaseControl, Err: err}
	}
	return nil
}

func (c *UDPController) Stop(ctx context.Context) error {
	if err := c.send(ctx, c.commands.Stop); err != nil {
		return &CommandError{Command: CommandStop, Err: err}
	}
	return nil
}

// Close closes the control connection
func (c *UDPController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// drain discards answers which arrived after their command timed out, so
// that they are not read as the answer to the next command.
func (c *UDPController) drain() {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
			return
		}
		n, err := c.conn.Read(c.buf[:])
		if err != nil {
			return
		}
		c.logger.Debug("late answer discarded", slog.String("answer", strings.TrimSpace(string(c.buf[:n]))))
	}
}

// send writes a command and waits for its answer. Cancelling ctx interrupts
// the wait.
func (c *UDPController) send(ctx context.Context, command string) error {
	if command == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return net.ErrClosed
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.drain()

	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := c.conn.Write([]byte(command)); err != nil {
		return fmt.Errorf("sending %q: %w", command, err)
	}
	c.logger.Debug("command sent", slog.String("command", command))

	n, err := c.conn.Read(c.buf[:])
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("no answer to %q within %s: %w", command, c.timeout, err)
		}
		return fmt.Errorf("reading answer to %q: %w", command, err)
	}

	answer := strings.TrimSpace(string(c.buf[:n]))
	switch {
	case strings.EqualFold(answer, "ok"):
		return nil
	case strings.HasPrefix(strings.ToLower(answer), "error"):
		return fmt.Errorf("%w: %q answered %q", ErrRejected, command, answer)
	}
	return fmt.Errorf("unexpected answer to %q: %q", command, answer)
}
