package flight

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// DryRun is a controller which only logs the commands it receives
type DryRun struct {
	logger *slog.Logger

	mu      sync.Mutex
	history []string
}

var _ Controller = (*DryRun)(nil)

// NewDryRun creates a new DryRun controller. A nil logger discards output.
func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DryRun{logger: logger.With(slog.String("vehicle", "dry-run"))}
}

func (d *DryRun) TakeControl(context.Context) error {
	d.record(CommandTakeControl)
	return nil
}

func (d *DryRun) ReleaseControl(context.Context) error {
	d.record(CommandReleaseControl)
	return nil
}

func (d *DryRun) Stop(context.Context) error {
	d.record(CommandStop)
	return nil
}

// History returns the commands received so far
func (d *DryRun) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.history)
}

func (d *DryRun) record(command string) {
	d.mu.Lock()
	d.history = append(d.history, command)
	d.mu.Unlock()

	d.logger.Info("command", slog.String("command", command))
}
