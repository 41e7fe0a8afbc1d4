// Package flight defines the motion controller used by the obstacle monitor
// and its implementations.
package flight

import (
	"context"
	"errors"
	"fmt"
)

const (
	CommandTakeControl    = "take control"
	CommandStop           = "stop"
	CommandReleaseControl = "release control"
)

var (
	// ErrRejected is returned when the vehicle answers a command with an error
	ErrRejected = errors.New("command rejected")
)

// Controller interface defines the vehicle commands issued by the monitor
type Controller interface {
	// TakeControl asserts control authority over the vehicle.
	TakeControl(ctx context.Context) error

	// ReleaseControl hands control authority back to the pilot or autopilot.
	ReleaseControl(ctx context.Context) error

	// Stop commands an immediate halt of translational motion.
	Stop(ctx context.Context) error
}

// ControlError is returned when control authority could not be taken or released
type ControlError struct {
	Command string
	Err     error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("flight: %s: %s", e.Command, e.Err)
}

func (e *ControlError) Unwrap() error {
	return e.Err
}

// CommandError is returned when a motion command failed
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("flight: %s: %s", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
