package lidar

import "fmt"

// ConnectError is returned when a source cannot be connected. It is fatal:
// the monitor cannot run without a sensor.
type ConnectError struct {
	Port string
	Err  error
}

func NewConnectError(port string, err error) *ConnectError {
	return &ConnectError{Port: port, Err: err}
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("lidar: connecting to %s: %s", e.Port, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// AcquireError is returned when a sweep could not be acquired. The caller is
// expected to treat it as "no data" for the cycle.
type AcquireError struct {
	Err     error
	timeout bool
}

func NewAcquireError(err error) *AcquireError {
	return &AcquireError{Err: err}
}

func NewTimeoutError(err error) *AcquireError {
	return &AcquireError{Err: err, timeout: true}
}

func (e *AcquireError) Error() string {
	if e.timeout {
		return fmt.Sprintf("lidar: sweep timed out: %s", e.Err)
	}
	return fmt.Sprintf("lidar: acquiring sweep: %s", e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the sweep did not complete in time.
func (e *AcquireError) Timeout() bool {
	return e.timeout
}
