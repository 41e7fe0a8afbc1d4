package flight

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVehicle answers text commands on a local UDP socket
type fakeVehicle struct {
	conn    *net.UDPConn
	answers map[string]string        // command -> answer, missing commands are not answered
	delays  map[string]time.Duration // command -> delay before answering

	mu       sync.Mutex
	received []string
}

func newFakeVehicle(t *testing.T, answers map[string]string) *fakeVehicle {
	t.Helper()
	return newSlowVehicle(t, answers, nil)
}

func newSlowVehicle(t *testing.T, answers map[string]string, delays map[string]time.Duration) *fakeVehicle {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	v := &fakeVehicle{conn: conn, answers: answers, delays: delays}
	go v.serve()
	t.Cleanup(func() { _ = conn.Close() })
	return v
}

func (v *fakeVehicle) serve() {
	buf := make([]byte, 1024)
	for {
		n, addr, err := v.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		command := string(buf[:n])
		v.mu.Lock()
		v.received = append(v.received, command)
		v.mu.Unlock()

		answer, ok := v.answers[command]
		if !ok {
			continue
		}
		if delay := v.delays[command]; delay > 0 {
			time.AfterFunc(delay, func() {
				_, _ = v.conn.WriteToUDP([]byte(answer), addr)
			})
			continue
		}
		_, _ = v.conn.WriteToUDP([]byte(answer), addr)
	}
}

func (v *fakeVehicle) addr() string {
	return v.conn.LocalAddr().String()
}

func (v *fakeVehicle) commands() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.received...)
}

func TestUDPController_Commands(t *testing.T) {
	vehicle := newFakeVehicle(t, map[string]string{
		"command": "ok",
		"stop":    "ok\r\n",
		"release": "OK",
	})

	c, err := Dial(vehicle.addr(), WithCommands(Commands{
		TakeControl:    "command",
		Stop:           "stop",
		ReleaseControl: "release",
	}))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.TakeControl(ctx))
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.ReleaseControl(ctx))

	assert.Equal(t, []string{"command", "stop", "release"}, vehicle.commands())
}

func TestUDPController_EmptyCommandSkipped(t *testing.T) {
	vehicle := newFakeVehicle(t, map[string]string{"command": "ok"})

	c, err := Dial(vehicle.addr()) // default commands have no release
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.ReleaseControl(context.Background()))
	assert.Empty(t, vehicle.commands())
}

func TestUDPController_Rejected(t *testing.T) {
	vehicle := newFakeVehicle(t, map[string]string{"stop": "error Not joystick"})

	c, err := Dial(vehicle.addr())
	require.NoError(t, err)
	defer c.Close()

	err = c.Stop(context.Background())

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, CommandStop, cmdErr.Command)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestUDPController_Timeout(t *testing.T) {
	vehicle := newFakeVehicle(t, nil)

	c, err := Dial(vehicle.addr(), WithResponseTimeout(20*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	err = c.TakeControl(context.Background())

	var ctrlErr *ControlError
	require.ErrorAs(t, err, &ctrlErr)
	assert.Equal(t, CommandTakeControl, ctrlErr.Command)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestUDPController_LateAnswerDiscarded(t *testing.T) {
	vehicle := newSlowVehicle(t,
		map[string]string{"command": "ok", "stop": "error Not joystick"},
		map[string]time.Duration{"command": 50 * time.Millisecond})

	c, err := Dial(vehicle.addr(), WithResponseTimeout(20*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	var ctrlErr *ControlError
	require.ErrorAs(t, c.TakeControl(ctx), &ctrlErr)

	// let the late "ok" reach the controller socket
	time.Sleep(100 * time.Millisecond)

	err = c.Stop(ctx)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, []string{"command", "stop"}, vehicle.commands())
}

func TestUDPController_Cancelled(t *testing.T) {
	vehicle := newFakeVehicle(t, nil)

	c, err := Dial(vehicle.addr(), WithResponseTimeout(time.Minute))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	start := time.Now()
	err = c.Stop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUDPController_Closed(t *testing.T) {
	vehicle := newFakeVehicle(t, map[string]string{"command": "ok"})

	c, err := Dial(vehicle.addr())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.TakeControl(context.Background()), net.ErrClosed)
}

func TestDryRun_History(t *testing.T) {
	d := NewDryRun(nil)
	ctx := context.Background()

	require.NoError(t, d.TakeControl(ctx))
	require.NoError(t, d.Stop(ctx))
	require.NoError(t, d.ReleaseControl(ctx))

	assert.Equal(t, []string{CommandTakeControl, CommandStop, CommandReleaseControl}, d.History())
}
