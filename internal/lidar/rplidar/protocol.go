package rplidar

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

const (
	syncByte  byte = 0xA5 // Request start byte and first response sync byte
	syncByte2 byte = 0x5A // Second response sync byte

	cmdStop        byte = 0x25
	cmdScan        byte = 0x20
	cmdGetHealth   byte = 0x52
	cmdSetMotorPWM byte = 0xF0

	descriptorSize = 7
	nodeSize       = 5
	healthSize     = 3

	responseModeSingle uint8 = 0
	responseModeMulti  uint8 = 1

	scanResponseType   byte = 0x81
	healthResponseType byte = 0x06
)

var (
	// ErrBadDescriptor is returned when a response descriptor does not match the request
	ErrBadDescriptor = errors.New("unexpected response descriptor")
)

// HealthStatus is the self-test result reported by the sensor
type HealthStatus uint8

const (
	HealthGood HealthStatus = iota
	HealthWarning
	HealthError
)

func (s HealthStatus) String() string {
	switch s {
	case HealthGood:
		return "good"
	case HealthWarning:
		return "warning"
	case HealthError:
		return "error"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Health is the response to a GET_HEALTH request
type Health struct {
	Status    HealthStatus
	ErrorCode uint16
}

// descriptor is the header sent by the sensor before response payloads
type descriptor struct {
	length   uint32 // 30-bit payload length
	mode     uint8  // 2-bit send mode, single or multiple responses
	dataType byte
}

// node is a decoded measurement
type node struct {
	sample lidar.Sample
	start  bool // first measurement of a new rotation
}

// encodeRequest builds a request packet. Requests with a payload carry the
// payload size and an XOR checksum of all preceding bytes.
func encodeRequest(cmd byte, payload []byte) []byte {
	if len(payload) == 0 {
		return []byte{syncByte, cmd}
	}

	req := make([]byte, 0, len(payload)+4)
	req = append(req, syncByte, cmd, byte(len(payload)))
	req = append(req, payload...)

	var checksum byte
	for _, b := range req {
		checksum ^= b
	}
	return append(req, checksum)
}

func encodeMotorPWM(pwm uint16) []byte {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, pwm)
	return encodeRequest(cmdSetMotorPWM, payload)
}

func parseDescriptor(p []byte) (descriptor, error) {
	if len(p) < descriptorSize {
		return descriptor{}, fmt.Errorf("%w: short descriptor (%d bytes)", ErrBadDescriptor, len(p))
	}
	if p[0] != syncByte || p[1] != syncByte2 {
		return descriptor{}, fmt.Errorf("%w: bad sync bytes %#02x %#02x", ErrBadDescriptor, p[0], p[1])
	}

	v := binary.LittleEndian.Uint32(p[2:6])
	return descriptor{
		length:   v & 0x3FFFFFFF,
		mode:     uint8(v >> 30),
		dataType: p[6],
	}, nil
}

func (d descriptor) expect(length uint32, mode uint8, dataType byte) error {
	if d.length != length || d.mode != mode || d.dataType != dataType {
		return fmt.Errorf("%w: got length=%d mode=%d type=%#02x, want length=%d mode=%d type=%#02x",
			ErrBadDescriptor, d.length, d.mode, d.dataType, length, mode, dataType)
	}
	return nil
}

// parseNode decodes a 5 byte measurement node. It returns false when the
// start flag and its inverse agree or the check bit is not set, which means
// the stream is out of sync.
//
// Layout:
//
//	b0: quality[5:0]<<2 | !S<<1 | S
//	b1: angle_q6[6:0]<<1 | 1
//	b2: angle_q6[14:7]
//	b3..b4: distance_q2, little endian
func parseNode(p []byte) (node, bool) {
	start := p[0] & 0x01
	inverse := (p[0] >> 1) & 0x01
	if start == inverse {
		return node{}, false
	}
	if p[1]&0x01 != 1 {
		return node{}, false
	}

	angleQ6 := uint16(p[1]>>1) | uint16(p[2])<<7
	distanceQ2 := binary.LittleEndian.Uint16(p[3:5])

	return node{
		sample: lidar.Sample{
			Angle:    float64(angleQ6) / 64,
			Distance: float64(distanceQ2) / 4,
			Quality:  float64((p[0] >> 2) << 2),
		},
		start: start == 1,
	}, true
}

func parseHealth(p []byte) Health {
	return Health{
		Status:    HealthStatus(p[0]),
		ErrorCode: binary.LittleEndian.Uint16(p[1:3]),
	}
}
