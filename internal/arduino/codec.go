package arduino

import (
	"bytes"
	"encoding/binary"

	"github.com/sigurn/crc16"
	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

// frameSize is the fixed on-wire record length in both directions: 2 bytes
// CRC + 9 bytes payload.
const frameSize = 11

// opcodes for the host->device direction.
const (
	opMove            = 200
	opHome            = 201
	opReleaseMagazine = 202
	opLoadMagazine    = 203
	opReload          = 204
	opFire            = 205
	opFireAndReload   = 206
	opMotorsOn        = 207
	opMotorsOff       = 208
)

var usbTable = crc16.MakeTable(crc16.CRC16_USB)

func checksum(payload []byte) uint16 {
	return crc16.Checksum(payload, usbTable)
}

// Speeds carries the configured pitch/yaw scaling used to encode Move and
// Home commands.
type Speeds struct {
	PitchMaxSpeed    uint32
	YawMaxSpeed      uint32
	PitchHomingSpeed uint32
	YawHomingSpeed   uint32
}

// Codec encodes commands to, and decodes hardware state from, the fixed
// 11-byte framing described in §4.3. Stateless and safe for concurrent use,
// mirroring the teacher's stateless serial.Codec.
type Codec struct{}

func opcodeFor(kind turret.CommandKind) byte {
	switch kind {
	case turret.CommandMove:
		return opMove
	case turret.CommandHome:
		return opHome
	case turret.CommandReleaseMagazine:
		return opReleaseMagazine
	case turret.CommandLoadMagazine:
		return opLoadMagazine
	case turret.CommandReload:
		return opReload
	case turret.CommandFire:
		return opFire
	case turret.CommandFireAndReload:
		return opFireAndReload
	case turret.CommandMotorsOn:
		return opMotorsOn
	case turret.CommandMotorsOff:
		return opMotorsOff
	default:
		return 0
	}
}

// Encode builds the 11-byte command frame for cmd.
func (Codec) Encode(cmd turret.Command, speeds Speeds) []byte {
	var payload [9]byte
	payload[0] = opcodeFor(cmd.Kind)

	var arg0, arg1 int32
	switch cmd.Kind {
	case turret.CommandMove:
		arg0 = int32(roundHalfAwayFromZero(cmd.Pitch * float64(speeds.PitchMaxSpeed)))
		arg1 = int32(roundHalfAwayFromZero(cmd.Yaw * float64(speeds.YawMaxSpeed)))
	case turret.CommandHome:
		arg0 = int32(speeds.PitchHomingSpeed)
		arg1 = int32(speeds.YawHomingSpeed)
	}
	binary.BigEndian.PutUint32(payload[1:5], uint32(arg0))
	binary.BigEndian.PutUint32(payload[5:9], uint32(arg1))

	frame := make([]byte, frameSize)
	crc := checksum(payload[:])
	binary.BigEndian.PutUint16(frame[0:2], crc)
	copy(frame[2:11], payload[:])
	return frame
}

func roundHalfAwayFromZero(f float64) float64 {
	if f >= 0 {
		return float64(int64(f + 0.5))
	}
	return float64(int64(f - 0.5))
}

// DecodeStream scans in for complete frames, emitting HardwareState values
// via out. On a CRC mismatch it logs (via metrics.IncMalformed) and
// advances exactly one byte to resync, matching §4.3's single-byte resync
// rule. It returns without emitting when fewer than frameSize bytes are
// buffered.
func (Codec) DecodeStream(in *bytes.Buffer, out func(turret.HardwareState)) {
	for {
		data := in.Bytes()
		if len(data) < frameSize {
			return
		}
		storedCRC := binary.BigEndian.Uint16(data[0:2])
		payload := data[2:frameSize]
		if checksum(payload) != storedCRC {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}
		hs := turret.HardwareState{
			Status:   turret.HardwareStatusFromByte(payload[0]),
			PitchPos: binary.BigEndian.Uint32(payload[1:5]),
			YawPos:   binary.BigEndian.Uint32(payload[5:9]),
		}
		out(hs)
		metrics.IncArduinoRx()
		in.Next(frameSize)
	}
}
