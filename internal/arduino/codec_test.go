package arduino

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/wuspy/turretd/internal/turret"
)

func wireFrame(status byte, pitch, yaw uint32) []byte {
	var payload [9]byte
	payload[0] = status
	binary.BigEndian.PutUint32(payload[1:5], pitch)
	binary.BigEndian.PutUint32(payload[5:9], yaw)
	frame := make([]byte, frameSize)
	binary.BigEndian.PutUint16(frame[0:2], checksum(payload[:]))
	copy(frame[2:], payload[:])
	return frame
}

func TestDecodeStream_RoundTrip(t *testing.T) {
	var codec Codec
	want := []turret.HardwareState{
		{Status: turret.StatusReady, PitchPos: 100, YawPos: 200},
		{Status: turret.StatusHoming, PitchPos: 0, YawPos: 0},
		{Status: turret.StatusError, PitchPos: 42, YawPos: 7},
	}

	var stream []byte
	stream = append(stream, wireFrame(100, want[0].PitchPos, want[0].YawPos)...)
	stream = append(stream, wireFrame(105, want[1].PitchPos, want[1].YawPos)...)
	stream = append(stream, wireFrame(255, want[2].PitchPos, want[2].YawPos)...) // unknown -> Error

	buf := bytes.NewBuffer(stream)
	var got []turret.HardwareState
	codec.DecodeStream(buf, func(hs turret.HardwareState) { got = append(got, hs) })

	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeStream_ChunkedFeed(t *testing.T) {
	var codec Codec
	want := turret.HardwareState{Status: turret.StatusNotLoaded, PitchPos: 1234, YawPos: 5678}
	stream := wireFrame(101, want.PitchPos, want.YawPos)

	buf := bytes.NewBuffer(nil)
	var got []turret.HardwareState
	for _, b := range stream {
		buf.WriteByte(b)
		codec.DecodeStream(buf, func(hs turret.HardwareState) { got = append(got, hs) })
	}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("got %+v, want one frame %+v", got, want)
	}
}

func TestDecodeStream_CRCResync(t *testing.T) {
	var codec Codec
	want := turret.HardwareState{Status: turret.StatusReady, PitchPos: 10, YawPos: 20}
	valid := wireFrame(100, want.PitchPos, want.YawPos)

	garbage := []byte{0x01, 0x02, 0x03} // CRC over these won't validate
	stream := append(append([]byte{}, garbage...), valid...)

	buf := bytes.NewBuffer(stream)
	var got []turret.HardwareState
	codec.DecodeStream(buf, func(hs turret.HardwareState) { got = append(got, hs) })

	if len(got) != 1 || got[0] != want {
		t.Fatalf("got %+v, want one frame %+v after resync", got, want)
	}
}

func TestEncode_Move(t *testing.T) {
	var codec Codec
	speeds := Speeds{PitchMaxSpeed: 2000, YawMaxSpeed: 2500}
	frame := codec.Encode(turret.Command{Kind: turret.CommandMove, Pitch: 0.5, Yaw: -0.25}, speeds)

	if len(frame) != frameSize {
		t.Fatalf("frame length = %d, want %d", len(frame), frameSize)
	}
	payload := frame[2:]
	if payload[0] != opMove {
		t.Fatalf("opcode = %d, want %d", payload[0], opMove)
	}
	arg0 := int32(binary.BigEndian.Uint32(payload[1:5]))
	arg1 := int32(binary.BigEndian.Uint32(payload[5:9]))
	if arg0 != 1000 {
		t.Fatalf("arg0 = %d, want 1000", arg0)
	}
	if arg1 != -625 {
		t.Fatalf("arg1 = %d, want -625", arg1)
	}
	gotCRC := binary.BigEndian.Uint16(frame[0:2])
	if gotCRC != checksum(payload) {
		t.Fatalf("stored CRC = %x, want %x", gotCRC, checksum(payload))
	}
}

func TestEncode_Fire(t *testing.T) {
	var codec Codec
	frame := codec.Encode(turret.Command{Kind: turret.CommandFire}, Speeds{})
	want := []byte{opFire, 0, 0, 0, 0, 0, 0, 0, 0}
	payload := frame[2:]
	if !bytes.Equal(payload, want) {
		t.Fatalf("payload = % X, want % X", payload, want)
	}
}
