package control

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/wuspy/turretd/internal/turret"
)

// TestSmokeQueuePositionsOverTCP dials two clients and checks each receives
// its own queue_state line, and that the second client becomes
// authoritative once the first disconnects.
func TestSmokeQueuePositionsOverTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(WithListenAddr(":0"))
	go func() { _ = srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}

	d := net.Dialer{Timeout: time.Second}
	c1, err := d.DialContext(ctx, "tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial c1: %v", err)
	}
	defer c1.Close()

	r1 := bufio.NewReader(c1)
	line, err := r1.ReadString('\n')
	if err != nil {
		t.Fatalf("c1 read queue state: %v", err)
	}
	if line != string(EncodeQueueState(0, 1)) {
		t.Fatalf("c1: got %q want %q", line, EncodeQueueState(0, 1))
	}

	c2, err := d.DialContext(ctx, "tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial c2: %v", err)
	}
	defer c2.Close()
	r2 := bufio.NewReader(c2)

	line, err = r1.ReadString('\n')
	if err != nil {
		t.Fatalf("c1 read second queue state: %v", err)
	}
	if line != string(EncodeQueueState(0, 2)) {
		t.Fatalf("c1 after c2 joins: got %q want %q", line, EncodeQueueState(0, 2))
	}
	line, err = r2.ReadString('\n')
	if err != nil {
		t.Fatalf("c2 read queue state: %v", err)
	}
	if line != string(EncodeQueueState(1, 2)) {
		t.Fatalf("c2: got %q want %q", line, EncodeQueueState(1, 2))
	}

	c1.Close()

	line, err = r2.ReadString('\n')
	if err != nil {
		t.Fatalf("c2 read after c1 disconnect: %v", err)
	}
	if line != string(EncodeQueueState(0, 1)) {
		t.Fatalf("c2 after promotion: got %q want %q", line, EncodeQueueState(0, 1))
	}
}

// TestSmokeHardwareStateBroadcast publishes a hardware state on the
// server's bus and checks every connected client receives it.
func TestSmokeHardwareStateBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(WithListenAddr(":0"))
	go func() { _ = srv.Serve(ctx) }()
	<-srv.Ready()

	d := net.Dialer{Timeout: time.Second}
	c, err := d.DialContext(ctx, "tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	r := bufio.NewReader(c)
	if _, err := r.ReadString('\n'); err != nil { // queue_state
		t.Fatalf("read queue state: %v", err)
	}

	srv.Bus().Send(turret.Message{
		Source:  turret.FromArduino(),
		Content: turret.ContentFromHardwareState(turret.HardwareState{PitchPos: 1, YawPos: 2, Status: turret.StatusReady}),
	})

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read hardware state: %v", err)
	}
	want := string(EncodeHardwareState(turret.HardwareState{PitchPos: 1, YawPos: 2, Status: turret.StatusReady}))
	if line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

// TestSmokeClientCommandReachesBus checks a client's JSON line is turned
// into a bus message tagged with its current queue position.
func TestSmokeClientCommandReachesBus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(WithListenAddr(":0"))
	sub := srv.Bus().Subscribe()
	defer srv.Bus().Unsubscribe(sub)

	go func() { _ = srv.Serve(ctx) }()
	<-srv.Ready()

	d := net.Dialer{Timeout: time.Second}
	c, err := d.DialContext(ctx, "tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	// drain the connect event.
	timeout := time.After(200 * time.Millisecond)
drain:
	for {
		select {
		case msg := <-sub.Messages():
			if msg.Content.Kind == turret.ContentClientConnected {
				break drain
			}
		case <-timeout:
			t.Fatal("did not observe client_connected on bus")
		}
	}

	if _, err := c.Write([]byte(`{"command":"fire"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if msg.Content.Kind != turret.ContentCommand || msg.Content.Command.Kind != turret.CommandFire {
			t.Fatalf("unexpected message: %+v", msg)
		}
		if msg.Source.Kind != turret.SourceClient || !msg.Source.IsAuthoritative() {
			t.Fatalf("expected authoritative client source, got %+v", msg.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("fire command did not reach the bus")
	}
}
