package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType advertises the control-plane TCP port so a client app
// can find a turret on the local network without a configured address.
const mdnsServiceType = "_turretd._tcp"

// startMDNS registers the service and returns a cleanup function, adapted
// from the teacher's cmd/can-server/mdns.go.
func startMDNS(ctx context.Context, port int) (func(), error) {
	host, _ := os.Hostname()
	instance := fmt.Sprintf("turretd-%s", host)
	meta := []string{
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
