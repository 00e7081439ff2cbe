package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/wuspy/turretd/internal/arduino"
	"github.com/wuspy/turretd/internal/bus"
	"github.com/wuspy/turretd/internal/config"
	"github.com/wuspy/turretd/internal/control"
	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/supervisor"
	"github.com/wuspy/turretd/internal/video"
)

// metricsAddr and metricsLogInterval have no config key or flag (the CLI
// takes none, per the external interfaces doc); they are fixed operational
// defaults, same role as the teacher's cfg.metricsAddr/logMetricsEvery but
// without a flag to change them.
const (
	metricsAddr        = ":9090"
	metricsLogInterval = 30 * time.Second
)

func main() {
	l, closeLog, err := setupLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer closeLog()
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		l.Error("config_load_error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	b := bus.New()

	startMetricsLogger(ctx, metricsLogInterval, l, &wg)
	metrics.InitBuildInfo(version, commit, date)
	httpSrv := metrics.StartHTTP(metricsAddr)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	var camDevice string
	if len(cfg.Camera) > 0 {
		camDevice, err = video.DiscoverCamera(ctx, cfg.Camera)
		if err != nil {
			l.Error("camera_discovery_failed", "error", err, "required", cfg.Camera)
			os.Exit(1)
		}
		l.Info("camera_discovered", "device", camDevice)
	}

	linkCfg := arduino.Config{
		Device:      cfg.Arduino.Device,
		Baud:        int(cfg.Arduino.Baud),
		ReadTimeout: 10 * time.Millisecond,
		Speeds: arduino.Speeds{
			PitchMaxSpeed:    cfg.Arduino.PitchMaxSpeed,
			YawMaxSpeed:      cfg.Arduino.YawMaxSpeed,
			PitchHomingSpeed: cfg.Arduino.PitchHomingSpeed,
			YawHomingSpeed:   cfg.Arduino.YawHomingSpeed,
		},
	}
	link := arduino.New(linkCfg, nil)
	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.New("arduino", l).WithBus(b).Run(ctx, func(ctx context.Context) error {
			return link.Run(ctx, b)
		})
	}()

	videoCfg := video.Config{Host: cfg.Video.Host, Encoder: cfg.Video.Encoder, Device: camDevice}
	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.New("video", l).WithBus(b).Run(ctx, func(ctx context.Context) error {
			return video.Run(ctx, b, videoCfg)
		})
	}()

	srv := control.NewServer(
		control.WithListenAddr(net.JoinHostPort(cfg.Server.Host, strconv.Itoa(int(cfg.Server.Port)))),
		control.WithBus(b),
		control.WithVideoDecoderCommand(cfg.Video.Decoder),
		control.WithLogger(l),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.New("control", l).WithBus(b).Run(ctx, func(ctx context.Context) error {
			return srv.Serve(ctx)
		})
	}()

	go func() {
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		_, portStr, splitErr := net.SplitHostPort(srv.Addr())
		if splitErr != nil {
			l.Warn("mdns_addr_parse_failed", "error", splitErr)
			return
		}
		port, convErr := strconv.Atoi(portStr)
		if convErr != nil {
			l.Warn("mdns_port_parse_failed", "error", convErr)
			return
		}
		cleanup, mdnsErr := startMDNS(ctx, port)
		if mdnsErr != nil {
			l.Warn("mdns_start_failed", "error", mdnsErr)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "port", port)
		go func() { <-ctx.Done(); cleanup() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("control_shutdown_error", "error", err)
	}
	wg.Wait()
}
