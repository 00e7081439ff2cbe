// Package video owns the single encoder graph and the per-client UDP
// handshake plus dynamic tee branch that fans it out. It generalizes the
// appsink-watching GstPipeline in helixml-helix's
// api/pkg/desktop/gst_pipeline.go — gst.Init, NewPipelineFromString,
// GetElementByName and the bus.TimedPop polling loop come straight from
// there — but this pipeline has no appsink: frames never transit through
// Go, they flow encoder -> tee -> per-client udpsink entirely inside
// GStreamer, and what this package watches for is pipeline-level errors,
// not samples.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"

	"github.com/wuspy/turretd/internal/bus"
	"github.com/wuspy/turretd/internal/logging"
	"github.com/wuspy/turretd/internal/metrics"
	"github.com/wuspy/turretd/internal/turret"
)

var gstInitOnce sync.Once

func initGst() {
	gstInitOnce.Do(func() { gst.Init(nil) })
}

// Config describes the static pieces of the video component.
type Config struct {
	// Host is the local address UDP handshake sockets bind to.
	Host string
	// Encoder is the opaque bin description preceding the tee, e.g.
	// "v4l2src device=%s ! x264enc ! rtph264pay"; New appends the
	// "tee name=tee allow-not-linked=true" element itself, so Encoder
	// must not contain it. A "%s" placeholder is substituted with
	// Device when set; configs that hardcode their own device path can
	// omit the placeholder entirely.
	Encoder string
	// Device is the source device path found by DiscoverCamera (§4.5),
	// e.g. "/dev/video0". Empty when no camera filter is configured.
	Device string
}

const teeElementName = "tee"

// Pipeline owns the one running GStreamer graph and the set of attached
// per-client branches.
type Pipeline struct {
	cfg Config
	bus *bus.Bus

	pipeline *gst.Pipeline
	tee      *gst.Element
	log      *slog.Logger

	mu       sync.Mutex
	branches map[string]*branch
}

// Run constructs and plays a pipeline for cfg, then blocks until ctx is
// canceled or the pipeline fails. It matches the supervisor.Factory
// signature so the video component can be restarted as a unit on error.
func Run(ctx context.Context, b *bus.Bus, cfg Config) error {
	p, err := New(cfg, b)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

// New parses and constructs (but does not play) the pipeline described by
// cfg.Encoder.
func New(cfg Config, b *bus.Bus) (*Pipeline, error) {
	initGst()
	encoder := cfg.Encoder
	if cfg.Device != "" && strings.Contains(encoder, "%s") {
		encoder = fmt.Sprintf(encoder, cfg.Device)
	}
	pipelineStr := fmt.Sprintf("%s ! tee name=%s allow-not-linked=true", encoder, teeElementName)
	gp, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPipelineInit, err)
	}
	tee, err := gp.GetElementByName(teeElementName)
	if err != nil {
		gp.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: tee element: %v", ErrPipelineInit, err)
	}
	return &Pipeline{
		cfg:      cfg,
		bus:      b,
		pipeline: gp,
		tee:      tee,
		log:      logging.Component("video"),
		branches: make(map[string]*branch),
	}, nil
}

// Run plays the pipeline, watches its bus for errors, and processes
// ClientConnected/ClientDisconnected events to attach/detach branches
// until ctx is canceled or the pipeline reports an error (component
// fatal — the supervisor restarts the whole thing, including reopening
// the device).
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: %v", ErrPipelineState, err)
	}
	defer p.pipeline.SetState(gst.StateNull)

	sub := p.bus.Subscribe()
	defer p.bus.Unsubscribe(sub)

	errCh := make(chan error, 1)
	go p.watchBus(ctx, errCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case msg := <-sub.Messages():
			p.handleEvent(ctx, msg)
		}
	}
}

func (p *Pipeline) handleEvent(ctx context.Context, msg turret.Message) {
	switch msg.Content.Kind {
	case turret.ContentClientConnected:
		go p.handshakeAndAttach(ctx, msg.Content.Client)
	case turret.ContentClientDisconnected:
		p.detach(msg.Content.Client.Addr)
	}
}

// watchBus polls the pipeline's message bus, mirroring
// GstPipeline.watchBus's TimedPop loop in the teacher's desktop package.
func (p *Pipeline) watchBus(ctx context.Context, errCh chan<- error) {
	gbus := p.pipeline.GetPipelineBus()
	if gbus == nil {
		errCh <- fmt.Errorf("%w: nil pipeline bus", ErrPipelineInit)
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		msg := gbus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			errCh <- fmt.Errorf("%w: unexpected EOS", ErrPipelineState)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			detail := "unknown"
			if gerr != nil {
				detail = gerr.Error()
			}
			metrics.IncError(metrics.ErrVideoPipeline)
			p.bus.Send(turret.Message{
				Source:  turret.FromVideoServer(),
				Content: turret.ContentFromVideoError(turret.VideoError{Message: detail}),
			})
			errCh <- fmt.Errorf("%w: %s", ErrPipelineState, detail)
			return
		case gst.MessageWarning:
			if gwarn := msg.ParseWarning(); gwarn != nil {
				p.log.Warn("video_pipeline_warning", "error", gwarn.Error())
			}
		}
	}
}
