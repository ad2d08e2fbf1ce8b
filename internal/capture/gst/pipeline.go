//go:build gstreamer

package gst

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/dj-oyu/screen-recorder/internal/telemetry"
)

var initOnce sync.Once

func initGStreamer() {
	initOnce.Do(func() { gst.Init(nil) })
}

// element creates a GStreamer element and applies props
func element(factory string, props map[string]interface{}) (*gst.Element, error) {
	e, err := gst.NewElement(factory)
	if err != nil {
		return nil, fmt.Errorf("gst: create %s: %w", factory, err)
	}
	for k, v := range props {
		if err := e.SetProperty(k, v); err != nil {
			return nil, fmt.Errorf("gst: %s.%s: %w", factory, k, err)
		}
	}
	return e, nil
}

// capsFilter returns a capsfilter locked to caps
func capsFilter(caps string) (*gst.Element, error) {
	return element("capsfilter", map[string]interface{}{"caps": gst.NewCapsFromString(caps)})
}

// pipeline wraps a linear GStreamer pipeline ending in an app sink and
// watches its bus for errors
type pipeline struct {
	name string
	obs  telemetry.Observer
	pl   *gst.Pipeline
	sink *app.Sink

	mu      sync.Mutex
	err     error
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// newPipeline links elems in order and terminates them with an app sink
func newPipeline(name string, obs telemetry.Observer, elems ...*gst.Element) (*pipeline, error) {
	initGStreamer()

	pl, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("gst: create pipeline %s: %w", name, err)
	}
	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gst: create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("emit-signals", false)
	sink.SetProperty("max-buffers", 64)

	all := append(elems, sink.Element)
	if err := pl.AddMany(all...); err != nil {
		return nil, fmt.Errorf("gst: add %s elements: %w", name, err)
	}
	if err := gst.ElementLinkMany(all...); err != nil {
		return nil, fmt.Errorf("gst: link %s: %w", name, err)
	}
	return &pipeline{name: name, obs: obs, pl: pl, sink: sink, done: make(chan struct{})}, nil
}

// start sets the pipeline playing and begins watching its bus
func (p *pipeline) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if err := p.pl.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gst: start %s: %w", p.name, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	go p.watchBus(ctx)
	return nil
}

func (p *pipeline) watchBus(ctx context.Context) {
	defer close(p.done)
	bus := p.pl.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			p.obs.Error(module, "%s pipeline error: %s (%s)", p.name, gerr.Error(), gerr.DebugString())
			p.mu.Lock()
			if p.err == nil {
				p.err = fmt.Errorf("gst: %s: %s", p.name, gerr.Error())
			}
			p.mu.Unlock()
			return
		case gst.MessageEOS:
			p.obs.Debug(module, "%s pipeline reached end of stream", p.name)
		case gst.MessageWarning:
			p.obs.Warn(module, "%s pipeline warning: %s", p.name, msg.ParseWarning().Error())
		}
	}
}

// failure returns the first bus error, if any
func (p *pipeline) failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *pipeline) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// pull waits up to timeout for the next buffer. It returns nil data when
// nothing arrived and eos once the sink drained.
func (p *pipeline) pull(timeout time.Duration) (data []byte, pts time.Duration, delta bool, eos bool) {
	sample := p.sink.TryPullSample(timeout)
	if sample == nil {
		return nil, 0, false, p.sink.IsEOS()
	}
	buf := sample.GetBuffer()
	if buf == nil {
		return nil, 0, false, false
	}
	mapped := buf.Map(gst.MapRead)
	raw := mapped.Bytes()
	data = make([]byte, len(raw))
	copy(data, raw)
	buf.Unmap()
	return data, buf.PresentationTimestamp(), buf.HasFlags(gst.BufferFlagDeltaUnit), false
}

// sendEOS asks the source end of the pipeline to flush and finish
func (p *pipeline) sendEOS() {
	p.pl.SendEvent(gst.NewEOSEvent())
}

// stop tears the pipeline down; safe to call more than once
func (p *pipeline) stop() error {
	p.mu.Lock()
	running := p.running
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-p.done
	}
	if running {
		if err := p.pl.SetState(gst.StateNull); err != nil {
			return fmt.Errorf("gst: stop %s: %w", p.name, err)
		}
	}
	return nil
}
