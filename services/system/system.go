// Package system builds every service from a configuration and a board and
// runs them on one bus.
package system

import (
	"context"
	"time"

	"quizcam-go/bus"
	"quizcam-go/drivers/ov2640"
	"quizcam-go/errcode"
	"quizcam-go/services/button"
	"quizcam-go/services/camera"
	"quizcam-go/services/config"
	"quizcam-go/services/hal"
	"quizcam-go/services/hal/board"
	"quizcam-go/services/heartbeat"
	"quizcam-go/services/protocol"
	"quizcam-go/services/questions"
	"quizcam-go/services/storage"
	"quizcam-go/types"
	"quizcam-go/x/timex"
)

var TopicState = bus.T("system", "state")

type System struct {
	Config config.Config
	Bus    *bus.Bus
	Board  *hal.Board

	Volume     *storage.Volume
	Monitor    *storage.Monitor
	Engine     *camera.Engine
	Questions  *questions.Index
	Dispatcher *protocol.Dispatcher
	Button     *button.Service // nil when disabled
	Heartbeat  *heartbeat.Service

	conn *bus.Connection
}

// CameraTimings overlays the configured delays on the defaults. Zero keeps
// the default.
func CameraTimings(c config.CameraConfig) camera.Timings {
	t := camera.DefaultTimings()
	set := func(d *time.Duration, ms int) {
		if ms > 0 {
			*d = timex.Ms(ms)
		}
	}
	set(&t.ResetSettle, c.ResetSettleMs)
	set(&t.JPEGSettle, c.JPEGSettleMs)
	set(&t.StreamSettle, c.StreamSettleMs)
	set(&t.TransferWait, c.TransferWaitMs)
	set(&t.IndicatorHold, c.IndicatorHoldMs)
	return t
}

// ProtocolTimings converts the protocol section.
func ProtocolTimings(c config.ProtocolConfig) protocol.Timings {
	t := protocol.DefaultTimings()
	if c.PowerSettleMs > 0 {
		t.PowerSettle = timex.Ms(c.PowerSettleMs)
	}
	if c.MarkDelayMs > 0 {
		t.MarkDelay = timex.Ms(c.MarkDelayMs)
	}
	return t
}

// Build wires the services. Nothing runs until Start.
func Build(cfg config.Config, b *hal.Board, media board.Media, bs *bus.Bus) (*System, error) {
	res, ok := ov2640.Resolution(cfg.Camera.Resolution)
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "system.build", Msg: "resolution " + cfg.Camera.Resolution}
	}
	s := &System{Config: cfg, Bus: bs, Board: b, conn: bs.NewConnection("system")}

	s.Volume = storage.NewVolume(bs.NewConnection("storage"))
	s.Monitor = storage.NewMonitor(b.Card, s.Volume, media)
	s.Monitor.SetTiming(timex.Ms(cfg.Storage.PollMs), cfg.Storage.StablePolls)

	if b.SaveLED != nil {
		_ = b.SaveLED.ConfigureOutput(false)
	}
	_ = b.Reset.ConfigureOutput(true)
	_ = b.PowerDown.ConfigureOutput(false)

	s.Engine = camera.New(camera.Config{
		Sensor:     ov2640.New(b.I2C),
		DVP:        b.DVP,
		XCLK:       b.XCLK,
		Reset:      b.Reset,
		PowerDown:  b.PowerDown,
		Indicator:  b.SaveLED,
		Media:      s.Volume,
		Store:      camera.NewFrameStore(cfg.Camera.FrameStoreSize),
		Resolution: res,
		Timings:    CameraTimings(cfg.Camera),
		Conn:       bs.NewConnection("camera"),
	})

	s.Questions = questions.New(s.Volume, cfg.Questions.File, bs.NewConnection("questions"))
	s.Dispatcher = protocol.New(b.Serial, s.Engine, s.Questions, ProtocolTimings(cfg.Protocol), bs.NewConnection("protocol"))

	if cfg.Button.Enabled {
		pin, ok := b.Button.(hal.IRQPin)
		if !ok {
			return nil, &errcode.E{C: errcode.Unsupported, Op: "system.build", Msg: "button pin has no interrupt"}
		}
		_ = pin.ConfigureInput(hal.PullUp)
		s.Button = button.New(pin, timex.Ms(cfg.Button.DebounceMs), s.Engine, s.Volume, cfg.Button.Prefix, bs.NewConnection("button"))
	}
	if b.StatusLED != nil {
		s.Heartbeat = heartbeat.New(b.StatusLED)
	}
	return s, nil
}

func (s *System) publishState(level, status string) {
	s.conn.Publish(s.conn.NewMessage(TopicState, types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}, true))
}

// Start publishes the configuration and starts the background services.
func (s *System) Start(ctx context.Context) error {
	s.publishState("starting", "")
	config.Publish(s.conn, s.Config)

	if s.Heartbeat != nil {
		if err := s.Heartbeat.Start(ctx, s.Bus.NewConnection("heartbeat")); err != nil {
			s.publishState("error", string(errcode.Of(err)))
			return err
		}
	}
	if s.Button != nil {
		if err := s.Button.Start(ctx); err != nil {
			s.publishState("error", string(errcode.Of(err)))
			return err
		}
	}
	go s.Monitor.Run(ctx)

	s.publishState("ready", string(errcode.OK))
	println("[system] services started on", s.Board.Name)
	return nil
}

// Serve answers protocol frames until the link closes or ctx ends.
func (s *System) Serve(ctx context.Context) error {
	err := s.Dispatcher.Serve(ctx)
	if err != nil {
		s.publishState("stopped", string(errcode.Of(err)))
	} else {
		s.publishState("stopped", "link_closed")
	}
	return err
}
