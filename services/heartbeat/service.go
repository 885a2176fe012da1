// Package heartbeat blinks the status LED. The blink rate shows whether
// media is mounted.
package heartbeat

import (
	"context"
	"sync/atomic"
	"time"

	"quizcam-go/bus"
	"quizcam-go/services/config"
	"quizcam-go/services/hal"
	"quizcam-go/services/storage"
	"quizcam-go/types"
	"quizcam-go/x/timex"
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")

const (
	DefaultMounted   = 125 * time.Millisecond
	DefaultUnmounted = 500 * time.Millisecond
)

type Service struct {
	led hal.GPIOPin

	mountedIv   time.Duration
	unmountedIv time.Duration
	mounted     bool

	interval atomic.Int64 // current period, ns
	toggles  atomic.Uint32
}

func New(led hal.GPIOPin) *Service {
	return &Service{led: led, mountedIv: DefaultMounted, unmountedIv: DefaultUnmounted}
}

// Interval is the current blink period.
func (s *Service) Interval() time.Duration { return time.Duration(s.interval.Load()) }

// Toggles counts LED toggles.
func (s *Service) Toggles() uint32 { return s.toggles.Load() }

func (s *Service) period() time.Duration {
	if s.mounted {
		return s.mountedIv
	}
	return s.unmountedIv
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	stSub := conn.Subscribe(storage.TopicState)
	defer conn.Unsubscribe(stSub)

	iv := s.period()
	s.interval.Store(int64(iv))
	tick := time.NewTicker(iv)
	defer tick.Stop()

	retick := func() {
		if p := s.period(); p != iv {
			iv = p
			s.interval.Store(int64(iv))
			tick.Reset(iv)
		}
	}

	// loop until context is cancelled, respond to tick and state changes
	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case <-tick.C:
			s.led.Toggle()
			s.toggles.Add(1)
		case msg := <-cfgSub.Channel():
			if c, ok := msg.Payload.(config.HeartbeatConfig); ok {
				s.mountedIv = timex.Ms(c.MountedMs)
				s.unmountedIv = timex.Ms(c.UnmountedMs)
				retick()
			}
		case msg := <-stSub.Channel():
			if st, ok := msg.Payload.(types.StorageState); ok {
				s.mounted = st.Mounted
				retick()
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	_ = s.led.ConfigureOutput(false)
	go s.serviceLoop(ctx, conn)
	return nil
}
