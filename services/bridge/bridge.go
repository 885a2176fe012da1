// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"quizcam-go/bus"
	"quizcam-go/errcode"
	"quizcam-go/services/camera"
	"quizcam-go/services/config"
	"quizcam-go/services/storage"
	"quizcam-go/types"
	"quizcam-go/x/timex"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

var (
	topicConfig = bus.T("config", "bridge")
	TopicState  = bus.T("bridge", "state")
)

// Start runs the bridge until ctx is cancelled. It waits for a
// config.BridgeConfig on config/bridge and (re)establishes the uplink on
// every change. media, when non-nil, is read to forward saved images.
func Start(ctx context.Context, conn *bus.Connection, media storage.FS) {
	s := &Service{conn: conn, media: media, dial: Dial}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Uplink
// -----------------------------------------------------------------------------

// Uplink is a connected remote broker.
type Uplink interface {
	Publish(topic string, payload []byte, retained bool) error
	Close() error
}

// Dial opens the uplink. It defaults to MQTT and is replaceable in tests.
var Dial = DialMQTT

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn  *bus.Connection
	media storage.FS
	dial  func(ctx context.Context, cfg config.BridgeConfig) (Uplink, error)

	mu     sync.Mutex
	curRun context.CancelFunc
	done   chan struct{}
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, ok := msg.Payload.(config.BridgeConfig)
			if !ok {
				s.publishState("error", "config_decode_failed", errcode.InvalidParams)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	cancel, done := s.curRun, s.done
	s.curRun, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Service) reconfigure(parent context.Context, cfg config.BridgeConfig) {
	s.stopCurrent()
	if !cfg.Enabled {
		s.publishState("idle", "disabled", nil)
		return
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.mu.Lock()
	s.curRun, s.done = cancel, done
	s.mu.Unlock()
	go func() {
		defer close(done)
		s.runLink(ctx, cfg)
	}()
}

// -----------------------------------------------------------------------------
// Link supervision and forwarding
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg config.BridgeConfig) {
	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		if ctx.Err() != nil {
			return
		}
		up, err := s.dial(ctx, cfg)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", err)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		err = s.forward(ctx, up, cfg)
		_ = up.Close()
		if err == nil {
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", err)
		if !sleep(ctx, delay) {
			return
		}
	}
}

// forward copies matching local messages to the uplink until ctx ends or
// a publish fails. Retained local state is replayed on every new link.
func (s *Service) forward(parent context.Context, up Uplink, cfg config.BridgeConfig) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	merged := make(chan *bus.Message, 32)
	var subs []*bus.Subscription
	for _, pattern := range cfg.Topics {
		sub := s.conn.Subscribe(bus.T(strings.Split(pattern, "/")...))
		subs = append(subs, sub)
		go func(ch <-chan *bus.Message) {
			for m := range ch {
				select {
				case merged <- m:
				case <-ctx.Done():
					return
				}
			}
		}(sub.Channel())
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-merged:
			if err := s.publish(up, cfg, m); err != nil {
				return err
			}
		}
	}
}

func (s *Service) publish(up Uplink, cfg config.BridgeConfig, m *bus.Message) error {
	if m.Payload == nil {
		return nil
	}
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		// local payload that cannot be encoded; skip it
		println("[bridge] encode " + m.Topic.String() + ": " + err.Error())
		return nil
	}
	if err := up.Publish(cfg.Prefix+"/"+m.Topic.String(), payload, m.Retained); err != nil {
		return err
	}
	if cfg.PublishImages && bus.Match(camera.TopicSaved, m.Topic) {
		if ev, ok := m.Payload.(types.SaveEvent); ok {
			return s.publishImage(up, cfg, ev)
		}
	}
	return nil
}

func (s *Service) publishImage(up Uplink, cfg config.BridgeConfig, ev types.SaveEvent) error {
	if s.media == nil {
		return nil
	}
	f, err := s.media.Open(ev.Name)
	if err != nil {
		println("[bridge] image " + ev.Name + ": " + err.Error())
		return nil
	}
	img, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		println("[bridge] image " + ev.Name + ": " + err.Error())
		return nil
	}
	b64 := make([]byte, base64.StdEncoding.EncodedLen(len(img)))
	base64.StdEncoding.Encode(b64, img)
	return up.Publish(cfg.Prefix+"/camera/image/"+ev.Name, b64, false)
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func (s *Service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Status += ": " + err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, st, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
