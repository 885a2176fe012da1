package system

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"quizcam-go/bus"
	"quizcam-go/services/config"
	"quizcam-go/services/hal"
	"quizcam-go/services/hal/sim"
	"quizcam-go/services/storage"
	"quizcam-go/types"

	"github.com/stretchr/testify/require"
)

const testYAML = `
camera:
  resolution: 320x240
  reset_settle_ms: 1
  jpeg_settle_ms: 1
  stream_settle_ms: 1
  transfer_wait_ms: 100
  indicator_hold_ms: 1
protocol:
  power_settle_ms: 1
  mark_delay_ms: 1
storage:
  poll_ms: 1
  stable_polls: 2
button:
  enabled: true
  debounce_ms: 0
`

type rig struct {
	sys   *System
	link  net.Conn
	media *storage.MemFS
	card  *sim.Card
	btn   *sim.Pin
}

func newRig(t *testing.T) *rig {
	t.Helper()
	cfg, err := config.Parse(config.Config{Device: "test"}, []byte(testYAML))
	require.NoError(t, err)

	clock := &sim.Clock{}
	frame := sim.TestPattern(64, 48)
	dvp := sim.NewDVP(func() []byte { return frame }, 5*time.Millisecond)
	dev, host := net.Pipe()
	card := &sim.Card{}
	btn := sim.NewPin(15)
	b := &hal.Board{
		Name:      "test",
		I2C:       sim.NewSensor(clock.Running),
		Reset:     sim.NewPin(2),
		PowerDown: sim.NewPin(3),
		XCLK:      clock,
		DVP:       dvp,
		Serial:    dev,
		Button:    btn,
		StatusLED: sim.NewPin(25),
		SaveLED:   sim.NewPin(14),
		Card:      card,
	}
	media := storage.NewMemFS()
	sys, err := Build(cfg, b, func() (storage.FS, error) { return media, nil }, bus.NewBus(16))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = host.Close()
		_ = dev.Close()
		_ = dvp.Stop()
	})
	return &rig{sys: sys, link: host, media: media, card: card, btn: btn}
}

func (r *rig) send(t *testing.T, cmd, arg byte, replyLen int) []byte {
	t.Helper()
	_ = r.link.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := r.link.Write([]byte{cmd, arg, '\r', '\n'})
	require.NoError(t, err)
	out := make([]byte, replyLen)
	_, err = io.ReadFull(r.link, out)
	require.NoError(t, err)
	return out
}

func waitMounted(t *testing.T, v *storage.Volume) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !v.Mounted() {
		if time.Now().After(deadline) {
			t.Fatal("volume never mounted")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestBuild_BadResolution(t *testing.T) {
	cfg, err := config.Parse(config.Config{}, []byte("camera:\n  resolution: 8k\n"))
	require.NoError(t, err)
	_, err = Build(cfg, &hal.Board{}, nil, bus.NewBus(4))
	require.Error(t, err)
}

func TestTimingsFromConfig(t *testing.T) {
	ct := CameraTimings(config.CameraConfig{StreamSettleMs: 7})
	require.Equal(t, 7*time.Millisecond, ct.StreamSettle)
	require.Equal(t, 250*time.Millisecond, ct.TransferWait)

	pt := ProtocolTimings(config.ProtocolConfig{MarkDelayMs: 3})
	require.Equal(t, 3*time.Millisecond, pt.MarkDelay)
	require.Equal(t, 100*time.Millisecond, pt.PowerSettle)
}

func TestSystem_ProtocolSession(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.media.WriteFile("q.txt", []byte("Capital of France?\n#Two plus two?\n")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.sys.Start(ctx))
	go func() { _ = r.sys.Serve(ctx) }()

	st, ok := r.sys.Bus.Retained(TopicState)
	require.True(t, ok)
	require.Equal(t, "ready", st.Payload.(types.ServiceState).Level)

	// no card yet
	require.Equal(t, []byte("FAI"), r.send(t, '~', '+', 3))

	r.card.Insert()
	waitMounted(t, r.sys.Volume)

	require.Equal(t, []byte{2, '\r', '\n'}, r.send(t, '~', '+', 3))
	require.Equal(t, []byte("INI"), r.send(t, '~', 'i', 3))
	require.Equal(t, []byte{1}, r.send(t, '"', 2, 1))
	require.Equal(t, []byte{0x06}, r.send(t, '!', 2, 1))

	img, err := r.media.ReadFile("Q02-01.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0xD8}, img[:2])
	require.Equal(t, []byte{0xFF, 0xD9}, img[len(img)-2:])

	q, err := r.media.ReadFile("q.txt")
	require.NoError(t, err)
	require.Equal(t, "Capital of France?\n##Two plus two?\n", string(q))
}

func TestSystem_ButtonShoots(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.sys.Start(ctx))
	r.card.Insert()
	waitMounted(t, r.sys.Volume)

	require.NoError(t, r.sys.Engine.PowerOn())
	require.NoError(t, r.sys.Engine.Init())

	r.btn.Set(false)
	select {
	case name := <-r.sys.Button.Shots():
		require.Equal(t, "IMG0000.jpg", name)
	case <-time.After(2 * time.Second):
		t.Fatal("button press not handled")
	}
	_, err := r.media.ReadFile("IMG0000.jpg")
	require.NoError(t, err)
}
