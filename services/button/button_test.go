package button

import (
	"context"
	"testing"
	"time"

	"quizcam-go/bus"
	"quizcam-go/drivers/ov2640"
	"quizcam-go/errcode"
	"quizcam-go/services/camera"
	"quizcam-go/services/hal"
	"quizcam-go/services/hal/sim"
	"quizcam-go/services/storage"
	"quizcam-go/types"

	"github.com/stretchr/testify/require"
)

type syncDVP struct {
	cfg hal.DVPConfig
	on  bool
}

var jpeg = []byte{0xFF, 0xD8, 0x10, 0x20, 0xFF, 0xD9}

func (d *syncDVP) Start(cfg hal.DVPConfig) error { d.cfg, d.on = cfg, true; return nil }
func (d *syncDVP) Stop() error                   { d.on = false; return nil }

func (d *syncDVP) StartOneShot(size int, a, b []byte) error {
	copy(a[:size], jpeg)
	d.cfg.TransferEnd()
	for i := 0; i < camera.FrameSyncThreshold && d.on; i++ {
		d.cfg.FrameEnd()
	}
	return nil
}

func newEngine(media storage.FS) *camera.Engine {
	clock := &sim.Clock{}
	return camera.New(camera.Config{
		Sensor:    ov2640.New(sim.NewSensor(clock.Running)),
		DVP:       &syncDVP{},
		XCLK:      clock,
		Reset:     sim.NewPin(1),
		PowerDown: sim.NewPin(2),
		Media:     media,
		Store:     camera.NewFrameStore(64),
	})
}

func TestName(t *testing.T) {
	require.Equal(t, "IMG0000.jpg", Name("IMG", 0))
	require.Equal(t, "IMG0042.jpg", Name("IMG", 42))
	require.Equal(t, "P9999.jpg", Name("P", 9999))
}

func TestPress_SkipsWhenNotReady(t *testing.T) {
	media := storage.NewMemFS()
	s := New(sim.NewPin(3), 0, newEngine(media), media, "IMG", nil)
	_, err := s.Press()
	require.True(t, errcode.Is(err, errcode.NotInitialised))
	require.Empty(t, media.Names())
}

func TestPress_UsesNextFreeName(t *testing.T) {
	media := storage.NewMemFS()
	require.NoError(t, media.WriteFile("IMG0000.jpg", []byte("old")))
	require.NoError(t, media.WriteFile("IMG0001.jpg", []byte("old")))
	eng := newEngine(media)
	require.NoError(t, eng.PowerOn())
	require.NoError(t, eng.Init())

	s := New(sim.NewPin(3), 0, eng, media, "IMG", nil)
	name, err := s.Press()
	require.NoError(t, err)
	require.Equal(t, "IMG0002.jpg", name)
	got, err := media.ReadFile(name)
	require.NoError(t, err)
	require.Equal(t, jpeg, got)

	name, err = s.Press()
	require.NoError(t, err)
	require.Equal(t, "IMG0003.jpg", name)
}

// faultyFS fails opens of one name with an I/O error.
type faultyFS struct {
	*storage.MemFS
	bad string
}

func (f faultyFS) Open(name string) (storage.File, error) {
	if name == f.bad {
		return nil, &errcode.E{C: errcode.IOError, Op: "storage.open", Msg: name}
	}
	return f.MemFS.Open(name)
}

func TestPress_OpenErrorIsNotFree(t *testing.T) {
	mem := storage.NewMemFS()
	require.NoError(t, mem.WriteFile("IMG0000.jpg", []byte("old")))
	require.NoError(t, mem.WriteFile("IMG0001.jpg", []byte("keep")))
	media := faultyFS{MemFS: mem, bad: "IMG0001.jpg"}
	eng := newEngine(media)
	require.NoError(t, eng.PowerOn())
	require.NoError(t, eng.Init())

	s := New(sim.NewPin(3), 0, eng, media, "IMG", nil)
	_, err := s.Press()
	require.True(t, errcode.Is(err, errcode.IOError), "got %v", err)

	got, err := mem.ReadFile("IMG0001.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("keep"), got)
	require.Len(t, mem.Names(), 2)
}

func TestPress_BusyToken(t *testing.T) {
	media := storage.NewMemFS()
	eng := newEngine(media)
	require.NoError(t, eng.PowerOn())
	require.NoError(t, eng.Init())
	s := New(sim.NewPin(3), 0, eng, media, "IMG", nil)

	err := eng.Run(func(*camera.Op) error {
		_, err := s.Press()
		return err
	})
	require.True(t, errcode.Is(err, errcode.Busy))
}

func TestStart_PressFromPin(t *testing.T) {
	media := storage.NewMemFS()
	eng := newEngine(media)
	require.NoError(t, eng.PowerOn())
	require.NoError(t, eng.Init())

	b := bus.NewBus(8)
	conn := b.NewConnection("button")
	sub := conn.Subscribe(TopicState)
	defer conn.Unsubscribe(sub)

	pin := sim.NewPin(3)
	require.NoError(t, pin.ConfigureInput(hal.PullUp))
	pin.Set(true) // released
	s := New(pin, 0, eng, media, "IMG", conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	pin.Set(false) // pressed
	select {
	case name := <-s.Shots():
		require.Equal(t, "IMG0000.jpg", name)
	case <-time.After(time.Second):
		t.Fatal("no picture taken")
	}
	select {
	case m := <-sub.Channel():
		require.True(t, m.Payload.(types.ButtonValue).Pressed)
	case <-time.After(time.Second):
		t.Fatal("no button state")
	}
}
