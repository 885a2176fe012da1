package sim

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"quizcam-go/errcode"
	"quizcam-go/services/hal"
)

// DefaultFrameInterval approximates the sensor's JPEG frame rate.
const DefaultFrameInterval = 66 * time.Millisecond

// DVP streams frames from a source at a fixed interval. FrameEnd fires once
// per frame; an armed one-shot copies the next frame into its buffers and
// fires TransferEnd. No buffer is written once Stop has returned.
type DVP struct {
	mu       sync.Mutex
	source   func() []byte
	interval time.Duration
	stop     chan struct{}
	shot     *oneShot

	frames atomic.Uint32
}

type oneShot struct {
	size int
	a, b []byte
}

var _ hal.DVP = (*DVP)(nil)

func NewDVP(source func() []byte, interval time.Duration) *DVP {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &DVP{source: source, interval: interval}
}

// Frames counts frames produced since construction.
func (d *DVP) Frames() uint32 { return d.frames.Load() }

func (d *DVP) Start(cfg hal.DVPConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return errcode.Busy
	}
	stop := make(chan struct{})
	d.stop = stop
	d.shot = nil
	go d.run(stop, cfg)
	return nil
}

func (d *DVP) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	d.shot = nil
	return nil
}

func (d *DVP) StartOneShot(size int, a, b []byte) error {
	if size <= 0 || size > len(a) || size > len(b) {
		return errcode.InvalidParams
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop == nil {
		return &errcode.E{C: errcode.SensorError, Op: "dvp.oneshot", Msg: "not streaming"}
	}
	d.shot = &oneShot{size: size, a: a, b: b}
	return nil
}

func (d *DVP) run(stop chan struct{}, cfg hal.DVPConfig) {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		transferred := false
		d.mu.Lock()
		if d.stop != stop {
			d.mu.Unlock()
			return
		}
		if s := d.shot; s != nil {
			frame := d.source()
			n := copy(s.a[:s.size], frame)
			if n < len(frame) {
				copy(s.b[:s.size], frame[n:])
			}
			d.shot = nil
			transferred = true
		}
		d.mu.Unlock()

		d.frames.Add(1)
		if transferred && cfg.TransferEnd != nil {
			cfg.TransferEnd()
		}
		if cfg.FrameEnd != nil {
			cfg.FrameEnd()
		}
	}
}

// TestPattern encodes a w x h gradient as a baseline JPEG.
func TestPattern(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 0x80,
				A: 0xFF,
			})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75})
	return buf.Bytes()
}
