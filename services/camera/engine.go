// Package camera owns the image sensor: power sequencing, register
// programming, single-shot JPEG capture into a fixed frame store and
// persistence of the captured frame to storage.
//
// All state transitions are serialised by a one-slot token. Run blocks for
// the token and TryRun fails with errcode.Busy when it is held, so a capture
// and a save can never interleave with each other or with power changes.
package camera

import (
	"sync/atomic"
	"time"

	"quizcam-go/bus"
	"quizcam-go/drivers/ov2640"
	"quizcam-go/errcode"
	"quizcam-go/services/hal"
	"quizcam-go/services/storage"
	"quizcam-go/types"
	"quizcam-go/x/conv"
	"quizcam-go/x/timex"
)

// Bus topics.
var (
	TopicStatus  = bus.T("camera", "status")  // retained types.CameraStatus
	TopicCapture = bus.T("camera", "capture") // types.CaptureEvent
	TopicSaved   = bus.T("camera", "saved")   // types.SaveEvent
)

// Sensor is the register interface of the image sensor.
type Sensor interface {
	WriteRegister(reg, val byte) error
	ReadRegister(reg byte) (byte, error)
	WriteArray(regs []ov2640.Reg) error
	ReadID() (uint16, error)
}

var _ Sensor = (*ov2640.Device)(nil)

// Init error bits, one per programming step.
const (
	ErrReset       uint16 = 1 << iota // soft reset
	ErrJPEGInit                       // DSP bring-up
	ErrYUV422                         // input format
	ErrJPEGMode                       // output format
	ErrResolution                     // frame size
	ErrJPEGRestore                    // output format after resize
	ErrBankSelect                     // sensor bank, sync polarity
	ErrEffect                         // special effect preset
	ErrLight                          // white balance preset
)

// InitError carries the accumulated step failures of Init.
type InitError struct {
	Mask uint16
}

func (e *InitError) Error() string {
	return "camera: init failed, mask 0x" + conv.Hex16(e.Mask)
}

func (e *InitError) Code() errcode.Code { return errcode.SensorError }

// Timings are the settle and hold delays of the sequences.
type Timings struct {
	ResetSettle   time.Duration // after the soft reset program
	JPEGSettle    time.Duration // after switching to JPEG output
	StreamSettle  time.Duration // stream start to one-shot arm
	TransferWait  time.Duration // one-shot arm to stream halt
	PowerDownHold time.Duration // after asserting PWDN
	ResetPulse    time.Duration // RESET held low
	ResetRecover  time.Duration // after releasing RESET
	WakeSettle    time.Duration // after releasing PWDN
	IndicatorHold time.Duration // save indicator on-time
}

func DefaultTimings() Timings {
	return Timings{
		ResetSettle:   250 * time.Millisecond,
		JPEGSettle:    100 * time.Millisecond,
		StreamSettle:  250 * time.Millisecond,
		TransferWait:  250 * time.Millisecond,
		PowerDownHold: 5 * time.Millisecond,
		ResetPulse:    5 * time.Millisecond,
		ResetRecover:  5 * time.Millisecond,
		WakeSettle:    10 * time.Millisecond,
		IndicatorHold: 250 * time.Millisecond,
	}
}

// Config wires an Engine to its collaborators. Indicator and Conn are
// optional; a nil Store gets a DefaultFrameStoreSize arena.
type Config struct {
	Sensor    Sensor
	DVP       hal.DVP
	XCLK      hal.Clock
	Reset     hal.GPIOPin // active low
	PowerDown hal.GPIOPin // active high
	Indicator hal.GPIOPin

	Media storage.FS
	Store *FrameStore

	// Resolution is the frame size program; nil selects 1024x768.
	Resolution []ov2640.Reg
	Timings    Timings
	Conn       *bus.Connection
}

// Engine is the camera state machine.
type Engine struct {
	sensor Sensor
	dvp    hal.DVP
	xclk   hal.Clock
	reset  hal.GPIOPin
	pwdn   hal.GPIOPin
	led    hal.GPIOPin
	media  storage.FS
	store  *FrameStore
	sync   *FrameSync
	res    []ov2640.Reg
	t      Timings
	conn   *bus.Connection

	token chan struct{}

	powered  atomic.Bool
	ready    atomic.Bool
	busy     atomic.Bool
	captured atomic.Bool
	errMask  atomic.Uint32

	session  atomic.Uint32
	captures atomic.Uint32
	saves    atomic.Uint32
}

func New(cfg Config) *Engine {
	e := &Engine{
		sensor: cfg.Sensor,
		dvp:    cfg.DVP,
		xclk:   cfg.XCLK,
		reset:  cfg.Reset,
		pwdn:   cfg.PowerDown,
		led:    cfg.Indicator,
		media:  cfg.Media,
		store:  cfg.Store,
		res:    cfg.Resolution,
		t:      cfg.Timings,
		conn:   cfg.Conn,
		token:  make(chan struct{}, 1),
	}
	if e.store == nil {
		e.store = NewFrameStore(DefaultFrameStoreSize)
	}
	if e.res == nil {
		e.res = ov2640.Res1024x768Regs
	}
	e.sync = NewFrameSync(FrameSyncThreshold, e.dvp.Stop)
	return e
}

// Store exposes the frame arena.
func (e *Engine) Store() *FrameStore { return e.store }

// Sync exposes the frame counter of the current session.
func (e *Engine) Sync() *FrameSync { return e.sync }

// ---- token ----

// Run executes fn while holding the token, waiting for it if needed. The
// Op is only valid inside fn.
func (e *Engine) Run(fn func(op *Op) error) error {
	e.token <- struct{}{}
	defer func() { <-e.token }()
	return fn(&Op{e: e})
}

// TryRun is Run without waiting; it fails with errcode.Busy when the token
// is held.
func (e *Engine) TryRun(fn func(op *Op) error) error {
	select {
	case e.token <- struct{}{}:
	default:
		return errcode.Busy
	}
	defer func() { <-e.token }()
	return fn(&Op{e: e})
}

// ---- power ----

// PowerOn starts the sensor clock and marks the sensor as needing Init.
func (e *Engine) PowerOn() error {
	return e.Run(func(*Op) error {
		if err := e.xclk.Enable(); err != nil {
			return errcode.Wrap(errcode.SensorError, "camera.power_on", err)
		}
		e.ready.Store(false)
		e.captured.Store(false)
		e.busy.Store(false)
		e.powered.Store(true)
		e.publishStatus()
		return nil
	})
}

// PowerOff asserts power-down and leaves the clock line high.
func (e *Engine) PowerOff() error {
	return e.Run(func(*Op) error {
		_ = e.xclk.Disable()
		e.pwdn.Set(true)
		time.Sleep(e.t.PowerDownHold)
		e.powered.Store(false)
		e.ready.Store(false)
		e.publishStatus()
		return nil
	})
}

// Reset pulses the reset line and wakes the sensor from power-down.
func (e *Engine) Reset() error {
	return e.Run(func(*Op) error {
		e.reset.Set(false)
		time.Sleep(e.t.ResetPulse)
		e.reset.Set(true)
		time.Sleep(e.t.ResetRecover)
		e.pwdn.Set(false)
		time.Sleep(e.t.WakeSettle)
		e.ready.Store(false)
		e.captured.Store(false)
		e.busy.Store(false)
		e.publishStatus()
		return nil
	})
}

// ---- register programming ----

type initStep struct {
	bit    uint16
	regs   []ov2640.Reg
	settle time.Duration
}

func (e *Engine) program() []initStep {
	return []initStep{
		{ErrReset, ov2640.ResetRegs, e.t.ResetSettle},
		{ErrJPEGInit, ov2640.JPEGInitRegs, 0},
		{ErrYUV422, ov2640.YUV422Regs, 0},
		{ErrBankSelect, ov2640.BankSensorRegs, 0},
		{ErrJPEGMode, ov2640.JPEGRegs, e.t.JPEGSettle},
		{ErrResolution, e.res, 0},
		{ErrJPEGRestore, ov2640.JPEGRegs, 0},
		{ErrEffect, ov2640.NormalEffectRegs, 0},
		{ErrLight, ov2640.AutoLightRegs, 0},
	}
}

// Init programs the sensor for JPEG capture. Every step runs even after a
// failure; the failed steps are reported as InitError.Mask and kept in the
// status error mask.
func (e *Engine) Init() error {
	return e.Run(func(*Op) error {
		if !e.powered.Load() {
			return &errcode.E{C: errcode.NotPowered, Op: "camera.init"}
		}
		e.errMask.Store(0)
		e.ready.Store(false)

		var mask uint16
		for _, s := range e.program() {
			if err := e.sensor.WriteArray(s.regs); err != nil {
				mask |= s.bit
				println("[camera] init step 0x"+conv.Hex16(s.bit), "failed:", err.Error())
			}
			if s.settle > 0 {
				time.Sleep(s.settle)
			}
		}

		e.errMask.Store(uint32(mask))
		if mask != 0 {
			e.publishStatus()
			return &InitError{Mask: mask}
		}
		e.ready.Store(true)
		e.publishStatus()
		return nil
	})
}

// SensorID reads PID<<8 | VER.
func (e *Engine) SensorID() (uint16, error) {
	var id uint16
	err := e.Run(func(*Op) error {
		if !e.powered.Load() {
			return &errcode.E{C: errcode.NotPowered, Op: "camera.id"}
		}
		v, err := e.sensor.ReadID()
		if err != nil {
			return errcode.Wrap(errcode.SensorError, "camera.id", err)
		}
		id = v
		return nil
	})
	return id, err
}

// WriteRegister writes one register in the currently selected bank.
func (e *Engine) WriteRegister(reg, val byte) error {
	return e.Run(func(*Op) error {
		if !e.powered.Load() {
			return &errcode.E{C: errcode.NotPowered, Op: "camera.reg_write"}
		}
		return errcode.Wrap(errcode.SensorError, "camera.reg_write", e.sensor.WriteRegister(reg, val))
	})
}

// ReadRegister reads one register in the currently selected bank.
func (e *Engine) ReadRegister(reg byte) (byte, error) {
	var v byte
	err := e.Run(func(*Op) error {
		if !e.powered.Load() {
			return &errcode.E{C: errcode.NotPowered, Op: "camera.reg_read"}
		}
		r, err := e.sensor.ReadRegister(reg)
		if err != nil {
			return errcode.Wrap(errcode.SensorError, "camera.reg_read", err)
		}
		v = r
		return nil
	})
	return v, err
}

// ---- status ----

// Status is a lock-free snapshot.
func (e *Engine) Status() types.CameraStatus {
	return types.CameraStatus{
		Powered:     e.powered.Load(),
		Initialised: e.ready.Load(),
		Busy:        e.busy.Load(),
		Captured:    e.captured.Load(),
		ErrorMask:   uint16(e.errMask.Load()),
		Captures:    e.captures.Load(),
		Saves:       e.saves.Load(),
		Frames:      e.sync.Frames(),
		Transfers:   e.sync.Transfers(),
		TS:          timex.NowMs(),
	}
}

func (e *Engine) publishStatus() {
	if e.conn == nil {
		return
	}
	e.conn.Publish(e.conn.NewMessage(TopicStatus, e.Status(), true))
}

func (e *Engine) publish(t bus.Topic, payload any) {
	if e.conn == nil {
		return
	}
	e.conn.Publish(e.conn.NewMessage(t, payload, false))
}
