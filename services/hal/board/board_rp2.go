//go:build rp2040

package board

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"quizcam-go/errcode"
	"quizcam-go/services/config"
	"quizcam-go/services/hal"
	"quizcam-go/services/hal/sim"
	"quizcam-go/services/storage"
	"quizcam-go/x/conv"
	"quizcam-go/x/timex"
)

// Open builds the Pico board. The RP2040 has no parallel capture block, so
// the capture path streams a generated frame; media is held in RAM.
func Open(cfg config.Config) (*hal.Board, Media, error) {
	bc := cfg.Board
	if err := checkSerial(bc.Serial); err != nil {
		return nil, nil, err
	}
	b := &hal.Board{Name: cfg.Device}

	var ok bool
	if b.Reset, ok = pinByNumber(bc.Pins.Reset); !ok {
		return nil, nil, badPin("reset", bc.Pins.Reset)
	}
	if b.PowerDown, ok = pinByNumber(bc.Pins.PowerDown); !ok {
		return nil, nil, badPin("power_down", bc.Pins.PowerDown)
	}
	b.Button, _ = pinByNumber(bc.Pins.Button)
	b.StatusLED, _ = pinByNumber(bc.Pins.StatusLED)
	b.SaveLED, _ = pinByNumber(bc.Pins.SaveLED)

	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: bc.I2CHz,
		SDA:       machine.Pin(bc.Pins.SDA),
		SCL:       machine.Pin(bc.Pins.SCL),
	}); err != nil {
		return nil, nil, errcode.Wrap(errcode.OpenFailed, "board.i2c", err)
	}
	owner := hal.NewI2COwner(i2c, i2cQueue)
	b.OnClose(owner.Close)
	b.I2C = owner.Bus(timex.Ms(i2cTimeout))

	b.XCLK = &pwmClock{pin: machine.Pin(bc.Pins.XCLK), hz: bc.XCLKHz}

	frame := sim.TestPattern(160, 120)
	dvp := sim.NewDVP(func() []byte { return frame }, timex.Ms(bc.FrameIntervalMs))
	b.DVP = dvp
	b.OnClose(dvp.Stop)

	u := uartx.UART0
	if bc.Serial.Address == "uart1" {
		u = uartx.UART1
	}
	if err := u.Configure(uartx.UARTConfig{
		BaudRate: uint32(bc.Serial.Baud),
		TX:       machine.Pin(bc.Pins.UartTX),
		RX:       machine.Pin(bc.Pins.UartRX),
	}); err != nil {
		_ = b.Close()
		return nil, nil, errcode.Wrap(errcode.OpenFailed, "board.uart", err)
	}
	par := uartx.ParityNone
	switch bc.Serial.Parity {
	case "E":
		par = uartx.ParityEven
	case "O":
		par = uartx.ParityOdd
	}
	if err := u.SetFormat(uint8(bc.Serial.DataBits), uint8(bc.Serial.StopBits), par); err != nil {
		_ = b.Close()
		return nil, nil, errcode.Wrap(errcode.InvalidParams, "board.uart", err)
	}
	b.Serial = &rp2Serial{u: u}

	media := storage.NewMemFS()
	if pin, ok := pinByNumber(bc.Pins.CardDet); ok {
		_ = pin.ConfigureInput(hal.PullUp)
		b.Card = activeLow{pin}
	} else {
		b.Card = always{}
	}
	return b, func() (storage.FS, error) { return media, nil }, nil
}

func badPin(name string, n int) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "board.pin", Msg: name + "=" + conv.Itoa(n)}
}

type always struct{}

func (always) Inserted() bool { return true }

type activeLow struct{ p hal.GPIOPin }

func (a activeLow) Inserted() bool { return !a.p.Get() }

// ---- GPIO ----

type rp2Pin struct {
	p machine.Pin
	n int
}

var _ hal.IRQPin = (*rp2Pin)(nil)

func pinByNumber(n int) (*rp2Pin, bool) {
	// RP2040 user GPIOs are GP0..GP28.
	if n < 0 || n > 28 {
		return nil, false
	}
	return &rp2Pin{p: machine.Pin(n), n: n}, true
}

func (r *rp2Pin) ConfigureInput(pull hal.Pull) error {
	var mode machine.PinMode
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(b bool)  { r.p.Set(b) }
func (r *rp2Pin) Get() bool   { return r.p.Get() }
func (r *rp2Pin) Toggle()     { r.p.Set(!r.p.Get()) }
func (r *rp2Pin) Number() int { return r.n }

func (r *rp2Pin) SetIRQ(edge hal.Edge, handler func()) error {
	return r.p.SetInterrupt(toPinChange(edge), func(machine.Pin) { handler() })
}

func (r *rp2Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}

func toPinChange(e hal.Edge) machine.PinChange {
	switch e {
	case hal.EdgeRising:
		return machine.PinRising
	case hal.EdgeFalling:
		return machine.PinFalling
	case hal.EdgeBoth:
		return machine.PinToggle
	default:
		var zero machine.PinChange
		return zero
	}
}

// ---- XCLK ----

type pwmCtrl interface {
	Configure(cfg machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

func pwmGroupBySlice(slice uint8) pwmCtrl {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

// pwmClock drives XCLK as a 50% duty PWM output.
type pwmClock struct {
	pin  machine.Pin
	hz   uint32
	ctrl pwmCtrl
	ch   uint8
}

func (c *pwmClock) Enable() error {
	if c.ctrl == nil {
		ctrl := pwmGroupBySlice(uint8(c.pin>>1) & 7)
		if err := ctrl.Configure(machine.PWMConfig{Period: timex.PeriodFromHz(c.hz)}); err != nil {
			return err
		}
		ch, err := ctrl.Channel(c.pin)
		if err != nil {
			return err
		}
		c.ctrl, c.ch = ctrl, ch
	}
	c.ctrl.Set(c.ch, c.ctrl.Top()/2)
	return nil
}

func (c *pwmClock) Disable() error {
	if c.ctrl != nil {
		c.ctrl.Set(c.ch, 0)
	}
	return nil
}

// ---- serial ----

type rp2Serial struct{ u *uartx.UART }

func (p *rp2Serial) Read(b []byte) (int, error) {
	return p.u.RecvSomeContext(context.Background(), b)
}

func (p *rp2Serial) Write(b []byte) (int, error) { return p.u.Write(b) }
