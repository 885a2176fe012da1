//go:build !rp2040

package board

import (
	"io"
	"os"

	"github.com/goburrow/serial"

	"quizcam-go/errcode"
	"quizcam-go/services/config"
	"quizcam-go/services/hal"
	"quizcam-go/services/hal/sim"
	"quizcam-go/services/storage"
	"quizcam-go/x/timex"
)

// Open builds the host board: a simulated sensor and capture peripheral,
// the serial link from cfg and a media directory standing in for the card.
func Open(cfg config.Config) (*hal.Board, Media, error) {
	bc := cfg.Board
	b := &hal.Board{
		Name:      cfg.Device,
		Reset:     sim.NewPin(bc.Pins.Reset),
		PowerDown: sim.NewPin(bc.Pins.PowerDown),
		Button:    sim.NewPin(bc.Pins.Button),
		StatusLED: sim.NewPin(bc.Pins.StatusLED),
		SaveLED:   sim.NewPin(bc.Pins.SaveLED),
	}

	clock := &sim.Clock{}
	b.XCLK = clock
	owner := hal.NewI2COwner(sim.NewSensor(clock.Running), i2cQueue)
	b.OnClose(owner.Close)
	b.I2C = owner.Bus(timex.Ms(i2cTimeout))

	frame, err := testFrame(bc.TestFrame)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	dvp := sim.NewDVP(func() []byte { return frame }, timex.Ms(bc.FrameIntervalMs))
	b.DVP = dvp
	b.OnClose(dvp.Stop)

	port, err := openSerial(bc.Serial)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	b.Serial = port
	if c, ok := port.(io.Closer); ok {
		b.OnClose(c.Close)
	}

	dir := storage.NewDirFS(cfg.Storage.Dir)
	b.Card = cardFunc(dir.Present)
	return b, func() (storage.FS, error) { return dir, nil }, nil
}

type cardFunc func() bool

func (f cardFunc) Inserted() bool { return f() }

func testFrame(path string) ([]byte, error) {
	if path == "" {
		return sim.TestPattern(320, 240), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &errcode.E{C: errcode.OpenFailed, Op: "board.test_frame", Msg: path, Err: err}
	}
	return b, nil
}

type stdio struct {
	io.Reader
	io.Writer
}

// hostSerial hides read timeouts: the dispatcher expects reads to block.
type hostSerial struct {
	p serial.Port
}

func (s *hostSerial) Read(b []byte) (int, error) {
	for {
		n, err := s.p.Read(b)
		if err == serial.ErrTimeout && n == 0 {
			continue
		}
		return n, err
	}
}

func (s *hostSerial) Write(b []byte) (int, error) { return s.p.Write(b) }
func (s *hostSerial) Close() error                { return s.p.Close() }

func openSerial(sc config.SerialConfig) (hal.SerialPort, error) {
	if sc.Address == "" || sc.Address == "stdio" {
		return stdio{Reader: os.Stdin, Writer: os.Stdout}, nil
	}
	if err := checkSerial(sc); err != nil {
		return nil, err
	}
	p, err := serial.Open(&serial.Config{
		Address:  sc.Address,
		BaudRate: sc.Baud,
		DataBits: sc.DataBits,
		StopBits: sc.StopBits,
		Parity:   sc.Parity,
		Timeout:  timex.Ms(sc.TimeoutMs),
	})
	if err != nil {
		return nil, &errcode.E{C: errcode.OpenFailed, Op: "board.serial", Msg: sc.Address, Err: err}
	}
	return &hostSerial{p: p}, nil
}
