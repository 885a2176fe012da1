// Package hal describes the board the firmware runs on: the sensor bus, the
// camera control pins, the parallel capture peripheral, the serial link to
// the companion application and the removable media slot.
package hal

import (
	"io"

	"tinygo.org/x/drivers"
)

// ---- GPIO ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

type GPIOPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Toggle()
	Number() int
}

// Edge selection for IRQ.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// IRQPin extends GPIOPin with interrupts.
type IRQPin interface {
	GPIOPin
	SetIRQ(edge Edge, handler func()) error
	ClearIRQ() error
}

// Clock drives the sensor's XCLK input.
type Clock interface {
	Enable() error
	Disable() error
}

// ---- Capture peripheral (DVP/DCMI) ----

// DVPConfig configures the parallel capture block. FrameEnd and TransferEnd
// run in interrupt context: they must not block and must not allocate.
type DVPConfig struct {
	JPEG        bool
	PCLKRising  bool
	FrameEnd    func()
	TransferEnd func()
}

// DVP is the camera capture peripheral. Stop must be safe to call from a
// FrameEnd callback.
type DVP interface {
	Start(cfg DVPConfig) error
	Stop() error
	// StartOneShot arms a single transfer of up to size bytes into a, then
	// size bytes into b.
	StartOneShot(size int, a, b []byte) error
}

// ---- Serial ----

// SerialPort is the companion link. Reads block until bytes arrive.
type SerialPort interface {
	io.Reader
	io.Writer
}

// ---- Media ----

// CardDetect reports whether removable media is present.
type CardDetect interface {
	Inserted() bool
}

// Board bundles every collaborator the firmware needs.
type Board struct {
	Name string

	// Sensor control bus (SCCB over I2C).
	I2C drivers.I2C

	// Camera control lines. Reset is active low, PowerDown active high.
	Reset     GPIOPin
	PowerDown GPIOPin
	XCLK      Clock
	DVP       DVP

	Serial SerialPort

	Button    GPIOPin // active low
	StatusLED GPIOPin
	SaveLED   GPIOPin

	Card CardDetect

	closers []func() error
}

// OnClose registers a release hook run by Close in reverse order.
func (b *Board) OnClose(fn func() error) { b.closers = append(b.closers, fn) }

// Close releases board resources; the first error wins.
func (b *Board) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}
