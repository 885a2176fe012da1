// Package sim provides in-memory stand-ins for the camera board: pins, the
// sensor's register file, a streaming capture peripheral and media presence.
package sim

import (
	"sync"
	"sync/atomic"

	"quizcam-go/services/hal"
)

// Pin is a GPIO line held in memory. Set fires the installed IRQ handler on
// a matching edge, the way a real pin would.
type Pin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	output  bool
	irqEdge hal.Edge
	irqFunc func()
}

var _ hal.IRQPin = (*Pin)(nil)

func NewPin(n int) *Pin { return &Pin{number: n} }

func (p *Pin) ConfigureInput(pull hal.Pull) error {
	p.mu.Lock()
	p.output = false
	switch pull {
	case hal.PullUp:
		p.level = true
	case hal.PullDown:
		p.level = false
	}
	p.mu.Unlock()
	return nil
}

func (p *Pin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.output = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *Pin) Set(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	irq := p.irqFunc
	want := irqWanted(p.irqEdge, old, level)
	p.mu.Unlock()
	if want && irq != nil {
		irq()
	}
}

func (p *Pin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

func (p *Pin) Toggle() { p.Set(!p.Get()) }

func (p *Pin) Number() int { return p.number }

func (p *Pin) SetIRQ(edge hal.Edge, handler func()) error {
	p.mu.Lock()
	p.irqEdge = edge
	p.irqFunc = handler
	p.mu.Unlock()
	return nil
}

func (p *Pin) ClearIRQ() error {
	p.mu.Lock()
	p.irqEdge = hal.EdgeNone
	p.irqFunc = nil
	p.mu.Unlock()
	return nil
}

func irqWanted(want hal.Edge, old, new bool) bool {
	switch {
	case old == new:
		return false
	case want == hal.EdgeBoth:
		return true
	case want == hal.EdgeRising:
		return new
	case want == hal.EdgeFalling:
		return !new
	}
	return false
}

// Clock records whether XCLK is running.
type Clock struct{ on atomic.Bool }

func (c *Clock) Enable() error  { c.on.Store(true); return nil }
func (c *Clock) Disable() error { c.on.Store(false); return nil }
func (c *Clock) Running() bool  { return c.on.Load() }

// Card is a media slot whose presence is set by hand.
type Card struct{ in atomic.Bool }

func (c *Card) Insert()        { c.in.Store(true) }
func (c *Card) Remove()        { c.in.Store(false) }
func (c *Card) Inserted() bool { return c.in.Load() }
