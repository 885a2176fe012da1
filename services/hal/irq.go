package hal

import (
	"context"
	"sync/atomic"
	"time"
)

// EdgeEvent is a debounced transition seen on a watched pin.
type EdgeEvent struct {
	Level bool // after inversion
	Edge  Edge
	TS    time.Time
}

// IRQWatcher turns pin interrupts into debounced edge events. The handler
// installed on the pin only samples the level and does a non-blocking send.
type IRQWatcher struct {
	pin      IRQPin
	edge     Edge
	debounce time.Duration
	invert   bool

	isrQ chan bool
	outQ chan EdgeEvent

	last      bool
	lastEvent time.Time

	drops atomic.Uint32
}

// NewIRQWatcher prepares a watcher; Start installs the handler.
func NewIRQWatcher(pin IRQPin, edge Edge, debounce time.Duration, invert bool) *IRQWatcher {
	return &IRQWatcher{
		pin:      pin,
		edge:     edge,
		debounce: debounce,
		invert:   invert,
		isrQ:     make(chan bool, 16),
		outQ:     make(chan EdgeEvent, 8),
	}
}

func (w *IRQWatcher) Events() <-chan EdgeEvent { return w.outQ }

// ISRDrops counts samples lost because the worker fell behind.
func (w *IRQWatcher) ISRDrops() uint32 { return w.drops.Load() }

// Start installs the interrupt handler and runs the worker until ctx ends.
func (w *IRQWatcher) Start(ctx context.Context) error {
	w.last = w.level(w.pin.Get())
	handler := func() {
		select {
		case w.isrQ <- w.pin.Get():
		default:
			w.drops.Add(1)
		}
	}
	if err := w.pin.SetIRQ(EdgeBoth, handler); err != nil {
		return err
	}
	go func() {
		defer func() { _ = w.pin.ClearIRQ() }()
		for {
			select {
			case <-ctx.Done():
				return
			case raw := <-w.isrQ:
				w.handle(raw)
			}
		}
	}()
	return nil
}

func (w *IRQWatcher) level(raw bool) bool {
	if w.invert {
		return !raw
	}
	return raw
}

func (w *IRQWatcher) handle(raw bool) {
	lvl := w.level(raw)
	now := time.Now()
	if !w.lastEvent.IsZero() && now.Sub(w.lastEvent) < w.debounce {
		return
	}
	var e Edge
	switch {
	case !w.last && lvl:
		e = EdgeRising
	case w.last && !lvl:
		e = EdgeFalling
	default:
		return
	}
	w.last = lvl
	w.lastEvent = now
	if w.edge != EdgeBoth && w.edge != e {
		return
	}
	select {
	case w.outQ <- EdgeEvent{Level: lvl, Edge: e, TS: now}:
	default:
		// consumer is slow
	}
}
