package hal

import (
	"sync"
	"time"

	"quizcam-go/errcode"

	"tinygo.org/x/drivers"
)

// I2COwner serialises every transaction on one bus through a single worker
// goroutine. Callers may use Bus handles from any goroutine.
type I2COwner struct {
	raw  drivers.I2C
	reqs chan i2cReq
	quit chan struct{}
	once sync.Once
}

type i2cReq struct {
	addr uint16
	w    []byte
	r    []byte // owned by the request, copied out by the caller
	done chan error
}

// NewI2COwner starts the bus worker. depth bounds queued transactions.
func NewI2COwner(raw drivers.I2C, depth int) *I2COwner {
	if depth <= 0 {
		depth = 16
	}
	o := &I2COwner{
		raw:  raw,
		reqs: make(chan i2cReq, depth),
		quit: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *I2COwner) loop() {
	for {
		select {
		case req := <-o.reqs:
			err := o.raw.Tx(req.addr, req.w, req.r)
			// best-effort reply; do not block the worker
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

// Close stops the worker. Pending transactions time out.
func (o *I2COwner) Close() error {
	o.once.Do(func() { close(o.quit) })
	return nil
}

// Bus returns a drivers.I2C handle bound to this owner. timeout bounds both
// the enqueue and the completion wait; zero waits forever.
func (o *I2COwner) Bus(timeout time.Duration) drivers.I2C {
	return &ownedI2C{o: o, timeout: timeout}
}

type ownedI2C struct {
	o       *I2COwner
	timeout time.Duration
}

var _ drivers.I2C = (*ownedI2C)(nil)

func (d *ownedI2C) Tx(addr uint16, w, r []byte) error {
	req := i2cReq{
		addr: addr,
		w:    append([]byte(nil), w...),
		done: make(chan error, 1),
	}
	if len(r) > 0 {
		req.r = make([]byte, len(r))
	}

	var expire <-chan time.Time
	if d.timeout > 0 {
		t := time.NewTimer(d.timeout)
		defer t.Stop()
		expire = t.C
	}

	select {
	case d.o.reqs <- req:
	case <-d.o.quit:
		return errcode.Unsupported
	case <-expire:
		return errcode.Busy
	}

	select {
	case err := <-req.done:
		if err == nil {
			copy(r, req.r)
		}
		return err
	case <-expire:
		return errcode.Timeout
	}
}
