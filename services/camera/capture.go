package camera

import (
	"time"

	"quizcam-go/errcode"
	"quizcam-go/services/hal"
	"quizcam-go/types"
	"quizcam-go/x/timex"
)

// Op performs token-guarded operations. It is handed out by Run and TryRun
// and must not be kept after they return.
type Op struct {
	e *Engine
}

// Capture takes one JPEG frame into the frame store. It starts the stream,
// arms a one-shot transfer into both halves of the store and halts the
// stream when the frame-sync threshold or the transfer wait is reached,
// whichever comes first.
func (op *Op) Capture() error {
	e := op.e
	switch {
	case !e.powered.Load():
		return &errcode.E{C: errcode.NotPowered, Op: "camera.capture"}
	case !e.ready.Load():
		return &errcode.E{C: errcode.NotInitialised, Op: "camera.capture"}
	}

	e.busy.Store(true)
	e.captured.Store(false)
	e.store.Clear()
	session := e.session.Add(1)
	e.sync.Arm()
	e.publishStatus()

	err := e.dvp.Start(hal.DVPConfig{
		JPEG:        true,
		FrameEnd:    e.sync.FrameEnd,
		TransferEnd: e.sync.TransferEnd,
	})
	if err != nil {
		e.busy.Store(false)
		e.publishStatus()
		return errcode.Wrap(errcode.SensorError, "camera.capture", err)
	}

	time.Sleep(e.t.StreamSettle)
	a, b := e.store.Halves()
	if err := e.dvp.StartOneShot(e.store.HalfSize(), a, b); err != nil {
		e.sync.Halt()
		e.busy.Store(false)
		e.publishStatus()
		return errcode.Wrap(errcode.SensorError, "camera.capture", err)
	}
	time.Sleep(e.t.TransferWait)
	e.sync.Halt()

	e.busy.Store(false)
	e.captured.Store(true)
	e.captures.Add(1)
	e.publish(TopicCapture, types.CaptureEvent{
		Session: session,
		Frames:  e.sync.Frames(),
		Halted:  e.sync.HaltedByISR(),
		TS:      timex.NowMs(),
	})
	e.publishStatus()
	return nil
}

// Save writes the captured frame to name and returns the bytes written.
// The end-of-image marker is located before the file is created, so a frame
// without one leaves storage untouched.
func (op *Op) Save(name string) (int, error) {
	e := op.e
	if !e.captured.Load() {
		return 0, &errcode.E{C: errcode.NotCaptured, Op: "camera.save"}
	}
	frame, err := e.store.Frame()
	if err != nil {
		return 0, err
	}
	if e.media == nil {
		return 0, &errcode.E{C: errcode.NoMedia, Op: "camera.save"}
	}

	if e.led != nil {
		e.led.Toggle()
	}
	n, err := writeFile(e, name, frame)
	if e.led != nil {
		time.Sleep(e.t.IndicatorHold)
		e.led.Toggle()
	}
	if err != nil {
		return n, err
	}

	e.captured.Store(false)
	e.saves.Add(1)
	e.publish(TopicSaved, types.SaveEvent{Name: name, Bytes: n, TS: timex.NowMs()})
	e.publishStatus()
	return n, nil
}

func writeFile(e *Engine, name string, frame []byte) (int, error) {
	f, err := e.media.Create(name)
	if err != nil {
		if errcode.Of(err) == errcode.NoMedia {
			return 0, err
		}
		return 0, &errcode.E{C: errcode.OpenFailed, Op: "camera.save", Msg: name, Err: err}
	}
	n, err := f.Write(frame)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, &errcode.E{C: errcode.IOError, Op: "camera.save", Msg: name, Err: err}
	}
	return n, nil
}

// Capture runs a single capture under the token.
func (e *Engine) Capture() error {
	return e.Run(func(op *Op) error { return op.Capture() })
}

// Save persists the captured frame under the token.
func (e *Engine) Save(name string) (int, error) {
	var n int
	err := e.Run(func(op *Op) error {
		var err error
		n, err = op.Save(name)
		return err
	})
	return n, err
}

// Shoot captures and saves in one token hold.
func (e *Engine) Shoot(name string) (int, error) {
	var n int
	err := e.Run(func(op *Op) error {
		if err := op.Capture(); err != nil {
			return err
		}
		var err error
		n, err = op.Save(name)
		return err
	})
	return n, err
}
