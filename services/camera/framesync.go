package camera

import "sync/atomic"

// FrameSyncThreshold is the number of frame-end events after which the
// stream is halted.
const FrameSyncThreshold = 10

// FrameSync counts frame-end interrupts and stops the stream once the
// threshold is reached. FrameEnd and TransferEnd run in interrupt context;
// everything here is lock-free.
type FrameSync struct {
	threshold int32
	stop      func() error

	count     atomic.Int32
	frames    atomic.Uint32
	transfers atomic.Uint32
	halted    atomic.Bool
	byISR     atomic.Bool
}

func NewFrameSync(threshold int, stop func() error) *FrameSync {
	if threshold <= 0 {
		threshold = FrameSyncThreshold
	}
	return &FrameSync{threshold: int32(threshold), stop: stop}
}

// Arm resets the counters for a new session.
func (f *FrameSync) Arm() {
	f.count.Store(0)
	f.frames.Store(0)
	f.transfers.Store(0)
	f.byISR.Store(false)
	f.halted.Store(false)
}

// FrameEnd is the frame-end interrupt handler.
func (f *FrameSync) FrameEnd() {
	f.frames.Add(1)
	if f.count.Add(1) >= f.threshold {
		f.count.Store(0)
		if f.Halt() {
			f.byISR.Store(true)
		}
	}
}

// TransferEnd is the transfer-complete interrupt handler.
func (f *FrameSync) TransferEnd() { f.transfers.Add(1) }

// Halt stops the stream once per session. It reports whether this call
// performed the stop.
func (f *FrameSync) Halt() bool {
	if !f.halted.CompareAndSwap(false, true) {
		return false
	}
	if f.stop != nil {
		_ = f.stop()
	}
	return true
}

func (f *FrameSync) Frames() uint32    { return f.frames.Load() }
func (f *FrameSync) Transfers() uint32 { return f.transfers.Load() }
func (f *FrameSync) Halted() bool      { return f.halted.Load() }
func (f *FrameSync) HaltedByISR() bool { return f.byISR.Load() }
func (f *FrameSync) Pending() int32    { return f.count.Load() }
