package storage

import (
	"context"
	"sync"
	"time"

	"quizcam-go/bus"
	"quizcam-go/errcode"
	"quizcam-go/types"
	"quizcam-go/x/timex"
)

// TopicState carries the retained types.StorageState.
var TopicState = bus.T("storage", "state")

// Volume is the mount point. Every FS call fails with NoMedia while nothing
// is mounted.
type Volume struct {
	mu   sync.RWMutex
	fs   FS
	conn *bus.Connection
}

var _ FS = (*Volume)(nil)

// NewVolume returns an unmounted volume. conn may be nil.
func NewVolume(conn *bus.Connection) *Volume {
	v := &Volume{conn: conn}
	v.publish(false)
	return v
}

func (v *Volume) Mount(fs FS) {
	v.mu.Lock()
	v.fs = fs
	v.mu.Unlock()
	v.publish(fs != nil)
}

func (v *Volume) Unmount() {
	v.mu.Lock()
	v.fs = nil
	v.mu.Unlock()
	v.publish(false)
}

func (v *Volume) Mounted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fs != nil
}

func (v *Volume) publish(mounted bool) {
	if v.conn == nil {
		return
	}
	v.conn.Publish(v.conn.NewMessage(TopicState, types.StorageState{
		Mounted: mounted,
		TS:      timex.NowMs(),
	}, true))
}

func (v *Volume) current(op string) (FS, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.fs == nil {
		return nil, &errcode.E{C: errcode.NoMedia, Op: op}
	}
	return v.fs, nil
}

func (v *Volume) Open(name string) (File, error) {
	fs, err := v.current("storage.open")
	if err != nil {
		return nil, err
	}
	return fs.Open(name)
}

func (v *Volume) OpenRW(name string) (File, error) {
	fs, err := v.current("storage.open_rw")
	if err != nil {
		return nil, err
	}
	return fs.OpenRW(name)
}

func (v *Volume) Create(name string) (File, error) {
	fs, err := v.current("storage.create")
	if err != nil {
		return nil, err
	}
	return fs.Create(name)
}

func (v *Volume) Append(name string) (File, error) {
	fs, err := v.current("storage.append")
	if err != nil {
		return nil, err
	}
	return fs.Append(name)
}

// ---- card monitor ----

// Detector reports media presence.
type Detector interface {
	Inserted() bool
}

const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultStablePolls  = 10
)

// Monitor debounces a card-detect line and mounts or unmounts the volume.
// A card must read present for StablePolls consecutive polls before it is
// mounted; a single absent poll unmounts it.
type Monitor struct {
	card   Detector
	vol    *Volume
	media  func() (FS, error)
	every  time.Duration
	stable int

	cnt int // polls left before mounting; 0 while mounted
}

// NewMonitor wires a detector to a volume. media is called on insertion.
func NewMonitor(card Detector, vol *Volume, media func() (FS, error)) *Monitor {
	return &Monitor{
		card:   card,
		vol:    vol,
		media:  media,
		every:  DefaultPollInterval,
		stable: DefaultStablePolls,
		cnt:    DefaultStablePolls,
	}
}

// SetTiming overrides the poll interval and debounce depth.
func (m *Monitor) SetTiming(every time.Duration, stable int) {
	if every > 0 {
		m.every = every
	}
	if stable > 0 {
		m.stable = stable
		m.cnt = stable
	}
}

// Poll samples the detector once.
func (m *Monitor) Poll() {
	in := m.card.Inserted()
	if m.cnt > 0 {
		if !in {
			m.cnt = m.stable
			return
		}
		m.cnt--
		if m.cnt == 0 {
			m.insert()
		}
		return
	}
	if !in {
		m.cnt = m.stable
		m.remove()
	}
}

func (m *Monitor) insert() {
	fs, err := m.media()
	if err != nil {
		// stays unmounted until the card is reseated
		println("[storage] mount failed:", err.Error())
		return
	}
	m.vol.Mount(fs)
	println("[storage] card mounted")
}

func (m *Monitor) remove() {
	if m.vol.Mounted() {
		m.vol.Unmount()
		println("[storage] card removed")
	}
}

// Run polls until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Poll()
		}
	}
}
