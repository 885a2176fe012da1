package hal

import (
	"errors"
	"sync"
	"testing"
	"time"

	"quizcam-go/errcode"

	"github.com/stretchr/testify/require"
)

type fakeRawI2C struct {
	mu    sync.Mutex
	calls int
	hold  chan struct{}
	reply byte
	err   error
}

func (f *fakeRawI2C) Tx(addr uint16, w, r []byte) error {
	if f.hold != nil {
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(r) > 0 {
		r[0] = f.reply
	}
	return f.err
}

func TestI2COwner_ReadCopiesBack(t *testing.T) {
	raw := &fakeRawI2C{reply: 0x26}
	o := NewI2COwner(raw, 4)
	defer o.Close()

	bus := o.Bus(time.Second)
	r := make([]byte, 1)
	require.NoError(t, bus.Tx(0x30, []byte{0x0A}, r))
	require.Equal(t, byte(0x26), r[0])
}

func TestI2COwner_PropagatesError(t *testing.T) {
	boom := errors.New("nack")
	o := NewI2COwner(&fakeRawI2C{err: boom}, 4)
	defer o.Close()

	err := o.Bus(time.Second).Tx(0x30, []byte{0x01, 0x02}, nil)
	require.ErrorIs(t, err, boom)
}

func TestI2COwner_Timeout(t *testing.T) {
	raw := &fakeRawI2C{hold: make(chan struct{}), reply: 0xAA}
	o := NewI2COwner(raw, 4)
	defer o.Close()

	r := []byte{0x00}
	err := o.Bus(20*time.Millisecond).Tx(0x30, []byte{0x0A}, r)
	require.True(t, errcode.Is(err, errcode.Timeout))

	// The late completion must not scribble on the abandoned buffer.
	close(raw.hold)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, byte(0x00), r[0])
}

func TestI2COwner_Closed(t *testing.T) {
	o := NewI2COwner(&fakeRawI2C{}, 1)
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	// With the worker gone the request either cannot be queued or never
	// completes; both surface as errors.
	err := o.Bus(20*time.Millisecond).Tx(0x30, []byte{0x01, 0x00}, nil)
	require.Error(t, err)
}
