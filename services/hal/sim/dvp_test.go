package sim

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"quizcam-go/services/hal"

	"github.com/stretchr/testify/require"
)

func TestTestPattern_IsJPEG(t *testing.T) {
	img := TestPattern(32, 24)
	require.True(t, bytes.HasPrefix(img, []byte{0xFF, 0xD8}))
	require.True(t, bytes.HasSuffix(img, []byte{0xFF, 0xD9}))
}

func TestDVP_OneShotSpansBothHalves(t *testing.T) {
	frame := bytes.Repeat([]byte{0xAB}, 12)
	d := NewDVP(func() []byte { return frame }, time.Millisecond)

	done := make(chan struct{}, 1)
	require.NoError(t, d.Start(hal.DVPConfig{
		JPEG: true,
		TransferEnd: func() {
			select {
			case done <- struct{}{}:
			default:
			}
		},
	}))
	defer d.Stop()

	a, b := make([]byte, 8), make([]byte, 8)
	require.NoError(t, d.StartOneShot(8, a, b))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("transfer never completed")
	}
	require.Equal(t, bytes.Repeat([]byte{0xAB}, 8), a)
	require.Equal(t, []byte{0xAB, 0xAB, 0xAB, 0xAB, 0, 0, 0, 0}, b)
}

func TestDVP_StopFromFrameEnd(t *testing.T) {
	d := NewDVP(func() []byte { return nil }, time.Millisecond)
	var n atomic.Int32
	require.NoError(t, d.Start(hal.DVPConfig{
		FrameEnd: func() {
			if n.Add(1) == 3 {
				_ = d.Stop()
			}
		},
	}))

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(3), n.Load())
	require.Error(t, d.StartOneShot(4, make([]byte, 4), make([]byte, 4)))
}

func TestDVP_StartTwiceIsBusy(t *testing.T) {
	d := NewDVP(func() []byte { return nil }, time.Hour)
	require.NoError(t, d.Start(hal.DVPConfig{}))
	defer d.Stop()
	require.Error(t, d.Start(hal.DVPConfig{}))
}
