package hal_test

import (
	"context"
	"testing"
	"time"

	"quizcam-go/services/hal"
	"quizcam-go/services/hal/sim"

	"github.com/stretchr/testify/require"
)

func waitEdge(t *testing.T, ch <-chan hal.EdgeEvent) hal.EdgeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for edge")
	}
	return hal.EdgeEvent{}
}

func TestIRQWatcher_InvertedPress(t *testing.T) {
	pin := sim.NewPin(2)
	require.NoError(t, pin.ConfigureInput(hal.PullUp))

	w := hal.NewIRQWatcher(pin, hal.EdgeRising, 0, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	pin.Set(false) // pressed, active low
	ev := waitEdge(t, w.Events())
	require.Equal(t, hal.EdgeRising, ev.Edge)
	require.True(t, ev.Level)

	pin.Set(true) // release is filtered
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIRQWatcher_Debounce(t *testing.T) {
	pin := sim.NewPin(2)
	require.NoError(t, pin.ConfigureOutput(false))

	w := hal.NewIRQWatcher(pin, hal.EdgeBoth, time.Hour, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	pin.Set(true)
	require.Equal(t, hal.EdgeRising, waitEdge(t, w.Events()).Edge)

	pin.Set(false) // inside the window
	select {
	case ev := <-w.Events():
		t.Fatalf("bounce leaked: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
