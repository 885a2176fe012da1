package heartbeat

import (
	"context"
	"testing"
	"time"

	"quizcam-go/bus"
	"quizcam-go/services/config"
	"quizcam-go/services/hal/sim"
	"quizcam-go/services/storage"
	"quizcam-go/types"

	"github.com/stretchr/testify/require"
)

func waitInterval(t *testing.T, s *Service, want time.Duration) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for s.Interval() != want {
		if time.Now().After(deadline) {
			t.Fatalf("interval = %v, want %v", s.Interval(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestHeartbeat_RateFollowsMount(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb")
	s := New(sim.NewPin(25))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, conn))
	waitInterval(t, s, DefaultUnmounted)

	conn.Publish(conn.NewMessage(storage.TopicState, types.StorageState{Mounted: true}, true))
	waitInterval(t, s, DefaultMounted)

	conn.Publish(conn.NewMessage(storage.TopicState, types.StorageState{Mounted: false}, true))
	waitInterval(t, s, DefaultUnmounted)
}

func TestHeartbeat_ConfigAndToggle(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb")
	led := sim.NewPin(25)
	s := New(led)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, conn))

	conn.Publish(conn.NewMessage(topicConfigHeartbeat, config.HeartbeatConfig{MountedMs: 40, UnmountedMs: 5}, true))
	waitInterval(t, s, 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for s.Toggles() < 4 {
		if time.Now().After(deadline) {
			t.Fatal("LED not blinking")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
