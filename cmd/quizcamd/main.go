// Command quizcamd runs the quiz camera on a host: a simulated sensor, the
// question protocol on a serial port, an optional MQTT uplink and a debug
// console.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"quizcam-go/bus"
	"quizcam-go/services/bridge"
	"quizcam-go/services/config"
	"quizcam-go/services/console"
	"quizcam-go/services/hal/board"
	"quizcam-go/services/protocol"
	"quizcam-go/services/system"
	"quizcam-go/types"
)

var (
	configPath  = flag.String("config", "", "YAML file overlaid on the built-in host configuration.")
	serialAddr  = flag.String("serial", "", "Serial device for the companion link; overrides the config.")
	mediaDir    = flag.String("media", "", "Directory used as the memory card; overrides the config.")
	withConsole = flag.Bool("console", false, "Run the interactive debug console.")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Load("host", *configPath)
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	if *serialAddr != "" {
		cfg.Board.Serial.Address = *serialAddr
	}
	if *mediaDir != "" {
		cfg.Storage.Dir = *mediaDir
	}
	if *withConsole && cfg.Board.Serial.Address == "stdio" {
		glog.Exit("the console needs stdin; set -serial to a device")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		os.Exit(1)
	}()

	brd, media, err := board.Open(cfg)
	if err != nil {
		glog.Exitf("board: %v", err)
	}
	defer brd.Close()

	b := bus.NewBus(16)
	sys, err := system.Build(cfg, brd, media, b)
	if err != nil {
		glog.Exitf("system: %v", err)
	}
	go trace(ctx, b.NewConnection("trace"))
	go bridge.Start(ctx, b.NewConnection("bridge"), sys.Volume)

	if err := sys.Start(ctx); err != nil {
		glog.Exitf("start: %v", err)
	}
	glog.Infof("serving %s on %s, media %s", brd.Name, cfg.Board.Serial.Address, cfg.Storage.Dir)

	if *withConsole {
		go serve(ctx, sys)
		console.New(sys.Engine, sys.Questions).Shell().Run()
		return
	}
	serve(ctx, sys)
}

func serve(ctx context.Context, sys *system.System) {
	if err := sys.Serve(ctx); err != nil && ctx.Err() == nil {
		glog.Errorf("protocol: %v", err)
		return
	}
	glog.Info("link closed")
}

// trace logs protocol frames and service state changes.
func trace(ctx context.Context, conn *bus.Connection) {
	frames := conn.Subscribe(protocol.TopicFrames)
	states := conn.Subscribe(bus.T("+", "state"))
	defer conn.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-frames.Channel():
			if ev, ok := m.Payload.(types.FrameEvent); ok {
				glog.V(2).Infof("frame %q -> %s", ev.Cmd, ev.Reply)
			}
		case m := <-states.Channel():
			switch st := m.Payload.(type) {
			case types.ServiceState:
				glog.Infof("%s: %s %s", m.Topic, st.Level, st.Status)
			case types.StorageState:
				glog.Infof("%s: mounted=%v", m.Topic, st.Mounted)
			}
		}
	}
}
