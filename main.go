package main

import (
	"context"
	"runtime"
	"time"

	"quizcam-go/bus"
	"quizcam-go/services/camera"
	"quizcam-go/services/config"
	"quizcam-go/services/hal/board"
	"quizcam-go/services/system"
	"quizcam-go/types"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(bootDelay)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)
	mainConn := b.NewConnection("main")

	cfg, err := config.NewConfigService("").Start(ctx, mainConn)
	if err != nil {
		halt("config: " + err.Error())
	}

	brd, media, err := board.Open(cfg)
	if err != nil {
		halt("board: " + err.Error())
	}
	defer brd.Close()

	sys, err := system.Build(cfg, brd, media, b)
	if err != nil {
		halt("system: " + err.Error())
	}

	println("[main] subscribing to camera/status for diagnostics …")
	mon := mainConn.Subscribe(camera.TopicStatus)
	go func() {
		for m := range mon.Channel() {
			if st, ok := m.Payload.(types.CameraStatus); ok {
				println("[monitor] camera powered:", st.Powered, "ready:", st.Initialised,
					"captured:", st.Captured, "errors:", st.ErrorMask)
			}
		}
	}()

	if err := sys.Start(ctx); err != nil {
		halt("start: " + err.Error())
	}

	go func() {
		tick := time.NewTicker(memEvery)
		defer tick.Stop()
		for range tick.C {
			printMem()
		}
	}()

	println("[main] serving protocol on", brd.Name)
	for {
		err := sys.Serve(ctx)
		if err != nil {
			println("[main] serve:", err.Error())
		} else if exitOnClose {
			println("[main] link closed")
			return
		}
		// the link was lost; wait and listen again
		time.Sleep(time.Second)
	}
}

func halt(msg string) {
	println("[main] fatal:", msg)
	for {
		time.Sleep(time.Hour)
	}
}

// printMem prints a compact snapshot of runtime memory stats.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
