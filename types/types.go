// Package types holds the payloads published on the bus. Every payload is a
// plain JSON-serialisable struct; TS fields are Unix milliseconds.
package types

// ServiceState is the retained lifecycle state of a service.
type ServiceState struct {
	Level  string `json:"level"`  // "starting", "ready", "up", "degraded", "idle", "stopped", "error"
	Status string `json:"status"` // short code, e.g. an errcode
	TS     int64  `json:"ts_ms"`
}

// ------------------------
// Camera
// ------------------------

type CameraStatus struct {
	Powered     bool   `json:"powered"`
	Initialised bool   `json:"initialised"`
	Busy        bool   `json:"busy"`
	Captured    bool   `json:"captured"`
	ErrorMask   uint16 `json:"error_mask"`
	Captures    uint32 `json:"captures"`
	Saves       uint32 `json:"saves"`
	Frames      uint32 `json:"frames"`    // frame-end events in the last session
	Transfers   uint32 `json:"transfers"` // transfer-complete events in the last session
	TS          int64  `json:"ts_ms"`
}

type CaptureEvent struct {
	Session uint32 `json:"session"`
	Frames  uint32 `json:"frames"`
	Halted  bool   `json:"halted_by_sync"` // stream stopped by the frame counter
	TS      int64  `json:"ts_ms"`
}

type SaveEvent struct {
	Name  string `json:"name"`
	Bytes int    `json:"bytes"`
	TS    int64  `json:"ts_ms"`
}

// ------------------------
// Storage
// ------------------------

type StorageState struct {
	Mounted bool  `json:"mounted"`
	TS      int64 `json:"ts_ms"`
}

// ------------------------
// Questions
// ------------------------

type QuestionsIndexed struct {
	File  string `json:"file"`
	Count int    `json:"count"`
	TS    int64  `json:"ts_ms"`
}

type QuestionMarked struct {
	Index     int   `json:"index"`
	Ticks     int   `json:"ticks"`
	StaleFrom int   `json:"stale_from"`
	TS        int64 `json:"ts_ms"`
}

// ------------------------
// Protocol
// ------------------------

type FrameEvent struct {
	Cmd   string `json:"cmd"`
	Reply string `json:"reply"` // hex
	TS    int64  `json:"ts_ms"`
}

// ------------------------
// Button / LED
// ------------------------

type ButtonValue struct {
	Pressed bool  `json:"pressed"`
	TS      int64 `json:"ts_ms"`
}

type LEDValue struct {
	On bool `json:"on"`
}
