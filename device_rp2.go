//go:build rp2040

package main

import "time"

const (
	deviceID    = "pico"
	bootDelay   = 3 * time.Second
	exitOnClose = false
	memEvery    = 30 * time.Second
)
