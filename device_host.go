//go:build !rp2040

package main

import "time"

const (
	deviceID    = "host"
	bootDelay   = 0
	exitOnClose = true
	memEvery    = 5 * time.Minute
)
