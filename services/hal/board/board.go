// Package board assembles a hal.Board for the build target.
package board

import (
	"quizcam-go/errcode"
	"quizcam-go/services/config"
	"quizcam-go/services/storage"
)

// Media opens the file system behind the card slot. The card monitor calls
// it each time a card is seen.
type Media func() (storage.FS, error)

// I2C transaction limits for the sensor bus.
const (
	i2cQueue   = 8
	i2cTimeout = 5 // ms
)

// checkSerial rejects a frame format the UART cannot be set to.
func checkSerial(sc config.SerialConfig) error {
	switch {
	case sc.Baud <= 0:
		return &errcode.E{C: errcode.InvalidParams, Op: "board.uart", Msg: "baud"}
	case sc.DataBits < 5 || sc.DataBits > 8:
		return &errcode.E{C: errcode.InvalidParams, Op: "board.uart", Msg: "data bits"}
	case sc.StopBits < 1 || sc.StopBits > 2:
		return &errcode.E{C: errcode.InvalidParams, Op: "board.uart", Msg: "stop bits"}
	}
	switch sc.Parity {
	case "N", "E", "O":
		return nil
	}
	return &errcode.E{C: errcode.InvalidParams, Op: "board.uart", Msg: "parity " + sc.Parity}
}
