// Package ov2640 provides a driver for the OV2640 image sensor's SCCB
// control port. SCCB is electrically I2C; register writes are two bytes
// (register, value) and reads are a one-byte write followed by a one-byte
// read.
//
// Register programs are []Reg terminated by End:
//
//	d := ov2640.New(bus)
//	err := d.WriteArray(ov2640.ResetRegs)
//
// The sensor exposes two register banks selected through RegBankSel. The
// driver does not track the current bank; programs select it explicitly.
package ov2640

import (
	"errors"

	"quizcam-go/x/conv"

	"tinygo.org/x/drivers"
)

// I2C address (0x60 in 8-bit form).
const Address = 0x30

// Bank selection and identification registers.
const (
	RegBankSel = 0xFF
	BankDSP    = 0x00
	BankSensor = 0x01

	// Sensor bank
	RegCOM7 = 0x12
	RegPID  = 0x0A
	RegVER  = 0x0B

	COM7SoftReset = 0x80
)

// ProductID is PID<<8 | VER for the OV2640.
const ProductID = 0x2642

// Reg is one register assignment.
type Reg struct {
	Addr, Val byte
}

// End terminates a register program.
var End = Reg{0xFF, 0xFF}

// Errors returned by the driver.
var (
	ErrWrite = errors.New("ov2640: register write failed")
	ErrRead  = errors.New("ov2640: register read failed")
)

// TableError reports the entry of a register program that failed.
type TableError struct {
	Index int
	Reg   Reg
	Err   error
}

func (e *TableError) Error() string {
	return "ov2640: table entry " + conv.Itoa(e.Index) + " (0x" + conv.Hex8(e.Reg.Addr) + "=0x" + conv.Hex8(e.Reg.Val) + "): " + e.Err.Error()
}

func (e *TableError) Unwrap() error { return e.Err }

// Device wraps an SCCB connection to an OV2640.
type Device struct {
	bus     drivers.I2C
	Address uint16

	wbuf [2]byte
	rbuf [1]byte
}

// New creates a Device. The bus must already be configured; the sensor is
// not touched.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// WriteRegister writes val to reg in the currently selected bank.
func (d *Device) WriteRegister(reg, val byte) error {
	d.wbuf[0], d.wbuf[1] = reg, val
	if err := d.bus.Tx(d.Address, d.wbuf[:2], nil); err != nil {
		return errors.Join(ErrWrite, err)
	}
	return nil
}

// ReadRegister reads reg from the currently selected bank.
func (d *Device) ReadRegister(reg byte) (byte, error) {
	d.wbuf[0] = reg
	if err := d.bus.Tx(d.Address, d.wbuf[:1], d.rbuf[:]); err != nil {
		return 0, errors.Join(ErrRead, err)
	}
	return d.rbuf[0], nil
}

// WriteArray applies regs in order up to End or the end of the slice. It
// stops at the first failed write.
func (d *Device) WriteArray(regs []Reg) error {
	for i, r := range regs {
		if r == End {
			return nil
		}
		if err := d.WriteRegister(r.Addr, r.Val); err != nil {
			return &TableError{Index: i, Reg: r, Err: err}
		}
	}
	return nil
}

// SelectBank switches the register bank.
func (d *Device) SelectBank(bank byte) error {
	return d.WriteRegister(RegBankSel, bank)
}

// ReadID returns PID<<8 | VER. It leaves the sensor bank selected.
func (d *Device) ReadID() (uint16, error) {
	if err := d.SelectBank(BankSensor); err != nil {
		return 0, err
	}
	pid, err := d.ReadRegister(RegPID)
	if err != nil {
		return 0, err
	}
	ver, err := d.ReadRegister(RegVER)
	if err != nil {
		return 0, err
	}
	return uint16(pid)<<8 | uint16(ver), nil
}

// SoftReset restores register defaults.
func (d *Device) SoftReset() error {
	return d.WriteArray(ResetRegs)
}
