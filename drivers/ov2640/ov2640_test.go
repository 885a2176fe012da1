package ov2640

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type txn struct {
	addr uint16
	w    []byte
}

type fakeBus struct {
	log    []txn
	regs   map[byte]byte
	failAt int // 1-based write index that fails; 0 never
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.log = append(f.log, txn{addr: addr, w: append([]byte(nil), w...)})
	if f.failAt != 0 && len(f.log) == f.failAt {
		return errors.New("nack")
	}
	if len(r) == 1 {
		r[0] = f.regs[w[0]]
	}
	return nil
}

func TestWriteArray_StopsAtEnd(t *testing.T) {
	bus := &fakeBus{}
	d := New(bus)
	prog := []Reg{{0x01, 0x02}, {0x03, 0x04}, End, {0x05, 0x06}}

	require.NoError(t, d.WriteArray(prog))
	require.Len(t, bus.log, 2)
	require.Equal(t, uint16(Address), bus.log[0].addr)
	require.Equal(t, []byte{0x03, 0x04}, bus.log[1].w)
}

func TestWriteArray_ReportsFailingEntry(t *testing.T) {
	bus := &fakeBus{failAt: 2}
	d := New(bus)

	err := d.WriteArray([]Reg{{0x01, 0x02}, {0x10, 0x20}, {0x30, 0x40}, End})
	var te *TableError
	require.ErrorAs(t, err, &te)
	require.Equal(t, 1, te.Index)
	require.Equal(t, Reg{0x10, 0x20}, te.Reg)
	require.ErrorIs(t, err, ErrWrite)
	require.Equal(t, "ov2640: table entry 1 (0x10=0x20): ov2640: register write failed\nnack", err.Error())
	require.Len(t, bus.log, 2)
}

func TestReadID(t *testing.T) {
	bus := &fakeBus{regs: map[byte]byte{RegPID: 0x26, RegVER: 0x42}}
	id, err := New(bus).ReadID()
	require.NoError(t, err)
	require.Equal(t, uint16(ProductID), id)
	require.Equal(t, []byte{RegBankSel, BankSensor}, bus.log[0].w)
}

func TestTablesAreTerminated(t *testing.T) {
	for name, regs := range map[string][]Reg{
		"reset":  ResetRegs,
		"init":   JPEGInitRegs,
		"yuv":    YUV422Regs,
		"jpeg":   JPEGRegs,
		"bank":   BankSensorRegs,
		"xga":    Res1024x768Regs,
		"qvga":   Res320x240Regs,
		"normal": NormalEffectRegs,
		"auto":   AutoLightRegs,
	} {
		require.Equal(t, End, regs[len(regs)-1], name)
	}
}

func TestResolution(t *testing.T) {
	r, ok := Resolution("xga")
	require.True(t, ok)
	require.Equal(t, Res1024x768Regs, r)
	_, ok = Resolution("4k")
	require.False(t, ok)
}
