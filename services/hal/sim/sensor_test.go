package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSensor_BankedRegisters(t *testing.T) {
	s := NewSensor(nil)
	r := make([]byte, 1)

	require.NoError(t, s.Tx(0x30, []byte{0xFF, 0x00}, nil))
	require.NoError(t, s.Tx(0x30, []byte{0x44, 0x0C}, nil))
	require.NoError(t, s.Tx(0x30, []byte{0xFF, 0x01}, nil))
	require.NoError(t, s.Tx(0x30, []byte{0x44, 0x99}, nil))

	require.Equal(t, byte(0x0C), s.Reg(0, 0x44))
	require.Equal(t, byte(0x99), s.Reg(1, 0x44))

	require.NoError(t, s.Tx(0x30, []byte{0x0A}, r))
	require.Equal(t, byte(SensorPID), r[0])
}

func TestSensor_SoftResetRestoresDefaults(t *testing.T) {
	s := NewSensor(nil)
	require.NoError(t, s.Tx(0x30, []byte{0xFF, 0x01}, nil))
	require.NoError(t, s.Tx(0x30, []byte{0x44, 0x99}, nil))
	require.NoError(t, s.Tx(0x30, []byte{0x12, 0x80}, nil))
	require.Equal(t, byte(0), s.Reg(1, 0x44))
	require.Equal(t, byte(SensorVER), s.Reg(1, 0x0B))
}

func TestSensor_RequiresClockAndAddress(t *testing.T) {
	var c Clock
	s := NewSensor(c.Running)
	require.ErrorIs(t, s.Tx(0x30, []byte{0xFF, 0x01}, nil), ErrNoClock)

	require.NoError(t, c.Enable())
	require.ErrorIs(t, s.Tx(0x21, []byte{0xFF, 0x01}, nil), ErrNACK)
	require.NoError(t, s.Tx(0x30, []byte{0xFF, 0x01}, nil))
}

func TestSensor_Fault(t *testing.T) {
	s := NewSensor(nil)
	s.Fault = func(bank, reg, val byte) bool { return reg == 0x12 }
	require.ErrorIs(t, s.Tx(0x30, []byte{0x12, 0x80}, nil), ErrNACK)
	require.NoError(t, s.Tx(0x30, []byte{0x13, 0x00}, nil))
	require.Equal(t, 1, s.Writes())
}
