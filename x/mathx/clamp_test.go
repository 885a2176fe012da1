package mathx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	require.Equal(t, 5, Clamp(5, 0, 10))
	require.Equal(t, 0, Clamp(-3, 0, 10))
	require.Equal(t, 10, Clamp(30, 10, 0), "swapped bounds")
	require.Equal(t, "m", Clamp("z", "a", "m"))
}

func TestOrDefault(t *testing.T) {
	require.Equal(t, "q.txt", OrDefault("", "q.txt"))
	require.Equal(t, 3, OrDefault(3, 9))
}
