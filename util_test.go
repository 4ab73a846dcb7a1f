package stockpile_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/stockpile"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, stockpile.CheckPow2(1, "size"))
	require.NoError(t, stockpile.CheckPow2(4096, "size"))

	err := stockpile.CheckPow2(4097, "size")
	require.ErrorIs(t, err, stockpile.PowerOfTwoError)
}

func TestAlign(t *testing.T) {
	require.Equal(t, 0, stockpile.AlignUp(0, 8))
	require.Equal(t, 8, stockpile.AlignUp(1, 8))
	require.Equal(t, 8, stockpile.AlignUp(8, 8))
	require.Equal(t, 16, stockpile.AlignUp(9, 8))

	require.Equal(t, 0, stockpile.AlignDown(7, 8))
	require.Equal(t, 8, stockpile.AlignDown(15, 8))

	require.Equal(t, uintptr(0x4000), stockpile.AlignDownAddr(0x4fff, 0x1000))
	require.Equal(t, uintptr(0x4000), stockpile.AlignDownAddr(0x4000, 0x1000))
}
