package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneIsIndependent(t *testing.T) {
	f := &Frame{Width: 640, Height: 480, PTS: 100}
	cp := f.Clone()
	cp.PTS = 200

	require.Equal(t, int64(100), f.PTS)
	require.Equal(t, int64(200), cp.PTS)
	require.NotSame(t, f, cp)
}

func TestCloneNil(t *testing.T) {
	var f *Frame
	require.Nil(t, f.Clone())
}

func TestPoolPutZeroesFields(t *testing.T) {
	f := Pool.Get()
	f.Width, f.Height, f.EOS = 100, 200, true
	Pool.Put(f)
	require.Equal(t, &Frame{}, f)
}

func TestInterlaceModeString(t *testing.T) {
	require.Equal(t, "progressive", InterlaceNone.String())
	require.Equal(t, "top-field-first", InterlaceTopFieldFirst.String())
	require.Contains(t, InterlaceMode(99).String(), "unknown")
}
