package serial

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendFrameEscapes(t *testing.T) {
	got := AppendFrame(nil, []byte{1, frameEnd, 2, frameEsc, 3})
	want := []byte{frameEnd, 1, frameEsc, frameEscEnd, 2, frameEsc, frameEscEsc, 3, frameEnd}
	assert.Equal(t, want, got)
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("/muse/0/eeg\x00"),
		{frameEnd, frameEnd, frameEsc},
		{0, 1, 2, 3, frameEscEnd, frameEscEsc},
	}
	var stream []byte
	for _, p := range payloads {
		stream = AppendFrame(stream, p)
	}
	r := NewFrameReader(bytes.NewReader(stream), 0)
	for _, want := range payloads {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderSkipsNoise(t *testing.T) {
	// Joining mid-frame, then single END delimited frames as SLIP senders
	// without the OSC 1.1 leading END produce.
	stream := []byte{'x', 'y', frameEnd, frameEnd, 'a', frameEnd, 'b', frameEnd, 'c'}
	r := NewFrameReader(bytes.NewReader(stream), 0)

	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("xy"), got, "there is no way to tell a partial frame")
	got, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
	got, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF, "unterminated frames are dropped")
}

func TestFrameReaderLimit(t *testing.T) {
	var stream []byte
	stream = AppendFrame(stream, bytes.Repeat([]byte{7}, 9))
	stream = AppendFrame(stream, []byte{1, 2, 3})
	r := NewFrameReader(bytes.NewReader(stream), 8)

	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}
