package transport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame([]byte("mhello"))
	require.NoError(t, err)
	assert.Equal(t, "00000006mhello", string(frame))

	empty, err := EncodeFrame(nil)
	require.NoError(t, err)
	assert.Equal(t, "00000000", string(empty))

	_, err = EncodeFrame(make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestStream_ByteAtATime(t *testing.T) {
	payload := []byte("c1\n5\nalice\n0\n1\n1\n0\n0\n")
	frame, err := EncodeFrame(payload)
	require.NoError(t, err)

	var s Stream
	for i, b := range frame {
		s.Push([]byte{b})
		got, ok, err := s.Next()
		require.NoError(t, err)
		if i < len(frame)-1 {
			assert.False(t, ok, "packet reported after %d of %d bytes", i+1, len(frame))
			continue
		}
		require.True(t, ok)
		assert.Equal(t, payload, got)
	}

	_, ok, err := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Buffered())
}

func TestStream_SeveralFramesInOneChunk(t *testing.T) {
	var all []byte
	payloads := []string{"i", "", "m" + strings.Repeat("x", 300), "s"}
	for _, p := range payloads {
		f, err := EncodeFrame([]byte(p))
		require.NoError(t, err)
		all = append(all, f...)
	}

	var s Stream
	// Split inside the third header.
	s.Push(all[:20])
	var got []string
	for {
		p, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(p))
	}
	assert.Equal(t, payloads[:2], got)

	s.Push(all[20:])
	for {
		p, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(p))
	}
	assert.Equal(t, payloads, got)
}

func TestStream_BadHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
	}{
		{"uppercase", "0000000A", ErrBadFrame},
		{"not hex", "0000zz01", ErrBadFrame},
		{"sign", "+0000001", ErrBadFrame},
		{"too large", "7fffffff", ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Stream
			s.Push([]byte(tt.header))
			_, ok, err := s.Next()
			assert.False(t, ok)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
