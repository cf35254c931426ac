package transport

import (
	"fmt"
	"strconv"
)

const (
	headerLen = 8

	// MaxFrameSize bounds a single packet in either direction.
	MaxFrameSize = 16 << 20
)

// EncodeFrame prefixes payload with its hex length.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frame := make([]byte, 0, headerLen+len(payload))
	frame = fmt.Appendf(frame, "%08x", len(payload))
	return append(frame, payload...), nil
}

// Stream reassembles frames from arbitrarily split chunks of bytes.
// The zero value is ready to use.
type Stream struct {
	buf    []byte
	need   int // payload length, valid once header is set
	header bool
}

// Push appends received bytes.
func (s *Stream) Push(chunk []byte) {
	s.buf = append(s.buf, chunk...)
}

// Buffered returns the number of bytes held that are not yet a complete packet.
func (s *Stream) Buffered() int {
	return len(s.buf)
}

// Next returns the next complete payload. ok is false while the frame is
// still incomplete; partial progress is kept for the next call.
func (s *Stream) Next() (payload []byte, ok bool, err error) {
	if !s.header {
		if len(s.buf) < headerLen {
			return nil, false, nil
		}
		n, err := parseHeader(s.buf[:headerLen])
		if err != nil {
			return nil, false, err
		}
		s.need = n
		s.header = true
		s.buf = s.buf[headerLen:]
	}

	if len(s.buf) < s.need {
		return nil, false, nil
	}

	payload = make([]byte, s.need)
	copy(payload, s.buf)
	s.buf = s.buf[s.need:]
	s.header = false
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return payload, true, nil
}

func parseHeader(h []byte) (int, error) {
	for _, c := range h {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return 0, fmt.Errorf("%w: %q", ErrBadFrame, h)
		}
	}
	n, err := strconv.ParseUint(string(h), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadFrame, h)
	}
	if n > MaxFrameSize {
		return 0, fmt.Errorf("%w: header announces %d bytes", ErrFrameTooLarge, n)
	}
	return int(n), nil
}
