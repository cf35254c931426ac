// Package codec implements the newline-terminated text encoding used for every
// structure put on the wire: integers and booleans as decimal text, floats in
// shortest round-trip form, strings as a length line followed by raw bytes.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed is returned for any payload that does not decode.
var ErrMalformed = errors.New("malformed payload")

// Serializer appends encoded values to an internal buffer.
type Serializer struct {
	buf bytes.Buffer
}

// NewSerializer returns an empty serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

func (s *Serializer) line(b []byte) {
	s.buf.Write(b)
	s.buf.WriteByte('\n')
}

func (s *Serializer) WriteInt(v int64) *Serializer {
	s.line(strconv.AppendInt(nil, v, 10))
	return s
}

func (s *Serializer) WriteUint(v uint64) *Serializer {
	s.line(strconv.AppendUint(nil, v, 10))
	return s
}

func (s *Serializer) WriteBool(v bool) *Serializer {
	if v {
		s.line([]byte{'1'})
	} else {
		s.line([]byte{'0'})
	}
	return s
}

// WriteFloat uses the shortest representation that parses back to the same bits.
func (s *Serializer) WriteFloat(v float64) *Serializer {
	s.line(strconv.AppendFloat(nil, v, 'g', -1, 64))
	return s
}

func (s *Serializer) WriteString(v string) *Serializer {
	s.WriteUint(uint64(len(v)))
	s.buf.WriteString(v)
	s.buf.WriteByte('\n')
	return s
}

func (s *Serializer) WriteVector(x, y float64) *Serializer {
	return s.WriteFloat(x).WriteFloat(y)
}

// Bytes returns the encoded data. The slice aliases the serializer's buffer.
func (s *Serializer) Bytes() []byte {
	return s.buf.Bytes()
}

// Deserializer reads values in the order they were written.
type Deserializer struct {
	data []byte
	pos  int
}

// NewDeserializer reads from data without copying it.
func NewDeserializer(data []byte) *Deserializer {
	return &Deserializer{data: data}
}

// Remaining is the number of unread bytes.
func (d *Deserializer) Remaining() int {
	return len(d.data) - d.pos
}

func (d *Deserializer) readLine() (string, error) {
	i := bytes.IndexByte(d.data[d.pos:], '\n')
	if i < 0 {
		return "", fmt.Errorf("%w: unterminated value at offset %d", ErrMalformed, d.pos)
	}
	line := string(d.data[d.pos : d.pos+i])
	d.pos += i + 1
	return line, nil
}

func (d *Deserializer) ReadInt() (int64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad integer %q", ErrMalformed, line)
	}
	return v, nil
}

func (d *Deserializer) ReadUint() (uint64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad unsigned integer %q", ErrMalformed, line)
	}
	return v, nil
}

func (d *Deserializer) ReadBool() (bool, error) {
	line, err := d.readLine()
	if err != nil {
		return false, err
	}
	switch line {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: bad boolean %q", ErrMalformed, line)
}

func (d *Deserializer) ReadFloat() (float64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad float %q", ErrMalformed, line)
	}
	return v, nil
}

func (d *Deserializer) ReadString() (string, error) {
	n, err := d.ReadUint()
	if err != nil {
		return "", err
	}
	if n >= uint64(d.Remaining()) {
		return "", fmt.Errorf("%w: string of length %d exceeds payload", ErrMalformed, n)
	}
	end := d.pos + int(n)
	if d.data[end] != '\n' {
		return "", fmt.Errorf("%w: unterminated string at offset %d", ErrMalformed, d.pos)
	}
	s := string(d.data[d.pos:end])
	d.pos = end + 1
	return s, nil
}

func (d *Deserializer) ReadVector() (x, y float64, err error) {
	if x, err = d.ReadFloat(); err != nil {
		return 0, 0, err
	}
	if y, err = d.ReadFloat(); err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
