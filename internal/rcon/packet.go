// ABOUTME: Source RCON packet framing: little-endian size/id/type header plus NUL-terminated body.
// ABOUTME: Provides ReadPacket/WritePacket used by Conn and the rcontest fake server.

package rcon

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet types. EXECCOMMAND and AUTH_RESPONSE share the value 2; the direction
// of the packet decides which one is meant.
const (
	TypeResponseValue int32 = 0
	TypeExecCommand   int32 = 2
	TypeAuthResponse  int32 = 2
	TypeAuth          int32 = 3
)

const (
	// headerSize is the id and type fields counted by the size prefix.
	headerSize = 8
	// minPacketSize is an empty body: id + type + two NUL terminators.
	minPacketSize = headerSize + 2
	// MaxPacketSize bounds the size prefix of a single frame. Servers cap
	// bodies at 4096 bytes but some games exceed it, so leave headroom.
	MaxPacketSize = 64 * 1024
)

// MaxCommandLength is the longest command body that fits in one frame.
const MaxCommandLength = MaxPacketSize - minPacketSize

// AuthFailedID is the request id a server echoes when the password is wrong.
const AuthFailedID int32 = -1

// Packet errors
var (
	ErrPacketTooLarge = errors.New("rcon packet too large")
	ErrPacketTooSmall = errors.New("rcon packet too small")
	ErrMalformed      = errors.New("malformed rcon packet")
)

// Packet is one RCON frame.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// Encode appends the wire form of p to buf.
func (p Packet) Encode(buf *bytes.Buffer) error {
	size := headerSize + len(p.Body) + 2
	if size > MaxPacketSize {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}

	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(size))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(p.ID))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(p.Type))
	buf.Write(hdr[:])
	buf.WriteString(p.Body)
	buf.Write([]byte{0, 0})
	return nil
}

// WritePacket writes a single packet to w in one Write call.
func WritePacket(w io.Writer, p Packet) error {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadPacket reads exactly one packet from r. A clean EOF before the first
// byte of the frame is returned as io.EOF; a frame cut short is
// io.ErrUnexpectedEOF.
func ReadPacket(r io.Reader) (Packet, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return Packet{}, err
	}

	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size < minPacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrPacketTooSmall, size)
	}
	if size > MaxPacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			return Packet{}, io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}

	// Body must be followed by the two terminating NULs.
	if frame[size-1] != 0 || frame[size-2] != 0 {
		return Packet{}, ErrMalformed
	}

	return Packet{
		ID:   int32(binary.LittleEndian.Uint32(frame[0:4])),
		Type: int32(binary.LittleEndian.Uint32(frame[4:8])),
		Body: string(frame[headerSize : size-2]),
	}, nil
}

// newReader wraps a connection so consecutive small frames are read without
// a syscall each.
func newReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 4096)
}
