// ABOUTME: Tests for RCON packet framing.
// ABOUTME: Covers encoding layout, decoding, size limits, and truncated frames.

package rcon

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacket_EncodeLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Packet{ID: 7, Type: TypeExecCommand, Body: "status"}.Encode(&buf))

	raw := buf.Bytes()
	require.Len(t, raw, 4+8+len("status")+2)
	assert.Equal(t, uint32(8+6+2), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(raw[4:8]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[8:12]))
	assert.Equal(t, "status", string(raw[12:18]))
	assert.Equal(t, []byte{0, 0}, raw[18:])
}

func TestReadPacket_RoundTripsSequence(t *testing.T) {
	var buf bytes.Buffer
	packets := []Packet{
		{ID: 1, Type: TypeAuth, Body: "secret"},
		{ID: 2, Type: TypeResponseValue},
		{ID: AuthFailedID, Type: TypeAuthResponse},
	}
	for _, p := range packets {
		require.NoError(t, WritePacket(&buf, p))
	}

	for _, want := range packets {
		got, err := ReadPacket(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ReadPacket(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadPacket_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, Packet{ID: 1, Type: TypeResponseValue, Body: "hello"}))
	raw := buf.Bytes()

	_, err := ReadPacket(bytes.NewReader(raw[:len(raw)-3]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadPacket_SizeLimits(t *testing.T) {
	tests := []struct {
		name string
		size uint32
		want error
	}{
		{"too small", 9, ErrPacketTooSmall},
		{"too large", MaxPacketSize + 1, ErrPacketTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hdr [4]byte
			binary.LittleEndian.PutUint32(hdr[:], tt.size)
			_, err := ReadPacket(bytes.NewReader(hdr[:]))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadPacket_MissingTerminators(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, Packet{ID: 1, Type: TypeResponseValue, Body: "x"}))
	raw := buf.Bytes()
	raw[len(raw)-1] = 'y'

	_, err := ReadPacket(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_RejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	err := Packet{ID: 1, Type: TypeExecCommand, Body: strings.Repeat("a", MaxPacketSize)}.Encode(&buf)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
	assert.Zero(t, buf.Len())
}

func TestReadPacket_KeepsBodyNULs(t *testing.T) {
	var buf bytes.Buffer
	want := Packet{ID: 3, Type: TypeResponseValue, Body: "data\x00\x00"}
	require.NoError(t, WritePacket(&buf, want))

	got, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMaxCommandLength_FillsOneFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Packet{ID: 1, Type: TypeExecCommand, Body: strings.Repeat("a", MaxCommandLength)}.Encode(&buf))
	assert.Equal(t, 4+MaxPacketSize, buf.Len())

	buf.Reset()
	err := Packet{ID: 1, Type: TypeExecCommand, Body: strings.Repeat("a", MaxCommandLength+1)}.Encode(&buf)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}
