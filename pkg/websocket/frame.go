package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	maxControlPayload = 125
	len16BitSentinel   = 126
	len64BitSentinel   = 127
)

// Frame is a single WebSocket frame, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Mask    bool
	Payload []byte

	// PayloadOffset is set by Deserialize to the byte offset within the
	// source slice where the (already unmasked) payload began; it exists
	// purely for diagnostics and is not otherwise meaningful.
	PayloadOffset int
}

// ParseStatus is the outcome of attempting to deserialize a frame from a
// byte slice that may contain less than one complete frame.
type ParseStatus int

const (
	StatusIncomplete ParseStatus = iota
	StatusComplete
)

// Serialize encodes f into its wire representation. If f.Mask is set, a
// fresh 4-byte key is drawn from crypto/rand and the payload is XOR-masked;
// the function is total — its only failure mode is RNG exhaustion, reported
// as a KindRuntime error.
func Serialize(f *Frame) ([]byte, error) {
	out := make([]byte, 0, 14+len(f.Payload))

	var b0 byte
	if f.Fin {
		b0 |= 0x80
	}
	b0 |= byte(f.Opcode) & 0x0f
	out = append(out, b0)

	n := len(f.Payload)
	var b1 byte
	if f.Mask {
		b1 |= 0x80
	}
	switch {
	case n < len16BitSentinel:
		b1 |= byte(n)
		out = append(out, b1)
	case n <= 0xffff:
		b1 |= len16BitSentinel
		out = append(out, b1)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		out = append(out, ext[:]...)
	default:
		b1 |= len64BitSentinel
		out = append(out, b1)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		out = append(out, ext[:]...)
	}

	payload := f.Payload
	if f.Mask {
		key := make([]byte, 4)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, newError(KindRuntime, "Serialize", err)
		}
		out = append(out, key...)
		masked := make([]byte, n)
		for i, v := range payload {
			masked[i] = v ^ key[i%4]
		}
		payload = masked
	}
	out = append(out, payload...)

	return out, nil
}

// Deserialize attempts to parse one frame from the front of data. It
// returns StatusIncomplete with consumed=0 if data does not yet hold a
// complete frame — the caller re-waits on the unchanged buffer and retries
// once more bytes have arrived. Every length check happens strictly before
// the slice it guards, so truncated or adversarial input can never cause an
// over-read.
func Deserialize(data []byte) (f *Frame, status ParseStatus, consumed int, err error) {
	if len(data) < 2 {
		return nil, StatusIncomplete, 0, nil
	}

	b0, b1 := data[0], data[1]

	if b0&0x70 != 0 {
		return nil, StatusIncomplete, 0, newError(KindRuntime, "Deserialize", fmt.Errorf("non-zero reserved bits"))
	}

	opcode := Opcode(b0 & 0x0f)
	if !opcode.isKnown() {
		return nil, StatusIncomplete, 0, newError(KindRuntime, "Deserialize", fmt.Errorf("unknown opcode %d", opcode))
	}

	fin := b0&0x80 != 0
	masked := b1&0x80 != 0
	lenField := b1 & 0x7f

	if opcode.isControl() && (!fin || lenField > maxControlPayload) {
		return nil, StatusIncomplete, 0, newError(KindRuntime, "Deserialize", fmt.Errorf("invalid control frame"))
	}

	offset := 2
	var payloadLen uint64
	switch lenField {
	case len16BitSentinel:
		if len(data) < offset+2 {
			return nil, StatusIncomplete, 0, nil
		}
		payloadLen = uint64(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
	case len64BitSentinel:
		if len(data) < offset+8 {
			return nil, StatusIncomplete, 0, nil
		}
		payloadLen = binary.BigEndian.Uint64(data[offset : offset+8])
		offset += 8
	default:
		payloadLen = uint64(lenField)
	}

	var key []byte
	if masked {
		if len(data) < offset+4 {
			return nil, StatusIncomplete, 0, nil
		}
		key = data[offset : offset+4]
		offset += 4
	}

	if payloadLen > uint64(len(data)-offset) {
		return nil, StatusIncomplete, 0, nil
	}
	payloadEnd := offset + int(payloadLen)

	payload := make([]byte, payloadLen)
	if masked {
		for i := range payload {
			payload[i] = data[offset+i] ^ key[i%4]
		}
	} else {
		copy(payload, data[offset:payloadEnd])
	}

	f = &Frame{
		Fin:           fin,
		Opcode:        opcode,
		Mask:          masked,
		Payload:       payload,
		PayloadOffset: offset,
	}
	return f, StatusComplete, payloadEnd, nil
}
