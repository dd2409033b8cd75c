package websocket

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestSerializeDeserializeRoundTrip exercises unmasked frames, the shape
// every valid inbound (server-to-client) frame takes. The masked path is
// covered by TestSerializeDeserializeRoundTripMasked below.
func TestSerializeDeserializeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		opcode  Opcode
		payload []byte
	}{
		{"empty text", OpText, nil},
		{"short binary", OpBinary, []byte("hello")},
		{"boundary 125", OpBinary, make([]byte, 125)},
		{"boundary 126", OpBinary, make([]byte, 126)},
		{"boundary 65535", OpBinary, make([]byte, 65535)},
		{"boundary 65536", OpBinary, make([]byte, 65536)},
		{"unmasked server reply", OpText, []byte("reply")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := &Frame{Fin: true, Opcode: tc.opcode, Mask: false, Payload: tc.payload}
			wire, err := Serialize(in)
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}

			out, status, consumed, err := Deserialize(wire)
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if status != StatusComplete {
				t.Fatalf("Deserialize() status = %v, want StatusComplete", status)
			}
			if consumed != len(wire) {
				t.Errorf("Deserialize() consumed = %d, want %d", consumed, len(wire))
			}
			if out.Opcode != tc.opcode || out.Fin != true {
				t.Errorf("Deserialize() opcode/fin = %v/%v, want %v/true", out.Opcode, out.Fin, tc.opcode)
			}
			if !cmp.Equal(out.Payload, tc.payload) && !(len(out.Payload) == 0 && len(tc.payload) == 0) {
				t.Errorf("Deserialize() payload mismatch (-got +want):\n%s", cmp.Diff(out.Payload, tc.payload))
			}
		})
	}
}

// TestSerializeDeserializeRoundTripMasked exercises the full masked codec
// path: Serialize draws a random key and XOR-masks the payload, and
// Deserialize must recover the exact original frame by unmasking with the
// same key it reads off the wire. Rejecting a masked frame at the
// connection level is a policy decision made above this codec, not
// something Deserialize itself enforces.
func TestSerializeDeserializeRoundTripMasked(t *testing.T) {
	tests := []struct {
		name    string
		opcode  Opcode
		payload []byte
	}{
		{"empty text", OpText, nil},
		{"short binary", OpBinary, []byte("hello")},
		{"boundary 125", OpBinary, make([]byte, 125)},
		{"boundary 126", OpBinary, make([]byte, 126)},
		{"boundary 65535", OpBinary, make([]byte, 65535)},
		{"boundary 65536", OpBinary, make([]byte, 65536)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := &Frame{Fin: true, Opcode: tc.opcode, Mask: true, Payload: tc.payload}
			wire, err := Serialize(in)
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}

			out, status, consumed, err := Deserialize(wire)
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if status != StatusComplete {
				t.Fatalf("Deserialize() status = %v, want StatusComplete", status)
			}
			if consumed != len(wire) {
				t.Errorf("Deserialize() consumed = %d, want %d", consumed, len(wire))
			}
			if out.Opcode != tc.opcode || out.Fin != true {
				t.Errorf("Deserialize() opcode/fin = %v/%v, want %v/true", out.Opcode, out.Fin, tc.opcode)
			}
			if !out.Mask {
				t.Error("Deserialize() Mask = false, want true")
			}
			if !cmp.Equal(out.Payload, tc.payload) && !(len(out.Payload) == 0 && len(tc.payload) == 0) {
				t.Errorf("Deserialize() payload mismatch (-got +want):\n%s", cmp.Diff(out.Payload, tc.payload))
			}
		})
	}
}

// TestSerializeMaskingRecoversPlaintext confirms that for a non-empty
// payload the masked wire bytes differ from the plaintext, and that
// unmasking with the key Deserialize reads off the wire recovers it
// bit-for-bit.
func TestSerializeMaskingRecoversPlaintext(t *testing.T) {
	payload := []byte("same payload, different wire bytes")
	f := &Frame{Fin: true, Opcode: OpText, Mask: true, Payload: payload}

	wire, err := Serialize(f)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	wirePayload := wire[len(wire)-len(payload):]
	if cmp.Equal(wirePayload, payload) {
		t.Error("Serialize() wire payload matches plaintext, want masking to change it")
	}

	out, _, _, err := Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if !cmp.Equal(out.Payload, payload) {
		t.Errorf("Deserialize() payload = %#v, want %#v", out.Payload, payload)
	}
}

func TestSerializeMaskingChangesWireBytes(t *testing.T) {
	payload := []byte("same payload, different wire bytes")
	f := &Frame{Fin: true, Opcode: OpText, Mask: true, Payload: payload}

	a, err := Serialize(f)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	b, err := Serialize(f)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if cmp.Equal(a, b) {
		t.Error("Serialize() with a fresh random mask key produced identical wire bytes twice")
	}
}

func TestDeserializeIncompleteAtEveryCutPoint(t *testing.T) {
	f := &Frame{Fin: true, Opcode: OpBinary, Mask: false, Payload: make([]byte, 70000)}
	wire, err := Serialize(f)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	for cut := 0; cut < len(wire); cut++ {
		_, status, consumed, err := Deserialize(wire[:cut])
		if err != nil {
			t.Fatalf("Deserialize(wire[:%d]) unexpected error = %v", cut, err)
		}
		if status != StatusIncomplete || consumed != 0 {
			t.Fatalf("Deserialize(wire[:%d]) = (status=%v, consumed=%d), want (Incomplete, 0)", cut, status, consumed)
		}
	}

	_, status, consumed, err := Deserialize(wire)
	if err != nil || status != StatusComplete || consumed != len(wire) {
		t.Fatalf("Deserialize(full wire) = (status=%v, consumed=%d, err=%v), want (Complete, %d, nil)", status, consumed, err, len(wire))
	}
}

func TestDeserializeRejectsReservedBits(t *testing.T) {
	_, _, _, err := Deserialize([]byte{0x70, 0x00})
	if err == nil {
		t.Error("Deserialize() with non-zero reserved bits, want error")
	}
}

func TestDeserializeRejectsUnknownOpcode(t *testing.T) {
	_, _, _, err := Deserialize([]byte{0x0f, 0x00})
	if err == nil {
		t.Error("Deserialize() with unknown opcode, want error")
	}
}

func TestDeserializeIncompleteWaitingForMaskKey(t *testing.T) {
	// fin+text, mask bit set, zero-length payload, but the 4-byte mask key
	// hasn't arrived yet.
	_, status, consumed, err := Deserialize([]byte{0x81, 0x80})
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if status != StatusIncomplete || consumed != 0 {
		t.Errorf("Deserialize() = (status=%v, consumed=%d), want (Incomplete, 0)", status, consumed)
	}
}

func TestDeserializeUnmasksKnownVector(t *testing.T) {
	// fin+text, mask bit set, length 5, key 0x01020304, payload "hello"
	// masked with that key.
	key := []byte{0x01, 0x02, 0x03, 0x04}
	plain := []byte("hello")
	wire := append([]byte{0x81, 0x85}, key...)
	for i, c := range plain {
		wire = append(wire, c^key[i%4])
	}

	f, status, consumed, err := Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if status != StatusComplete || consumed != len(wire) {
		t.Fatalf("Deserialize() = (status=%v, consumed=%d), want (Complete, %d)", status, consumed, len(wire))
	}
	if !f.Mask {
		t.Error("Deserialize() Mask = false, want true")
	}
	if !cmp.Equal(f.Payload, plain) {
		t.Errorf("Deserialize() payload = %#v, want %#v", f.Payload, plain)
	}
}

func TestDeserializeRejectsOversizedControlFrame(t *testing.T) {
	// Ping frame (0x89) claiming a 126-sentinel length, which exceeds the
	// 125-byte control-frame payload limit.
	_, _, _, err := Deserialize([]byte{0x89, 0x7e, 0x00, 0x7e})
	if err == nil {
		t.Error("Deserialize() with oversized control frame, want error")
	}
}

func TestAcceptKeyTestVector(t *testing.T) {
	// The test vector from RFC 6455 section 1.3.
	got := acceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("acceptKey() = %q, want %q", got, want)
	}
}
