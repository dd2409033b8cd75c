package websocket

import "fmt"

// Message is an application-level payload reassembled from one or more
// WebSocket data frames.
type Message struct {
	Type    MessageType
	Payload []byte
}

// popMessage scans the queue for a complete run: zero or more CONTINUATION
// frames preceded by a TEXT or BINARY frame and terminated by the first
// frame with Fin set. It returns (nil, nil) if no such run is present
// yet. A lone CONTINUATION frame at the head of the queue — with no
// preceding TEXT/BINARY frame — is a protocol violation and returns an
// error; the source tolerated this case, but a client has no coherent
// opcode to hand the application if it's allowed through.
func (c *Conn) popMessage() (*Message, error) {
	runLen := -1
	for i := 0; i < c.queue.len(); i++ {
		if c.queue.at(i).Fin {
			runLen = i + 1
			break
		}
	}
	if runLen == -1 {
		return nil, nil
	}

	run := c.queue.popRun(runLen)

	first := run[0].Opcode
	var msgType MessageType
	switch first {
	case OpText:
		msgType = Text
	case OpBinary:
		msgType = Binary
	default:
		return nil, newError(KindRuntime, "popMessage", fmt.Errorf("message starts with %s frame, expected text or binary", first))
	}

	size := 0
	for _, f := range run {
		size += len(f.Payload)
	}
	payload := make([]byte, 0, size)
	for _, f := range run {
		payload = append(payload, f.Payload...)
	}

	return &Message{Type: msgType, Payload: payload}, nil
}
