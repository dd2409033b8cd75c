package websocket

import "encoding/binary"

// dispatch routes a single inbound frame: control frames are answered (or
// acted on) immediately; data frames are enqueued for the reassembler.
func (c *Conn) dispatch(f *Frame) error {
	switch f.Opcode {
	case OpClose:
		return c.handleClose(f)
	case OpPing:
		c.logger.Debug().Msg("received ping, replying with pong")
		if err := c.sendControl(OpPong, f.Payload); err != nil {
			c.logger.Warn().Err(err).Msg("failed to send pong")
		}
		return nil
	case OpPong:
		c.logger.Trace().Msg("received pong")
		return nil
	default:
		c.queue.push(f)
		return nil
	}
}

// handleClose answers a peer-initiated close handshake: if the connection
// wasn't already closing, reply with a fresh status-1000 CLOSE frame and
// mark the connection CLOSING so RecvMessage/RecvFrame callers see a clean
// failure on their next call instead of blocking forever.
func (c *Conn) handleClose(f *Frame) error {
	code := CloseNoStatus
	reason := ""
	if len(f.Payload) >= 2 {
		code = CloseCode(binary.BigEndian.Uint16(f.Payload[:2]))
		reason = string(f.Payload[2:])
	}

	alreadyClosing := c.state == stateClosing
	c.state = stateClosing
	c.logger.Info().Uint16("code", uint16(code)).Str("reason", reason).Msg("received close frame")

	if !alreadyClosing {
		if err := c.sendControl(OpClose, closePayload(CloseNormal, "")); err != nil {
			c.logger.Warn().Err(err).Msg("failed to send close reply")
		}
	}

	return newError(KindRuntime, "handleClose", &closeError{Code: code, Reason: reason})
}

// closeError is the sentinel wrapped by the *Error returned when the peer
// closes the connection, so callers can recover the close code/reason with
// errors.As.
type closeError struct {
	Code   CloseCode
	Reason string
}

func (e *closeError) Error() string {
	return "peer closed connection: " + e.Code.String()
}

func closePayload(code CloseCode, reason string) []byte {
	b := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(b, uint16(code))
	copy(b[2:], reason)
	return b
}
