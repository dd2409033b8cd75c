package websocket

import "fmt"

// sendFrame serializes and writes f to the socket. The frame is only
// borrowed by this call — Serialize copies whatever it needs into the wire
// buffer, so the caller may reuse or discard f immediately after this
// returns, unlike the source's consume-on-send serializer.
func (c *Conn) sendFrame(f *Frame) error {
	wire, err := Serialize(f)
	if err != nil {
		return err
	}
	if _, err := c.socket.Write(wire); err != nil {
		return err
	}
	return nil
}

func (c *Conn) send(opcode Opcode, payload []byte) error {
	if c.state == stateClosed {
		return newError(KindRuntime, "send", fmt.Errorf("connection is closed"))
	}
	return c.sendFrame(&Frame{
		Fin:     true,
		Opcode:  opcode,
		Mask:    c.state != stateServer,
		Payload: payload,
	})
}

// sendControl sends a control frame (CLOSE/PING/PONG), bypassing the
// stateClosed guard so a close/pong reply can still go out while the
// connection is transitioning to CLOSING.
func (c *Conn) sendControl(opcode Opcode, payload []byte) error {
	return c.sendFrame(&Frame{
		Fin:     true,
		Opcode:  opcode,
		Mask:    c.state != stateServer,
		Payload: payload,
	})
}

// SendText sends a complete UTF-8 text message.
func (c *Conn) SendText(msg []byte) error {
	return c.send(OpText, msg)
}

// SendBinary sends a complete binary message.
func (c *Conn) SendBinary(msg []byte) error {
	return c.send(OpBinary, msg)
}

// Ping sends a PING control frame. appData must be 125 bytes or fewer.
func (c *Conn) Ping(appData []byte) error {
	if len(appData) > maxControlPayload {
		return newError(KindRuntime, "Ping", fmt.Errorf("control frame payload exceeds %d bytes", maxControlPayload))
	}
	return c.send(OpPing, appData)
}

// Pong sends an unsolicited PONG control frame. appData must be 125 bytes
// or fewer. Replies to a received PING are sent automatically by the
// ingress dispatcher; applications only need this for unsolicited heartbeats.
func (c *Conn) Pong(appData []byte) error {
	if len(appData) > maxControlPayload {
		return newError(KindRuntime, "Pong", fmt.Errorf("control frame payload exceeds %d bytes", maxControlPayload))
	}
	return c.send(OpPong, appData)
}

// Close sends a CLOSE control frame with the given status code and reason,
// then closes the underlying transport. The caller may still read any
// frames already buffered, but RecvMessage/RecvFrame will fail once the
// transport is gone. Close is idempotent.
func (c *Conn) Close(code CloseCode, reason string) error {
	if c.state == stateClosed {
		return nil
	}

	c.logger.Debug().Uint16("code", uint16(code)).Msg("closing connection")
	if err := c.send(OpClose, closePayload(code, reason)); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send close frame")
	}

	c.state = stateClosed
	if err := c.socket.Close(); err != nil {
		return err
	}
	if c.OnDisconnect != nil {
		c.OnDisconnect(c)
	}
	return nil
}

// Disconnect performs the graceful-close sequence: if connected, it invokes
// the disconnect hook, sends a CLOSE frame with status 1000 (Normal), and
// closes the underlying socket. Idempotent; a write that fails mid-close is
// not retried.
func (c *Conn) Disconnect() error {
	if c.state == stateClosed {
		return nil
	}

	c.logger.Debug().Msg("disconnecting")
	if c.OnDisconnect != nil {
		c.OnDisconnect(c)
	}
	if err := c.send(OpClose, closePayload(CloseNormal, "")); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send close frame")
	}

	c.state = stateClosed
	return c.socket.Close()
}
