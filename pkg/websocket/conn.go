package websocket

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
)

// connState tracks the lifecycle of a Conn, mirroring the source's
// CNX_CLOSED/CONNECTED/CLOSING/SERVER flag set.
type connState int

const (
	stateClosed connState = iota
	stateConnected
	stateClosing
	stateServer // internal only, never set by this package: outbound frames go unmasked and masked inbound frames are accepted.
)

const defaultReadChunk = 4096

// Conn is a client-side WebSocket connection: the handshake, framing,
// masking, fragmentation/reassembly, and control-frame handling described by
// this package, driven synchronously by whatever goroutine calls its
// methods. A Conn is not safe for concurrent use.
type Conn struct {
	socket Socket
	buf    buffer
	queue  frameQueue
	url    *wsURL
	state  connState
	key    string

	// id is a short correlation identifier attached to every log line, to
	// tell concurrent connections apart in aggregated logs. It carries no
	// protocol meaning.
	id     string
	logger zerolog.Logger

	// OnDisconnect and OnFrame are borrowed hooks invoked synchronously;
	// the connection does not take ownership of them or extend their
	// lifetime beyond its own.
	OnDisconnect func(*Conn)
	OnFrame      func(*Conn, *Frame)
}

// Option configures a Conn constructed by Dial.
type Option func(*Conn)

// WithLogger attaches l to the connection; every subsequent log line from
// this Conn carries the connection's correlation ID.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithSocket overrides the transport, primarily for tests that want to
// drive the engine over a net.Pipe or a fake Socket instead of a real dial.
func WithSocket(s Socket) Option {
	return func(c *Conn) { c.socket = s }
}

func newConn(opts ...Option) *Conn {
	c := &Conn{
		id:     shortuuid.New(),
		logger: zerolog.Nop(),
		state:  stateClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("conn_id", c.id).Logger()
	if c.socket == nil {
		c.socket = newTCPSocket()
	}
	return c
}

// Dial parses rawURL ("ws://host[:port]/path" or "wss://..."), connects the
// transport, and performs the RFC 6455 opening handshake.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Conn, error) {
	c := newConn(opts...)

	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	c.url = u

	c.logger.Debug().Str("host", u.Host).Int("port", u.Port).Bool("tls", u.Scheme == "wss").Msg("connecting")
	if err := c.socket.Connect(ctx, u.Host, u.Port, u.Scheme == "wss"); err != nil {
		c.logger.Err(err).Msg("failed to connect")
		return nil, err
	}

	if err := c.handshake(); err != nil {
		c.logger.Err(err).Msg("handshake failed")
		_ = c.socket.Close()
		c.buf.reset()
		return nil, err
	}

	c.state = stateConnected
	c.logger.Info().Msg("connected")
	return c, nil
}

// Reconnect re-dials the Conn's previously parsed URL if it is not already
// connected. It performs a single attempt; retry/backoff policy is left to
// the caller, since automatic reconnection policy is out of scope here.
func (c *Conn) Reconnect(ctx context.Context) error {
	if c.state == stateConnected {
		return nil
	}
	if c.url == nil {
		return newError(KindRuntime, "Reconnect", fmt.Errorf("connection was never dialed"))
	}

	c.logger.Debug().Msg("reconnecting")
	if err := c.socket.Connect(ctx, c.url.Host, c.url.Port, c.url.Scheme == "wss"); err != nil {
		return err
	}
	if err := c.handshake(); err != nil {
		_ = c.socket.Close()
		c.buf.reset()
		return err
	}
	c.state = stateConnected
	return nil
}

// SetTimeout sets the read/write deadline used for every subsequent socket
// operation on this connection.
func (c *Conn) SetTimeout(d time.Duration) error {
	return c.socket.SetTimeout(d)
}

// generateKey draws 16 random bytes and Base64-encodes them, producing the
// per-connection Sec-WebSocket-Key.
func generateKey() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", newError(KindRuntime, "generateKey", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// RecvFrame reads and returns a single complete frame, applying control-
// frame handling (PING/PONG/CLOSE) transparently and only returning data
// frames (TEXT/BINARY/CONTINUATION) to the caller.
func (c *Conn) RecvFrame() (*Frame, error) {
	for {
		f, err := c.waitForFrame()
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		return f, nil
	}
}

// RecvMessage wraps the reassembler in a read loop: it blocks, reading from
// the socket at most one buffer's worth at a time and re-running the
// ingress parser, until a complete message is available or the connection
// fails.
func (c *Conn) RecvMessage() (*Message, error) {
	for {
		if msg, err := c.popMessage(); err != nil {
			return nil, err
		} else if msg != nil {
			return msg, nil
		}

		if err := c.readAndParse(); err != nil {
			return nil, err
		}
	}
}

// waitForFrame drains the queue's next complete data frame, reading and
// parsing more socket data as needed.
func (c *Conn) waitForFrame() (*Frame, error) {
	for c.queue.len() == 0 {
		if err := c.readAndParse(); err != nil {
			return nil, err
		}
	}
	run := c.queue.popRun(1)
	return run[0], nil
}

// readAndParse reads at most one buffer's worth of data from the socket,
// appends it to the connection's receive buffer, and runs the ingress
// parser over whatever complete frames that yields.
func (c *Conn) readAndParse() error {
	if c.state == stateClosed {
		return newError(KindRuntime, "readAndParse", fmt.Errorf("connection is closed"))
	}
	if c.state == stateClosing {
		return newError(KindRuntime, "readAndParse", fmt.Errorf("connection is closing"))
	}

	chunk := make([]byte, defaultReadChunk)
	n, err := c.socket.Read(chunk)
	if n > 0 {
		c.buf.append(chunk[:n])
	}
	if err != nil {
		return err
	}

	return c.ingress()
}

// ingress drains the connection's receive buffer repeatedly, dispatching
// each complete frame it finds and draining the consumed bytes from the
// buffer's head. It stops as soon as the buffer no longer holds a complete
// frame.
func (c *Conn) ingress() error {
	for {
		f, status, consumed, err := Deserialize(c.buf.bytes())
		if err != nil {
			c.logger.Warn().Err(err).Msg("protocol violation while parsing inbound frame")
			c.state = stateClosing
			_ = c.sendControl(OpClose, closePayload(CloseProtocolError, ""))
			return err
		}
		if status == StatusIncomplete {
			return nil
		}

		c.buf.drain(consumed)

		// A client never receives masked frames: RFC 6455 section 5.1
		// requires a client to fail the connection if it detects one. This
		// is a connection-level policy, not a codec concern, so it's
		// enforced here rather than in Deserialize.
		if f.Mask && c.state != stateServer {
			c.logger.Warn().Msg("protocol violation: inbound frame unexpectedly masked")
			c.state = stateClosing
			err := newError(KindRuntime, "ingress", fmt.Errorf("inbound frame unexpectedly masked"))
			_ = c.sendControl(OpClose, closePayload(CloseProtocolError, ""))
			return err
		}

		c.logger.Trace().Str("opcode", f.Opcode.String()).Int("len", len(f.Payload)).Bool("fin", f.Fin).Msg("received frame")

		if c.OnFrame != nil {
			c.OnFrame(c, f)
		}

		if err := c.dispatch(f); err != nil {
			return err
		}
	}
}
