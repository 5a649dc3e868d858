package ldap

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"

	"github.com/marmos91/concess/internal/logger"
	"github.com/marmos91/concess/internal/protocol/ldap"
	"github.com/marmos91/concess/pkg/identity"
)

// Connection is one LDAP session.
//
// Session state is Unbound until a successful simple bind makes it Bound.
// A failed or anonymous bind returns it to Unbound. Requests are processed
// one at a time in arrival order.
type Connection struct {
	server *Adapter
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	lc     *logger.LogContext

	bound  bool
	bindDN identity.DN
}

func newConnection(server *Adapter, conn net.Conn) *Connection {
	lc := logger.NewLogContext("ldap", conn.RemoteAddr().String())
	lc.ConnID = uuid.NewString()
	return &Connection{
		server: server,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		lc:     lc,
	}
}

// Serve processes requests until the client unbinds or disconnects, a
// malformed message arrives, or the server shuts down.
func (c *Connection) Serve(ctx context.Context) {
	defer c.handleConnectionClose()

	ctx = logger.WithContext(ctx, c.lc)
	logger.DebugCtx(ctx, "New LDAP connection")

	for {
		select {
		case <-ctx.Done():
			logger.DebugCtx(ctx, "LDAP connection closed due to context cancellation")
			return
		case <-c.server.Shutdown:
			logger.DebugCtx(ctx, "LDAP connection closed due to server shutdown")
			return
		default:
		}

		frame, err := c.readFrame()
		if err != nil {
			c.logReadError(ctx, err)
			return
		}

		msg, err := ldap.DecodeMessage(frame)
		if err != nil {
			c.handleDecodeError(ctx, msg, err)
			return
		}

		if !c.dispatch(ctx, msg) {
			return
		}
	}
}

// readFrame waits up to the idle timeout for a request to start, then up to
// the read timeout for the rest of it.
func (c *Connection) readFrame() ([]byte, error) {
	timeouts := c.server.config.Timeouts

	if err := c.setReadDeadline(timeouts.Idle); err != nil {
		return nil, err
	}
	if _, err := c.reader.Peek(1); err != nil {
		return nil, err
	}
	if err := c.setReadDeadline(timeouts.Read); err != nil {
		return nil, err
	}
	return ldap.ReadFrame(c.reader, c.server.config.MaxMessageSize)
}

func (c *Connection) setReadDeadline(d time.Duration) error {
	if d <= 0 {
		return c.conn.SetReadDeadline(time.Time{})
	}
	return c.conn.SetReadDeadline(time.Now().Add(d))
}

func (c *Connection) logReadError(ctx context.Context, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.DebugCtx(ctx, "LDAP connection closed by client")
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.DebugCtx(ctx, "LDAP connection timed out", logger.Err(err))
	case errors.Is(err, ldap.ErrFraming):
		c.recordProtocolError("framing")
		logger.WarnCtx(ctx, "Malformed LDAP frame, closing connection", logger.Err(err))
	default:
		logger.DebugCtx(ctx, "Error reading LDAP request", logger.Err(err))
	}
}

// handleDecodeError closes the session on a message that cannot be served.
// Only a malformed operation inside a well-formed envelope gets a Notice of
// Disconnection; broken envelopes are dropped without a response.
func (c *Connection) handleDecodeError(ctx context.Context, msg *ldap.Message, err error) {
	if !errors.Is(err, ldap.ErrProtocol) {
		c.recordProtocolError("framing")
		logger.WarnCtx(ctx, "Malformed LDAP message, closing connection", logger.Err(err))
		return
	}

	c.recordProtocolError("protocol")
	logger.WarnCtx(ctx, "Malformed LDAP operation, closing connection",
		logger.MessageID(msg.ID), logger.Err(err))
	c.disconnect(ctx, goldap.LDAPResultProtocolError, "malformed request")
}

// disconnect sends a Notice of Disconnection. The caller closes the
// connection.
func (c *Connection) disconnect(ctx context.Context, code uint16, message string) {
	if err := c.send(ldap.EncodeNoticeOfDisconnection(code, message)); err != nil {
		logger.DebugCtx(ctx, "Failed to send notice of disconnection", logger.Err(err))
	}
}

// send writes responses and flushes them within the write timeout.
func (c *Connection) send(responses ...[]byte) error {
	if d := c.server.config.Timeouts.Write; d > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
			return err
		}
	}
	for _, r := range responses {
		if _, err := c.writer.Write(r); err != nil {
			return err
		}
	}
	return c.writer.Flush()
}

func (c *Connection) recordProtocolError(kind string) {
	if c.server.metrics != nil {
		c.server.metrics.RecordProtocolError(kind)
	}
}

// handleConnectionClose recovers from handler panics and closes the socket.
func (c *Connection) handleConnectionClose() {
	if r := recover(); r != nil {
		logger.Error("Panic in LDAP connection handler",
			logger.KeyClient, c.lc.Client,
			logger.KeyConnID, c.lc.ConnID,
			"panic", r,
			"stack", string(debug.Stack()))
	}
	_ = c.conn.Close()
}
