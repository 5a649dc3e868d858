// Package radius serves the directory over RADIUS (RFC 2865).
//
// A single reader goroutine receives datagrams into pooled buffers and hands
// them to a fixed pool of workers through a bounded queue. Every datagram is
// an independent unit of work: Access-Request and Status-Server are answered,
// everything else is dropped. Integrity failures are always dropped without
// a response.
package radius

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"layeh.com/radius"

	"github.com/marmos91/concess/internal/logger"
	"github.com/marmos91/concess/pkg/adapter"
	"github.com/marmos91/concess/pkg/bufpool"
	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/identity"
	"github.com/marmos91/concess/pkg/metrics"
)

// Authenticator is the part of the RADIUS view the server uses.
// *identity.RADIUSView implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, presented credential.Presented) (*identity.Reply, error)
}

// datagram is a received packet waiting for a worker.
type datagram struct {
	data     []byte
	addr     net.Addr
	received time.Time
}

// Adapter is the RADIUS server.
type Adapter struct {
	config  Config
	auth    Authenticator
	secrets *secretStore
	metrics metrics.RADIUSMetrics

	conn   net.PacketConn
	connMu sync.RWMutex

	// ready is closed once the socket is bound, or binding failed.
	ready     chan struct{}
	readyOnce sync.Once

	shutdown     chan struct{}
	shutdownOnce sync.Once

	// done is closed when Serve returns.
	done chan struct{}

	queue    chan datagram
	workers  sync.WaitGroup
	inflight sync.Map // "<addr>/<identifier>" of requests being processed
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a RADIUS adapter authenticating against auth. Defaults are
// applied to config.
func New(config Config, auth Authenticator) (*Adapter, error) {
	if auth == nil {
		return nil, errors.New("radius adapter requires an authenticator")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	secrets, err := newSecretStore(config)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		config:   config,
		auth:     auth,
		secrets:  secrets,
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		queue:    make(chan datagram, config.QueueSize),
	}, nil
}

// SetMetrics installs the metrics sink. A nil value disables metrics.
func (a *Adapter) SetMetrics(m metrics.RADIUSMetrics) {
	a.metrics = m
}

// Serve binds the UDP socket and processes datagrams until ctx is cancelled
// or Stop is called.
//
// Returns:
//   - nil once the workers finished the queued datagrams
//   - error if the socket cannot be bound or the workers did not finish
//     within the shutdown timeout
func (a *Adapter) Serve(ctx context.Context) error {
	defer close(a.done)

	addr := net.JoinHostPort(a.config.BindAddress, strconv.Itoa(a.config.Port))
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		a.readyOnce.Do(func() { close(a.ready) })
		return fmt.Errorf("failed to create RADIUS listener on %s: %w", addr, err)
	}

	a.connMu.Lock()
	a.conn = conn
	a.connMu.Unlock()
	a.readyOnce.Do(func() { close(a.ready) })

	// Stop may have run before the socket existed.
	select {
	case <-a.shutdown:
		a.stopReading()
	default:
	}

	logger.Info("RADIUS server listening",
		logger.KeyAddress, conn.LocalAddr().String(),
		"workers", a.config.Workers,
		"clients", len(a.secrets.clients),
		"require_message_authenticator", a.config.requireMessageAuthenticator())

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	for i := 0; i < a.config.Workers; i++ {
		a.workers.Add(1)
		go a.worker(workCtx)
	}

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("RADIUS shutdown signal received", logger.KeyReason, ctx.Err())
			a.initiateShutdown()
		case <-a.shutdown:
		}
	}()

	a.readLoop(conn)

	// The socket stays open until the workers are done so queued requests
	// still get their responses.
	close(a.queue)
	err = a.drain(cancelWork)
	if cerr := conn.Close(); cerr != nil {
		logger.Debug("Error closing RADIUS socket", logger.Err(cerr))
	}
	return err
}

// readLoop receives datagrams until shutdown starts or the socket fails.
func (a *Adapter) readLoop(conn net.PacketConn) {
	for {
		buf := bufpool.GetDatagram()
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			bufpool.PutDatagram(buf)
			select {
			case <-a.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Warn("RADIUS socket closed unexpectedly", logger.Err(err))
				return
			}
			logger.Debug("Error reading RADIUS datagram", logger.Err(err))
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		bufpool.PutDatagram(buf)

		select {
		case a.queue <- datagram{data: data, addr: addr, received: time.Now()}:
			a.setQueueDepth()
		default:
			a.drop("queue_full", addr, nil)
		}
	}
}

func (a *Adapter) worker(ctx context.Context) {
	defer a.workers.Done()
	for dg := range a.queue {
		a.setQueueDepth()
		a.process(ctx, dg)
	}
}

// drain waits for the workers to finish the queue. After the timeout the
// remaining work is cancelled.
func (a *Adapter) drain(cancel context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		a.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("RADIUS shutdown complete")
		return nil
	case <-time.After(a.config.ShutdownTimeout):
		cancel()
		return fmt.Errorf("RADIUS shutdown timeout: %d datagrams still queued", len(a.queue))
	}
}

// initiateShutdown stops the reader. Workers keep the socket to answer the
// datagrams already queued, and Serve closes it once they are done. Safe to
// call repeatedly.
func (a *Adapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
		a.stopReading()
	})
}

// stopReading unblocks a pending ReadFrom by moving the read deadline into
// the past.
func (a *Adapter) stopReading() {
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	if a.conn != nil {
		if err := a.conn.SetReadDeadline(time.Now()); err != nil {
			logger.Debug("Error interrupting RADIUS reader", logger.Err(err))
		}
	}
}

// Stop initiates shutdown and waits for Serve to return until ctx is done.
func (a *Adapter) Stop(ctx context.Context) error {
	a.initiateShutdown()

	select {
	case <-a.ready:
	default:
		// Serve was never started.
		return nil
	}

	a.connMu.RLock()
	bound := a.conn != nil
	a.connMu.RUnlock()
	if !bound {
		return nil
	}

	if ctx == nil {
		<-a.done
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetListenerAddr blocks until the socket is bound and returns its address,
// or "" if binding failed.
func (a *Adapter) GetListenerAddr() string {
	<-a.ready

	a.connMu.RLock()
	defer a.connMu.RUnlock()
	if a.conn == nil {
		return ""
	}
	return a.conn.LocalAddr().String()
}

// Port returns the configured port.
func (a *Adapter) Port() int { return a.config.Port }

// Protocol returns "RADIUS".
func (a *Adapter) Protocol() string { return "RADIUS" }

// MapError translates authentication failures into Access-Reject. The
// message never reveals which check failed.
func (a *Adapter) MapError(err error) adapter.ProtocolError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrNotAuthorized):
		return adapter.NewProtocolError(uint32(radius.CodeAccessReject), "Authentication failed", err)
	default:
		return nil
	}
}

func (a *Adapter) setQueueDepth() {
	if a.metrics != nil {
		a.metrics.SetQueueDepth(len(a.queue))
	}
}

// drop records a datagram discarded without a response.
func (a *Adapter) drop(reason string, addr net.Addr, err error) {
	if a.metrics != nil {
		a.metrics.RecordDropped(reason)
	}
	logger.Debug("RADIUS datagram dropped",
		logger.KeyReason, reason,
		logger.KeyClient, addrString(addr),
		logger.Err(err))
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
