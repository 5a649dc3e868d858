package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/concess/internal/logger"
)

// ConnectionHandler serves one accepted connection until it closes or ctx
// is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates the protocol handler for an accepted connection.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// BaseConfig holds the listener settings shared by TCP adapters.
type BaseConfig struct {
	// BindAddress is the IP address to bind to. Empty binds all interfaces.
	BindAddress string

	// Port is the TCP port. 0 picks a free port (tests).
	Port int

	// MaxConnections caps concurrent connections. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds how long shutdown waits for connections to
	// finish before force-closing them.
	ShutdownTimeout time.Duration
}

// MetricsRecorder receives connection lifecycle events. May be nil.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	SetActiveConnections(count int32)
}

// BaseAdapter owns the TCP listener of an adapter: the accept loop, the
// connection limit, connection tracking and graceful shutdown. Protocol
// behavior is injected through a ConnectionFactory.
//
// Shutdown is driven either by cancelling the Serve context or by Stop, and
// runs at most once.
type BaseAdapter struct {
	Config BaseConfig

	// Metrics is optional.
	Metrics MetricsRecorder

	protocolName string

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once the listener is bound, or binding failed.
	ListenerReady chan struct{}
	readyOnce     sync.Once

	// Shutdown is closed when shutdown starts.
	Shutdown     chan struct{}
	shutdownOnce sync.Once

	// ShutdownCtx is handed to every connection and cancelled on shutdown.
	ShutdownCtx    context.Context
	CancelRequests context.CancelFunc

	// ActiveConnections maps remote address to net.Conn for forced closure.
	ActiveConnections sync.Map
	ConnCount         atomic.Int32
	activeConns       sync.WaitGroup

	// connSemaphore is nil when MaxConnections is 0.
	connSemaphore chan struct{}
}

// NewBaseAdapter creates a stopped BaseAdapter.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	var sem chan struct{}
	if config.MaxConnections > 0 {
		sem = make(chan struct{}, config.MaxConnections)
	}
	logger.Debug(protocol+" connection limit", "max_connections", config.MaxConnections)

	shutdownCtx, cancel := context.WithCancel(context.Background())
	return &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		ListenerReady:  make(chan struct{}),
		Shutdown:       make(chan struct{}),
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancel,
		connSemaphore:  sem,
	}
}

// ServeWithFactory binds the listener and runs the accept loop until ctx is
// cancelled or Stop is called, then drains connections.
//
// Returns:
//   - nil once every connection finished within ShutdownTimeout
//   - error if the listener cannot be bound or connections had to be
//     force-closed
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory) error {
	addr := net.JoinHostPort(b.Config.BindAddress, strconv.Itoa(b.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		b.readyOnce.Do(func() { close(b.ListenerReady) })
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, addr, err)
	}

	b.listenerMu.Lock()
	b.listener = ln
	b.listenerMu.Unlock()
	b.readyOnce.Do(func() { close(b.ListenerReady) })

	logger.Info(b.protocolName+" server listening", logger.KeyAddress, ln.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocolName+" shutdown signal received", logger.KeyReason, ctx.Err())
			b.initiateShutdown()
		case <-b.Shutdown:
		}
	}()

	for {
		if b.connSemaphore != nil {
			select {
			case b.connSemaphore <- struct{}{}:
			case <-b.Shutdown:
				return b.drain(b.Config.ShutdownTimeout)
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			b.release()
			select {
			case <-b.Shutdown:
				return b.drain(b.Config.ShutdownTimeout)
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%s listener closed: %w", b.protocolName, err)
			}
			logger.Debug("Error accepting "+b.protocolName+" connection", logger.Err(err))
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		b.track(conn, factory.NewConnection(conn))
	}
}

// track registers conn and serves it on its own goroutine.
func (b *BaseAdapter) track(conn net.Conn, handler ConnectionHandler) {
	addr := conn.RemoteAddr().String()

	b.activeConns.Add(1)
	active := b.ConnCount.Add(1)
	b.ActiveConnections.Store(addr, conn)
	if b.Metrics != nil {
		b.Metrics.RecordConnectionAccepted()
		b.Metrics.SetActiveConnections(active)
	}
	logger.Debug(b.protocolName+" connection accepted", logger.KeyClient, addr, "active", active)

	go func() {
		defer func() {
			b.ActiveConnections.Delete(addr)
			active := b.ConnCount.Add(-1)
			b.release()
			if b.Metrics != nil {
				b.Metrics.RecordConnectionClosed()
				b.Metrics.SetActiveConnections(active)
			}
			b.activeConns.Done()
			logger.Debug(b.protocolName+" connection closed", logger.KeyClient, addr, "active", active)
		}()

		handler.Serve(b.ShutdownCtx)
	}()
}

func (b *BaseAdapter) release() {
	if b.connSemaphore != nil {
		<-b.connSemaphore
	}
}

// initiateShutdown stops the accept loop, interrupts blocking reads and
// cancels ShutdownCtx. Safe to call repeatedly.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.protocolName+" listener", logger.Err(err))
			}
		}
		b.listenerMu.Unlock()

		// A short deadline wakes connections parked in Read.
		deadline := time.Now().Add(100 * time.Millisecond)
		b.ActiveConnections.Range(func(_, value any) bool {
			_ = value.(net.Conn).SetReadDeadline(deadline)
			return true
		})

		b.CancelRequests()
	})
}

// drain waits for active connections, force-closing the rest after timeout.
func (b *BaseAdapter) drain(timeout time.Duration) error {
	active := b.ConnCount.Load()
	if active > 0 {
		logger.Info(b.protocolName+" draining connections", "active", active, "timeout", timeout)
	}

	select {
	case <-b.waitConnections():
		logger.Info(b.protocolName + " shutdown complete")
		return nil
	case <-time.After(timeout):
		remaining := b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

func (b *BaseAdapter) waitConnections() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()
	return done
}

func (b *BaseAdapter) forceCloseConnections() int {
	closed := 0
	b.ActiveConnections.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err == nil {
			closed++
			if b.Metrics != nil {
				b.Metrics.RecordConnectionForceClosed()
			}
		}
		logger.Debug("Force-closed "+b.protocolName+" connection", logger.KeyClient, key)
		return true
	})
	if closed > 0 {
		logger.Warn(b.protocolName+" shutdown timeout exceeded, connections force-closed", logger.KeyCount, closed)
	}
	return closed
}

// Stop initiates shutdown and waits for connections until ctx is done. A nil
// ctx waits up to ShutdownTimeout.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.drain(b.Config.ShutdownTimeout)
	}

	select {
	case <-b.waitConnections():
		return nil
	case <-ctx.Done():
		b.forceCloseConnections()
		return ctx.Err()
	}
}

// GetActiveConnections returns the number of open connections.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.ConnCount.Load()
}

// GetListenerAddr blocks until the listener is bound and returns its address,
// or "" if binding failed.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the configured port.
func (b *BaseAdapter) Port() int { return b.Config.Port }

// Protocol returns the protocol name.
func (b *BaseAdapter) Protocol() string { return b.protocolName }

// MapError returns nil; adapters with result codes override it.
func (b *BaseAdapter) MapError(_ error) ProtocolError { return nil }
