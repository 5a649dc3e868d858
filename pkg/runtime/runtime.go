// Package runtime wires the record store, the directory views and the
// protocol servers together and runs them until shutdown.
//
// The Runtime owns one directory.Store. Both protocol servers read through
// views over that store, so a reload from any trigger (SIGHUP, the
// operations API, the filesystem watcher) is seen by LDAP and RADIUS at the
// same time.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/concess/internal/logger"
	"github.com/marmos91/concess/internal/telemetry"
	"github.com/marmos91/concess/pkg/adapter"
	"github.com/marmos91/concess/pkg/adapter/ldap"
	"github.com/marmos91/concess/pkg/adapter/radius"
	"github.com/marmos91/concess/pkg/api"
	"github.com/marmos91/concess/pkg/config"
	"github.com/marmos91/concess/pkg/directory"
	"github.com/marmos91/concess/pkg/identity"
	"github.com/marmos91/concess/pkg/metrics"
	"github.com/marmos91/concess/pkg/metrics/prometheus"
)

// DefaultShutdownTimeout is the default timeout for graceful adapter shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// auxShutdownTimeout bounds the shutdown of the HTTP servers.
const auxShutdownTimeout = 5 * time.Second

// AuxiliaryServer is an HTTP server (API, metrics) run alongside the
// protocol adapters.
type AuxiliaryServer interface {
	// Start serves until ctx is cancelled or an error occurs.
	Start(ctx context.Context) error
	// Stop initiates graceful shutdown.
	Stop(ctx context.Context) error
}

// adapterEntry holds the state of one running adapter.
type adapterEntry struct {
	adapter adapter.Adapter
	cancel  context.CancelFunc
	errCh   chan error
}

// adapterExit reports an adapter whose Serve returned.
type adapterExit struct {
	protocol string
	err      error
}

// Runtime manages the lifecycle of the concess server.
type Runtime struct {
	store *directory.Store

	adapters []adapter.Adapter
	aux      map[string]AuxiliaryServer

	watch           bool
	watchDebounce   time.Duration
	shutdownTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*adapterEntry

	serveOnce sync.Once
}

// New loads the record store and builds every enabled server from cfg.
//
// The initial load is fatal: New returns the *directory.LoadError when the
// records cannot be read. When metrics are enabled the process-wide
// registry is initialized here.
func New(cfg *config.Config) (*Runtime, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	var opts []directory.Option
	if m := prometheus.NewDirectoryMetrics(); m != nil {
		opts = append(opts, directory.WithMetrics(m))
	}
	store, err := directory.NewStore(cfg.Data.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory: %w", err)
	}

	rt := NewWithStore(store)
	rt.SetShutdownTimeout(cfg.ShutdownTimeout)
	rt.watch = cfg.Data.Watch
	rt.watchDebounce = cfg.Data.WatchDebounce

	if cfg.LDAP.Enabled {
		view, err := identity.NewLDAPView(store, identity.LDAPOptions{
			BaseDN:                  cfg.LDAP.BaseDN,
			AllowAnonymousSearch:    cfg.LDAP.AllowAnonymousSearch,
			AllowUnsupportedFilters: cfg.LDAP.AllowUnsupportedFilters,
		})
		if err != nil {
			return nil, fmt.Errorf("invalid ldap.base_dn: %w", err)
		}
		srv, err := ldap.New(cfg.LDAP, view)
		if err != nil {
			return nil, fmt.Errorf("failed to create LDAP server: %w", err)
		}
		if m := prometheus.NewLDAPMetrics(); m != nil {
			srv.SetMetrics(m)
		}
		rt.AddAdapter(srv)
	}

	if cfg.RADIUS.Enabled {
		view := identity.NewRADIUSView(store, identity.RADIUSOptions{
			GroupAttribute: cfg.RADIUS.GroupAttribute,
			RequiredGroups: cfg.RADIUS.RequiredGroups,
		})
		srv, err := radius.New(cfg.RADIUS, view)
		if err != nil {
			return nil, fmt.Errorf("failed to create RADIUS server: %w", err)
		}
		if m := prometheus.NewRADIUSMetrics(); m != nil {
			srv.SetMetrics(m)
		}
		rt.AddAdapter(srv)
	}

	if cfg.API.IsEnabled() {
		rt.SetAuxiliaryServer("api", api.NewServer(cfg.API, store, rt))
	}
	if cfg.Metrics.Enabled {
		rt.SetAuxiliaryServer("metrics", metrics.NewServer("", cfg.Metrics.Port))
	}

	return rt, nil
}

// NewWithStore creates a Runtime around an already loaded store with no
// servers registered. Servers are added with AddAdapter and
// SetAuxiliaryServer before Serve.
func NewWithStore(store *directory.Store) *Runtime {
	return &Runtime{
		store:           store,
		aux:             make(map[string]AuxiliaryServer),
		entries:         make(map[string]*adapterEntry),
		shutdownTimeout: DefaultShutdownTimeout,
		watchDebounce:   directory.DefaultWatchDebounce,
	}
}

// SetShutdownTimeout sets the maximum time to wait for graceful adapter shutdown.
func (r *Runtime) SetShutdownTimeout(d time.Duration) {
	if d == 0 {
		d = DefaultShutdownTimeout
	}
	r.shutdownTimeout = d
}

// AddAdapter registers a protocol adapter. Must be called before Serve.
func (r *Runtime) AddAdapter(a adapter.Adapter) {
	r.adapters = append(r.adapters, a)
	logger.Info("Adapter registered", logger.KeyProtocol, a.Protocol(), logger.KeyPort, a.Port())
}

// SetAuxiliaryServer registers an HTTP server under name. Must be called
// before Serve.
func (r *Runtime) SetAuxiliaryServer(name string, s AuxiliaryServer) {
	r.aux[name] = s
}

// Adapters returns the registered protocol adapters in start order.
func (r *Runtime) Adapters() []adapter.Adapter { return r.adapters }

// Store returns the record store.
func (r *Runtime) Store() *directory.Store { return r.store }

// Snapshot returns the active directory.
func (r *Runtime) Snapshot() *directory.Directory { return r.store.Snapshot() }

// Reload reloads the record store. On failure the previous snapshot keeps
// serving and the *directory.LoadError is returned.
func (r *Runtime) Reload() error {
	ctx, span := telemetry.StartDirectorySpan(context.Background(), telemetry.SpanDirectoryReload)
	defer span.End()

	if err := r.store.Reload(); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	snap := r.store.Snapshot()
	span.SetAttributes(telemetry.DirectorySize(snap.UserCount(), snap.GroupCount())...)
	return nil
}

// Serve starts all servers and blocks until ctx is cancelled or one of them
// fails. Then every server is stopped within the shutdown timeout.
//
// An adapter whose Serve returns while ctx is still live is a fatal error:
// the remaining adapters are stopped and the error is returned.
//
// Serve may only be called once.
func (r *Runtime) Serve(ctx context.Context) error {
	err := errors.New("runtime already served")
	r.serveOnce.Do(func() {
		err = r.serve(ctx)
	})
	return err
}

func (r *Runtime) serve(ctx context.Context) error {
	if len(r.adapters) == 0 {
		return errors.New("no protocol server enabled")
	}

	logger.Info("Starting concess runtime", "adapters", len(r.adapters))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Reload triggers
	stopSignals := r.watchSignals(ctx)
	defer stopSignals()

	var bg sync.WaitGroup
	if r.watch {
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := r.store.Watch(ctx, r.watchDebounce); err != nil {
				logger.Error("Directory watcher failed", logger.Err(err))
			}
		}()
	}

	// 2. Protocol adapters
	exits := make(chan adapterExit, len(r.adapters))
	for _, a := range r.adapters {
		r.startAdapter(a, exits)
	}

	// 3. Auxiliary servers
	auxErr := make(chan error, len(r.aux))
	for name, s := range r.aux {
		bg.Add(1)
		go func(name string, s AuxiliaryServer) {
			defer bg.Done()
			if err := s.Start(ctx); err != nil {
				logger.Error("Auxiliary server error", "server", name, logger.Err(err))
				auxErr <- fmt.Errorf("%s server: %w", name, err)
			}
		}(name, s)
	}

	// 4. Wait for shutdown signal or a failure
	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", logger.KeyReason, ctx.Err())

	case exit := <-exits:
		r.forget(exit.protocol)
		if exit.err == nil {
			exit.err = errors.New("stopped unexpectedly")
		}
		logger.Error("Adapter failed - initiating shutdown", logger.KeyProtocol, exit.protocol, logger.Err(exit.err))
		shutdownErr = fmt.Errorf("%s server: %w", exit.protocol, exit.err)

	case err := <-auxErr:
		logger.Error("Auxiliary server failed - initiating shutdown", logger.Err(err))
		shutdownErr = err
	}

	// 5. Graceful shutdown
	cancel()
	r.shutdown()
	bg.Wait()

	logger.Info("concess runtime stopped")
	return shutdownErr
}

// startAdapter runs a in its own goroutine.
func (r *Runtime) startAdapter(a adapter.Adapter, exits chan<- adapterExit) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	protocol := a.Protocol()

	r.mu.Lock()
	r.entries[protocol] = &adapterEntry{adapter: a, cancel: cancel, errCh: errCh}
	r.mu.Unlock()

	go func() {
		logger.Info("Starting adapter", logger.KeyProtocol, protocol, logger.KeyPort, a.Port())
		err := a.Serve(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			logger.Error("Adapter failed", logger.KeyProtocol, protocol, logger.Err(err))
		}
		errCh <- err

		// Only report exits the runtime did not ask for.
		if ctx.Err() == nil {
			exits <- adapterExit{protocol: protocol, err: err}
		}
	}()
}

// forget drops an adapter that already exited from the running set.
func (r *Runtime) forget(protocol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[protocol]; ok {
		e.cancel()
		delete(r.entries, protocol)
	}
}

// shutdown stops every running adapter, then the auxiliary servers.
func (r *Runtime) shutdown() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*adapterEntry)
	r.mu.Unlock()

	logger.Info("Stopping all adapters")
	var wg sync.WaitGroup
	for protocol, e := range entries {
		wg.Add(1)
		go func(protocol string, e *adapterEntry) {
			defer wg.Done()
			if err := r.stopAdapter(protocol, e); err != nil {
				logger.Warn("Error stopping adapter", logger.KeyProtocol, protocol, logger.Err(err))
			}
		}(protocol, e)
	}
	wg.Wait()

	for name, s := range r.aux {
		ctx, cancel := context.WithTimeout(context.Background(), auxShutdownTimeout)
		if err := s.Stop(ctx); err != nil {
			logger.Error("Auxiliary server shutdown error", "server", name, logger.Err(err))
		}
		cancel()
	}
}

// stopAdapter stops a running adapter with connection draining.
func (r *Runtime) stopAdapter(protocol string, e *adapterEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	logger.Info("Stopping adapter", logger.KeyProtocol, protocol)

	// Signal adapter to stop (triggers connection draining)
	if err := e.adapter.Stop(ctx); err != nil {
		logger.Warn("Adapter stop error", logger.KeyProtocol, protocol, logger.Err(err))
	}
	e.cancel()

	select {
	case <-e.errCh:
		logger.Info("Adapter stopped", logger.KeyProtocol, protocol)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("adapter %s stop timed out", protocol)
	}
}

// reloadOnSignal is the SIGHUP action.
func (r *Runtime) reloadOnSignal() {
	logger.Info("Reload signal received")
	// failures are logged by the store and the old snapshot stays active
	_ = r.Reload()
}
