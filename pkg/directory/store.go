package directory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/concess/internal/logger"
)

// Metrics receives reload outcomes. A nil Metrics is valid.
type Metrics interface {
	RecordReload(success bool, duration time.Duration)
	SetDirectorySize(users, groups int)
}

// Store owns the active Directory snapshot.
//
// Reads are lock-free loads of an atomic pointer. Reload builds a complete new
// snapshot and publishes it with a single swap; on failure the previous
// snapshot stays in effect.
//
// Thread Safety: All methods are safe for concurrent use.
type Store struct {
	path    string
	current atomic.Pointer[Directory]

	// reloadMu serializes reloads so two triggers cannot race their swaps.
	reloadMu sync.Mutex

	metrics Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore loads the initial snapshot from path. A load failure here is fatal
// to the caller: there is no previous snapshot to fall back to.
func NewStore(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}

	start := time.Now()
	d, err := Load(path)
	s.record(err == nil, time.Since(start), d)
	if err != nil {
		return nil, err
	}

	s.current.Store(d)
	logger.Info("Directory loaded",
		logger.KeyPath, path,
		logger.KeyUsers, d.UserCount(),
		logger.KeyGroups, d.GroupCount())
	return s, nil
}

// Path returns the data path the store loads from.
func (s *Store) Path() string { return s.path }

// Snapshot returns the active directory. The result stays valid and unchanged
// for as long as the caller holds it.
func (s *Store) Snapshot() *Directory {
	return s.current.Load()
}

// LookupUser looks a username up in the active snapshot.
func (s *Store) LookupUser(name string) (*Record, bool) {
	return s.Snapshot().LookupUser(name)
}

// GroupsOf returns the groups of a user in the active snapshot.
func (s *Store) GroupsOf(name string) []string {
	return s.Snapshot().GroupsOf(name)
}

// Reload loads a fresh snapshot and publishes it. On error the active
// snapshot is left untouched and the *LoadError is returned.
//
// A reload whose content equals the active snapshot keeps the existing
// pointer, so repeated reloads of an unchanged tree are no-ops.
func (s *Store) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	next, err := Load(s.path)
	elapsed := time.Since(start)

	if err != nil {
		s.record(false, elapsed, nil)
		logger.Error("Directory reload failed, keeping previous snapshot",
			logger.KeyPath, s.path, logger.Err(err))
		return err
	}

	prev := s.current.Load()
	if prev.Equal(next) {
		s.record(true, elapsed, prev)
		logger.Debug("Directory reload found no changes", logger.KeyPath, s.path)
		return nil
	}

	s.current.Store(next)
	s.record(true, elapsed, next)
	logger.Info("Directory reloaded",
		logger.KeyPath, s.path,
		logger.KeyUsers, next.UserCount(),
		logger.KeyGroups, next.GroupCount(),
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000.0)
	return nil
}

func (s *Store) record(ok bool, d time.Duration, snap *Directory) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordReload(ok, d)
	if snap != nil {
		s.metrics.SetDirectorySize(snap.UserCount(), snap.GroupCount())
	}
}
