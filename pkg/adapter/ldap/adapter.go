// Package ldap serves the directory over LDAPv3 (RFC 4511).
//
// The server is read-only: it answers simple binds, searches, unbind and the
// "Who am I?" extended operation, and refuses every update. Each connection
// is served by its own goroutine and processes its requests in order.
package ldap

import (
	"context"
	"errors"
	"net"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/marmos91/concess/internal/logger"
	"github.com/marmos91/concess/pkg/adapter"
	"github.com/marmos91/concess/pkg/identity"
	"github.com/marmos91/concess/pkg/metrics"
)

// Directory is the part of the LDAP view the server uses.
// *identity.LDAPView implements it.
type Directory interface {
	// Authenticate verifies a simple bind and returns the bound DN.
	Authenticate(ctx context.Context, name, password string) (identity.DN, error)

	// Search evaluates a search against the active snapshot.
	Search(ctx context.Context, req identity.SearchRequest) ([]*identity.Entry, error)

	// AllowAnonymousSearch reports whether unbound sessions may search.
	AllowAnonymousSearch() bool
}

// Adapter is the LDAP server.
type Adapter struct {
	*adapter.BaseAdapter

	config  Config
	dir     Directory
	metrics metrics.LDAPMetrics
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an LDAP adapter serving dir. Defaults are applied to config.
func New(config Config, dir Directory) (*Adapter, error) {
	if dir == nil {
		return nil, errors.New("ldap adapter requires a directory")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	base := adapter.NewBaseAdapter(adapter.BaseConfig{
		BindAddress:     config.BindAddress,
		Port:            config.Port,
		MaxConnections:  config.MaxConnections,
		ShutdownTimeout: config.ShutdownTimeout,
	}, "LDAP")

	return &Adapter{
		BaseAdapter: base,
		config:      config,
		dir:         dir,
	}, nil
}

// SetMetrics installs the metrics sink. A nil value disables metrics.
func (a *Adapter) SetMetrics(m metrics.LDAPMetrics) {
	a.metrics = m
	if m != nil {
		a.BaseAdapter.Metrics = m
	}
}

// Serve accepts connections until ctx is cancelled.
func (a *Adapter) Serve(ctx context.Context) error {
	logger.Info("Starting LDAP server",
		logger.KeyPort, a.config.Port,
		logger.KeyBaseDN, a.config.BaseDN,
		"anonymous_search", a.dir.AllowAnonymousSearch())
	return a.ServeWithFactory(ctx, a)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return newConnection(a, conn)
}

// MapError translates a directory error into an LDAP resultCode. Errors
// without a dedicated code map to operationsError.
func (a *Adapter) MapError(err error) adapter.ProtocolError {
	if err == nil {
		return nil
	}
	code, matched := resultCodeOf(err)
	return &resultError{
		ProtocolError: adapter.NewProtocolError(uint32(code), diagnosticOf(code, err), err),
		matchedDN:     matched,
	}
}

// resultError is an adapter.ProtocolError carrying the matchedDN of a
// noSuchObject result.
type resultError struct {
	adapter.ProtocolError
	matchedDN string
}

func resultCodeOf(err error) (uint16, string) {
	var nso *identity.NoSuchObjectError
	switch {
	case errors.As(err, &nso):
		return goldap.LDAPResultNoSuchObject, nso.MatchedDN
	case errors.Is(err, identity.ErrNoSuchObject):
		return goldap.LDAPResultNoSuchObject, ""
	case errors.Is(err, identity.ErrInvalidCredentials):
		return goldap.LDAPResultInvalidCredentials, ""
	case errors.Is(err, identity.ErrUnsupportedFilter):
		return goldap.LDAPResultUnwillingToPerform, ""
	case errors.Is(err, identity.ErrSizeLimitExceeded):
		return goldap.LDAPResultSizeLimitExceeded, ""
	case errors.Is(err, identity.ErrInsufficientAccess):
		return goldap.LDAPResultInsufficientAccessRights, ""
	case errors.Is(err, identity.ErrInvalidDN):
		return goldap.LDAPResultInvalidDNSyntax, ""
	default:
		return goldap.LDAPResultOperationsError, ""
	}
}

// diagnosticOf returns the diagnosticMessage for code. Credential failures
// never reveal their reason.
func diagnosticOf(code uint16, err error) string {
	switch code {
	case goldap.LDAPResultInvalidCredentials:
		return "invalid credentials"
	case goldap.LDAPResultOperationsError:
		return "internal error"
	default:
		return err.Error()
	}
}

// resultName returns the label used for logs and metrics.
func resultName(code uint16) string {
	if name, ok := goldap.LDAPResultCodeMap[code]; ok {
		return name
	}
	return "Unknown"
}
