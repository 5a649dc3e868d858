package ldap

import (
	"context"
	"errors"
	"strings"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/concess/internal/logger"
	"github.com/marmos91/concess/internal/protocol/ldap"
	"github.com/marmos91/concess/internal/telemetry"
	"github.com/marmos91/concess/pkg/identity"
)

// dispatch serves one request. It returns false when the connection must be
// closed.
func (c *Connection) dispatch(ctx context.Context, msg *ldap.Message) bool {
	if ctl, ok := criticalControl(msg); ok {
		return c.refuseCriticalControl(ctx, msg, ctl)
	}

	var err error
	switch op := msg.Op.(type) {
	case *ldap.BindRequest:
		err = c.handleBind(ctx, msg, op)
	case *ldap.SearchRequest:
		err = c.handleSearch(ctx, msg, op)
	case *ldap.ExtendedRequest:
		err = c.handleExtended(ctx, msg, op)
	case *ldap.UnbindRequest:
		logger.DebugCtx(ctx, "LDAP unbind", logger.MessageID(msg.ID))
		return false
	case *ldap.AbandonRequest:
		// Requests are served in order, so the target already completed.
		logger.DebugCtx(ctx, "LDAP abandon ignored", logger.MessageID(msg.ID), "target", op.MessageID)
		return true
	case *ldap.UpdateRequest:
		err = c.refuseUpdate(ctx, msg, op)
	default:
		c.recordProtocolError("protocol")
		logger.WarnCtx(ctx, "Unsupported LDAP operation, closing connection",
			logger.MessageID(msg.ID), logger.KeyOperation, msg.OpName())
		c.disconnect(ctx, goldap.LDAPResultProtocolError, "unsupported operation "+msg.OpName())
		return false
	}

	if err != nil {
		logger.DebugCtx(ctx, "Failed to send LDAP response", logger.MessageID(msg.ID), logger.Err(err))
		return false
	}
	return true
}

// handleBind processes a BindRequest (RFC 4511 section 4.2, RFC 4513
// section 5.1).
func (c *Connection) handleBind(ctx context.Context, msg *ldap.Message, req *ldap.BindRequest) error {
	start := time.Now()
	ctx, span := telemetry.StartLDAPSpan(ctx, telemetry.SpanLDAPBind, msg.ID, telemetry.Username(req.Name))
	defer span.End()

	// Any bind attempt resets the session before it is evaluated.
	c.bound = false
	c.bindDN = identity.DN{}
	c.lc.User = ""

	var code uint16
	var message string
	switch {
	case req.Version != 3:
		code, message = goldap.LDAPResultProtocolError, "only LDAPv3 is supported"
	case !req.Simple:
		code, message = goldap.LDAPResultAuthMethodNotSupported, "SASL mechanism "+req.Mechanism+" is not supported"
	case req.Name == "" && req.Password == "":
		code = goldap.LDAPResultSuccess
	case req.Password == "":
		code, message = goldap.LDAPResultUnwillingToPerform, "unauthenticated bind is not allowed"
	case req.Name == "":
		code, message = goldap.LDAPResultUnwillingToPerform, "a password requires a bind name"
	default:
		dn, err := c.server.dir.Authenticate(ctx, req.Name, req.Password)
		if err != nil {
			perr := c.server.MapError(err)
			code, message = uint16(perr.Code()), perr.Message()
			logger.InfoCtx(ctx, "LDAP bind failed",
				logger.MessageID(msg.ID), logger.KeyBindDN, req.Name, logger.Err(err))
			break
		}
		c.bound = true
		c.bindDN = dn
		c.lc.User = dn.String()
		code = goldap.LDAPResultSuccess
	}

	c.finish(span, "bind", code, start)
	logger.DebugCtx(ctx, "LDAP bind",
		logger.MessageID(msg.ID), logger.KeyBindDN, req.Name, logger.Result(resultName(code)))

	return c.send(ldap.EncodeBindResponse(msg.ID, code, message))
}

// handleSearch processes a SearchRequest (RFC 4511 section 4.5). Entries are
// streamed before the SearchResultDone, all under the request's message ID.
func (c *Connection) handleSearch(ctx context.Context, msg *ldap.Message, req *ldap.SearchRequest) error {
	start := time.Now()
	filter := ""
	if req.Filter != nil {
		filter = req.Filter.String()
	}
	ctx, span := telemetry.StartLDAPSpan(ctx, telemetry.SpanLDAPSearch, msg.ID,
		telemetry.LDAPBaseDN(req.BaseDN),
		telemetry.LDAPScope(req.Scope.String()),
		telemetry.LDAPFilter(filter))
	defer span.End()

	if !c.bound && !c.server.dir.AllowAnonymousSearch() && !isRootDSE(req) {
		code := uint16(goldap.LDAPResultInsufficientAccessRights)
		c.finish(span, "search", code, start)
		logger.DebugCtx(ctx, "LDAP anonymous search refused", logger.MessageID(msg.ID), logger.KeyBaseDN, req.BaseDN)
		return c.send(ldap.EncodeSearchDone(msg.ID, code, "", "bind required"))
	}

	entries, err := c.server.dir.Search(ctx, identity.SearchRequest{
		BaseDN:     req.BaseDN,
		Scope:      req.Scope,
		Filter:     req.Filter,
		Attributes: req.Attributes,
		TypesOnly:  req.TypesOnly,
		SizeLimit:  req.SizeLimit,
	})

	code := uint16(goldap.LDAPResultSuccess)
	var matchedDN, message string
	if err != nil {
		perr := c.server.MapError(err)
		code, message = uint16(perr.Code()), perr.Message()
		var rerr *resultError
		if errors.As(perr, &rerr) {
			matchedDN = rerr.matchedDN
		}
	}

	responses := make([][]byte, 0, len(entries)+1)
	for _, e := range entries {
		responses = append(responses, ldap.EncodeSearchEntry(msg.ID, e))
	}
	responses = append(responses, ldap.EncodeSearchDone(msg.ID, code, matchedDN, message))

	span.SetAttributes(telemetry.LDAPEntries(len(entries)))
	if c.server.metrics != nil {
		c.server.metrics.RecordSearchEntries(len(entries))
	}
	c.finish(span, "search", code, start)
	logger.DebugCtx(ctx, "LDAP search",
		logger.MessageID(msg.ID),
		logger.KeyBaseDN, req.BaseDN,
		logger.KeyScope, req.Scope.String(),
		logger.KeyFilter, filter,
		logger.KeyEntries, len(entries),
		logger.Result(resultName(code)))

	return c.send(responses...)
}

// handleExtended processes an ExtendedRequest. Only "Who am I?" (RFC 4532)
// is implemented.
func (c *Connection) handleExtended(ctx context.Context, msg *ldap.Message, req *ldap.ExtendedRequest) error {
	start := time.Now()
	ctx, span := telemetry.StartLDAPSpan(ctx, telemetry.SpanLDAPExtended, msg.ID, telemetry.Operation(req.Name))
	defer span.End()

	if req.Name != identity.OIDWhoAmI {
		code := uint16(goldap.LDAPResultProtocolError)
		c.finish(span, "extended", code, start)
		logger.DebugCtx(ctx, "Unsupported LDAP extended operation", logger.MessageID(msg.ID), "oid", req.Name)
		return c.send(ldap.EncodeExtendedResponse(msg.ID, code, "unsupported extended operation "+req.Name, "", nil))
	}

	authzID := []byte{}
	if c.bound {
		authzID = []byte("dn:" + c.bindDN.String())
	}
	c.finish(span, "whoami", goldap.LDAPResultSuccess, start)
	return c.send(ldap.EncodeExtendedResponse(msg.ID, goldap.LDAPResultSuccess, "", "", authzID))
}

// refuseUpdate answers Add, Modify, Delete, ModifyDN and Compare.
func (c *Connection) refuseUpdate(ctx context.Context, msg *ldap.Message, req *ldap.UpdateRequest) error {
	code := uint16(goldap.LDAPResultUnwillingToPerform)
	c.record(msg.OpName(), code, time.Now())
	logger.DebugCtx(ctx, "LDAP update refused", logger.MessageID(msg.ID), logger.KeyOperation, msg.OpName())
	return c.send(ldap.EncodeResult(msg.ID, req.ResponseTag(), code, "", "the directory is read-only"))
}

// refuseCriticalControl answers a request carrying a critical control the
// server does not implement (RFC 4511 section 4.1.11).
func (c *Connection) refuseCriticalControl(ctx context.Context, msg *ldap.Message, ctl ldap.Control) bool {
	tag, ok := responseTag(msg.Op)
	if !ok {
		// Unbind and Abandon have no response.
		return !isUnbind(msg.Op)
	}

	code := uint16(goldap.LDAPResultUnavailableCriticalExtension)
	c.record(msg.OpName(), code, time.Now())
	logger.DebugCtx(ctx, "LDAP critical control refused",
		logger.MessageID(msg.ID), logger.KeyOperation, msg.OpName(), "control", ctl.Name())

	message := "unsupported critical control " + ctl.OID
	var resp []byte
	if tag == goldap.ApplicationExtendedResponse {
		resp = ldap.EncodeExtendedResponse(msg.ID, code, message, "", nil)
	} else {
		resp = ldap.EncodeResult(msg.ID, tag, code, "", message)
	}
	if err := c.send(resp); err != nil {
		logger.DebugCtx(ctx, "Failed to send LDAP response", logger.MessageID(msg.ID), logger.Err(err))
		return false
	}
	return true
}

// finish records the outcome of an operation on its span and in metrics.
func (c *Connection) finish(span trace.Span, op string, code uint16, start time.Time) {
	span.SetAttributes(telemetry.LDAPResultCode(code), telemetry.Result(resultName(code)))
	if code != goldap.LDAPResultSuccess {
		span.SetStatus(codes.Error, resultName(code))
	}
	c.record(op, code, start)
}

func (c *Connection) record(op string, code uint16, start time.Time) {
	if c.server.metrics != nil {
		c.server.metrics.RecordRequest(op, resultName(code), time.Since(start))
	}
}

// criticalControl returns the first critical control of msg. No request
// control is implemented, so every critical one is unavailable.
func criticalControl(msg *ldap.Message) (ldap.Control, bool) {
	for _, ctl := range msg.Controls {
		if ctl.Critical {
			return ctl, true
		}
	}
	return ldap.Control{}, false
}

// responseTag returns the application tag of the response to op.
func responseTag(op ldap.Request) (uint8, bool) {
	switch r := op.(type) {
	case *ldap.BindRequest:
		return goldap.ApplicationBindResponse, true
	case *ldap.SearchRequest:
		return goldap.ApplicationSearchResultDone, true
	case *ldap.ExtendedRequest:
		return goldap.ApplicationExtendedResponse, true
	case *ldap.UpdateRequest:
		return r.ResponseTag(), true
	default:
		return 0, false
	}
}

func isUnbind(op ldap.Request) bool {
	_, ok := op.(*ldap.UnbindRequest)
	return ok
}

// isRootDSE reports whether req reads the Root DSE, which is readable
// without binding.
func isRootDSE(req *ldap.SearchRequest) bool {
	return strings.TrimSpace(req.BaseDN) == "" && req.Scope == identity.ScopeBaseObject
}
