package radius

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/codes"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/marmos91/concess/internal/logger"
	radiuswire "github.com/marmos91/concess/internal/protocol/radius"
	"github.com/marmos91/concess/internal/telemetry"
	"github.com/marmos91/concess/pkg/credential"
)

// Authentication methods, used as the method label.
const (
	methodPAP    = "pap"
	methodCHAP   = "chap"
	methodNone   = "none"
	methodStatus = "status"
)

// chapPasswordLength is the CHAP ident followed by the MD5 response.
const chapPasswordLength = 17

// errUndecryptable marks an unsigned PAP request whose User-Password does not
// decrypt to text, which is what a client configured with another shared
// secret sends.
var errUndecryptable = errors.New("User-Password does not decrypt with the shared secret")

// outcome is the result of processing one request.
type outcome struct {
	response *radius.Packet
	method   string
	result   string // accept, reject
}

// process handles one datagram end to end. Every failure before a response
// is built is a silent drop.
func (a *Adapter) process(ctx context.Context, dg datagram) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in RADIUS handler",
				logger.KeyClient, addrString(dg.addr),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	ip := addrIP(dg.addr)
	clientName, secret, ok := a.secrets.lookup(ip)
	if !ok {
		a.drop("unknown_client", dg.addr, nil)
		return
	}

	pkt, err := radius.Parse(dg.data, secret)
	if err != nil {
		a.drop("malformed", dg.addr, err)
		return
	}

	if pkt.Code != radius.CodeAccessRequest && pkt.Code != radius.CodeStatusServer {
		a.drop("unsupported_code", dg.addr, fmt.Errorf("code %s", pkt.Code))
		return
	}

	// Status-Server must always be authenticated (RFC 5997 section 3).
	signed := radiuswire.HasMessageAuthenticator(dg.data)
	if signed {
		if err := radiuswire.VerifyRequest(dg.data, secret); err != nil {
			reason := "bad_authenticator"
			if errors.Is(err, radiuswire.ErrMalformed) {
				reason = "malformed"
			}
			a.drop(reason, dg.addr, err)
			return
		}
	} else if a.config.requireMessageAuthenticator() || pkt.Code == radius.CodeStatusServer {
		a.drop("missing_authenticator", dg.addr, nil)
		return
	}

	key := addrString(dg.addr) + "/" + strconv.Itoa(int(pkt.Identifier))
	if _, busy := a.inflight.LoadOrStore(key, struct{}{}); busy {
		a.drop("duplicate", dg.addr, nil)
		return
	}
	defer a.inflight.Delete(key)

	lc := logger.NewLogContext("radius", addrString(dg.addr))
	lc.StartTime = dg.received
	ctx = logger.WithContext(ctx, lc)

	var out outcome
	if pkt.Code == radius.CodeStatusServer {
		out = a.handleStatusServer(ctx, pkt)
	} else {
		out, err = a.handleAccessRequest(ctx, pkt, signed)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, errUndecryptable) {
				reason = "bad_authenticator"
			}
			a.drop(reason, dg.addr, err)
			return
		}
	}

	raw, err := radiuswire.EncodeResponse(out.response, pkt.Authenticator, signed)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to encode RADIUS response", logger.Err(err))
		return
	}
	if _, err := a.writeTo(raw, dg.addr); err != nil {
		logger.DebugCtx(ctx, "Failed to send RADIUS response", logger.Err(err))
		return
	}

	if a.metrics != nil {
		a.metrics.RecordRequest(pkt.Code.String(), out.result, out.method, time.Since(dg.received))
	}
	logger.DebugCtx(ctx, "RADIUS request",
		"nas", clientName,
		logger.MessageID(int64(pkt.Identifier)),
		logger.KeyCode, pkt.Code.String(),
		logger.KeyMethod, out.method,
		logger.Result(out.result),
		logger.DurationMs(lc.DurationMs()))
}

func (a *Adapter) handleStatusServer(ctx context.Context, pkt *radius.Packet) outcome {
	_, span := telemetry.StartRADIUSSpan(ctx, telemetry.SpanRADIUSStatusServer, pkt.Identifier)
	defer span.End()

	return outcome{response: pkt.Response(radius.CodeAccessAccept), method: methodStatus, result: "accept"}
}

// handleAccessRequest authenticates an Access-Request. An error means the
// request is malformed and must be dropped.
func (a *Adapter) handleAccessRequest(ctx context.Context, pkt *radius.Packet, signed bool) (outcome, error) {
	ctx, span := telemetry.StartRADIUSSpan(ctx, telemetry.SpanRADIUSAccessRequest, pkt.Identifier)
	defer span.End()

	username, err := rfc2865.UserName_LookupString(pkt)
	if err != nil || username == "" {
		span.SetStatus(codes.Error, "missing User-Name")
		return a.reject(ctx, pkt, methodNone, errors.New("missing User-Name")), nil
	}
	span.SetAttributes(telemetry.Username(username))
	if lc := logger.FromContext(ctx); lc != nil {
		lc.User = username
	}

	presented, method, err := presentedCredential(pkt, signed)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return outcome{}, err
	}
	span.SetAttributes(telemetry.RADIUSMethod(method))
	if presented == nil {
		return a.reject(ctx, pkt, method, errors.New("no User-Password or CHAP-Password")), nil
	}

	reply, err := a.auth.Authenticate(ctx, username, presented)
	if err != nil {
		span.SetAttributes(telemetry.Result("reject"))
		return a.reject(ctx, pkt, method, err), nil
	}

	resp := pkt.Response(radius.CodeAccessAccept)
	for _, attr := range reply.Attributes {
		if err := radiuswire.AddReplyAttribute(resp, attr.Name, attr.Values...); err != nil {
			if errors.Is(err, radiuswire.ErrUnknownAttribute) {
				logger.DebugCtx(ctx, "Skipping reply attribute without RADIUS mapping", "attribute", attr.Name)
			} else {
				logger.WarnCtx(ctx, "Skipping invalid reply attribute", "attribute", attr.Name, logger.Err(err))
			}
		}
	}
	span.SetAttributes(telemetry.Result("accept"))
	logger.InfoCtx(ctx, "RADIUS access accepted", logger.KeyMethod, method)

	return outcome{response: resp, method: method, result: "accept"}, nil
}

// reject builds an Access-Reject. The Reply-Message is the same for every
// failure.
func (a *Adapter) reject(ctx context.Context, pkt *radius.Packet, method string, cause error) outcome {
	message := "Authentication failed"
	if perr := a.MapError(cause); perr != nil {
		message = perr.Message()
	}

	resp := pkt.Response(radius.CodeAccessReject)
	_ = rfc2865.ReplyMessage_SetString(resp, message)

	logger.InfoCtx(ctx, "RADIUS access rejected", logger.KeyMethod, method, logger.Err(cause))
	return outcome{response: resp, method: method, result: "reject"}
}

// presentedCredential extracts the PAP or CHAP credential of a request. A nil
// credential without error means the request carries neither.
//
// Without a Message-Authenticator nothing proves the client used the right
// shared secret, so an unsigned User-Password that decrypts to anything but
// printable text is reported as errUndecryptable.
func presentedCredential(pkt *radius.Packet, signed bool) (credential.Presented, string, error) {
	if _, ok := pkt.Attributes.Lookup(rfc2865.UserPassword_Type); ok {
		password, err := rfc2865.UserPassword_LookupString(pkt)
		if err != nil {
			return nil, methodPAP, fmt.Errorf("User-Password: %w", err)
		}
		if !signed && !printable(password) {
			return nil, methodPAP, errUndecryptable
		}
		return credential.Password(password), methodPAP, nil
	}

	if chap, ok := pkt.Attributes.Lookup(rfc2865.CHAPPassword_Type); ok {
		if len(chap) != chapPasswordLength {
			return nil, methodCHAP, fmt.Errorf("CHAP-Password has %d bytes", len(chap))
		}
		challenge, err := rfc2865.CHAPChallenge_Lookup(pkt)
		if err != nil {
			// RFC 2865 section 2.2: the Request Authenticator is the
			// challenge when CHAP-Challenge is absent.
			challenge = pkt.Authenticator[:]
		}
		return credential.CHAP{ID: chap[0], Challenge: challenge, Response: chap[1:]}, methodCHAP, nil
	}

	return nil, methodNone, nil
}

// printable reports whether s is valid UTF-8 without control characters.
func printable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsControl)
}

func (a *Adapter) writeTo(b []byte, addr net.Addr) (int, error) {
	a.connMu.RLock()
	conn := a.conn
	a.connMu.RUnlock()
	if conn == nil {
		return 0, net.ErrClosed
	}
	return conn.WriteTo(b, addr)
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.UDPAddr:
		return v.IP
	case nil:
		return nil
	default:
		host, _, err := net.SplitHostPort(v.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}
