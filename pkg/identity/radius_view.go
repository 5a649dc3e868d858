package identity

import (
	"context"
	"fmt"
	"slices"

	"github.com/marmos91/concess/pkg/credential"
)

// RADIUSOptions configures the RADIUS view.
type RADIUSOptions struct {
	// GroupAttribute, when set, names a reply attribute (e.g. Class or
	// Filter-Id) that carries one value per group of the user.
	GroupAttribute string

	// RequiredGroups restricts access to members of at least one of the
	// listed groups. Empty means every authenticated user is accepted.
	RequiredGroups []string
}

// ReplyAttribute is a named reply attribute. The protocol engine maps names
// onto wire types.
type ReplyAttribute struct {
	Name   string
	Values []string
}

// Reply is the outcome of a successful RADIUS authentication.
type Reply struct {
	Username   string
	Groups     []string
	Attributes []ReplyAttribute
}

// RADIUSView exposes users as flat attribute sets.
type RADIUSView struct {
	src  Source
	opts RADIUSOptions
}

// NewRADIUSView creates the RADIUS view over src.
func NewRADIUSView(src Source, opts RADIUSOptions) *RADIUSView {
	return &RADIUSView{src: src, opts: opts}
}

// Authenticate verifies a RADIUS credential and builds the Access-Accept
// attributes.
//
// Returns ErrInvalidCredentials (wrapped with the reason) when the user is
// unknown, disabled or the credential does not verify, and ErrNotAuthorized
// when the user is outside every required group.
func (v *RADIUSView) Authenticate(_ context.Context, username string, presented credential.Presented) (*Reply, error) {
	snap := v.src.Snapshot()

	rec, ok := snap.LookupUserFold(username)
	if !ok {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	}
	if rec.Disabled {
		return nil, fmt.Errorf("%w: user disabled", ErrInvalidCredentials)
	}
	if !credential.Verify(rec.Credential, presented) {
		return nil, fmt.Errorf("%w: credential mismatch", ErrInvalidCredentials)
	}

	if len(v.opts.RequiredGroups) > 0 && !slices.ContainsFunc(v.opts.RequiredGroups, rec.HasGroup) {
		return nil, fmt.Errorf("%w: %s is not in any of %v", ErrNotAuthorized, rec.Username, v.opts.RequiredGroups)
	}

	reply := &Reply{
		Username: rec.Username,
		Groups:   slices.Clone(rec.Groups),
	}
	for _, name := range sortedKeys(rec.Attributes) {
		reply.Attributes = append(reply.Attributes, ReplyAttribute{
			Name:   name,
			Values: slices.Clone(rec.Attributes[name]),
		})
	}
	if v.opts.GroupAttribute != "" && len(rec.Groups) > 0 {
		reply.Attributes = append(reply.Attributes, ReplyAttribute{
			Name:   v.opts.GroupAttribute,
			Values: slices.Clone(rec.Groups),
		})
	}
	return reply, nil
}
