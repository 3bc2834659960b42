package ticketregistry

import (
	"context"
	"strings"
	"time"
)

// Principal is the authenticated actor.
type Principal struct {
	ID         string
	Attributes map[string][]string
}

// Credential identifies what the actor presented, e.g. a username.
type Credential struct {
	ID string
}

// Authentication is the result of a successful login.
type Authentication struct {
	Principal       Principal
	Credentials     []Credential
	AuthenticatedAt time.Time
}

type authenticationKey struct{}

type credentialsKey struct{}

// WithAuthentication binds a to the request carried by ctx.
func WithAuthentication(ctx context.Context, a *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey{}, a)
}

// AuthenticationFromContext returns the bound authentication, or nil.
func AuthenticationFromContext(ctx context.Context) *Authentication {
	a, _ := ctx.Value(authenticationKey{}).(*Authentication)
	return a
}

// WithCredentials binds the credentials presented on this request. They
// are known before authentication succeeds, so failed attempts can still
// be attributed.
func WithCredentials(ctx context.Context, creds ...Credential) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialIDsFromContext returns the bound credential IDs joined with
// ", ". The bool is false when no credential has an ID.
func CredentialIDsFromContext(ctx context.Context) (string, bool) {
	creds, _ := ctx.Value(credentialsKey{}).([]Credential)

	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}

	if len(ids) == 0 {
		return "", false
	}
	return strings.Join(ids, ", "), true
}
