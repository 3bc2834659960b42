package ticketregistry

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// UnknownUser is recorded when no principal can be resolved.
const UnknownUser = "audit:unknown"

// AuditPoint names the audited operation.
type AuditPoint struct {
	Action   string
	Resource string
}

func (p AuditPoint) String() string {
	if p.Resource == "" {
		return p.Action
	}
	return fmt.Sprintf("%s(%s)", p.Action, p.Resource)
}

// PrincipalIDProvider extracts the audit principal ID from an authentication.
type PrincipalIDProvider interface {
	PrincipalIDFrom(a *Authentication) (string, bool)
}

// DefaultPrincipalIDProvider uses the principal ID.
type DefaultPrincipalIDProvider struct{}

// PrincipalIDFrom implements PrincipalIDProvider.
func (DefaultPrincipalIDProvider) PrincipalIDFrom(a *Authentication) (string, bool) {
	if a == nil || a.Principal.ID == "" {
		return "", false
	}
	return a.Principal.ID, true
}

// AttributePrincipalIDProvider uses the first value of a principal
// attribute, falling back to the principal ID.
type AttributePrincipalIDProvider struct {
	Attribute string
}

// PrincipalIDFrom implements PrincipalIDProvider.
func (p AttributePrincipalIDProvider) PrincipalIDFrom(a *Authentication) (string, bool) {
	if a == nil {
		return "", false
	}
	if values := a.Principal.Attributes[p.Attribute]; len(values) > 0 && values[0] != "" {
		return values[0], true
	}
	return DefaultPrincipalIDProvider{}.PrincipalIDFrom(a)
}

// PrincipalResolver resolves the principal recorded in audit entries from
// the authentication bound to the request context.
type PrincipalResolver struct {
	provider PrincipalIDProvider
}

// NewPrincipalResolver creates a PrincipalResolver. If provider is nil a
// DefaultPrincipalIDProvider is used.
func NewPrincipalResolver(provider PrincipalIDProvider) *PrincipalResolver {
	if provider == nil {
		provider = DefaultPrincipalIDProvider{}
	}
	return &PrincipalResolver{provider: provider}
}

// ResolveOnReturn resolves the principal for an operation that returned.
func (r *PrincipalResolver) ResolveOnReturn(ctx context.Context, point AuditPoint, returnValue interface{}) string {
	if glog.V(2) {
		glog.Infof("ticketregistry: resolving principal at audit point %v", point)
	}
	return r.currentPrincipal(ctx)
}

// ResolveOnException resolves the principal for an operation that failed.
func (r *PrincipalResolver) ResolveOnException(ctx context.Context, point AuditPoint, err error) string {
	if glog.V(2) {
		glog.Infof("ticketregistry: resolving principal at audit point %v with error %v", point, err)
	}
	return r.currentPrincipal(ctx)
}

// ResolveDefault is used when there is no audit point.
func (r *PrincipalResolver) ResolveDefault() string {
	return UnknownUser
}

func (r *PrincipalResolver) currentPrincipal(ctx context.Context) string {
	if id, ok := r.provider.PrincipalIDFrom(AuthenticationFromContext(ctx)); ok {
		return id
	}
	if ids, ok := CredentialIDsFromContext(ctx); ok {
		return ids
	}
	return UnknownUser
}
