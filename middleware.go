package ticketregistry

import (
	"net/http"

	"github.com/golang/glog"
)

// TicketGrantingCookieName is the cookie carrying the ticket-granting ticket ID.
const TicketGrantingCookieName = "TGC"

// TicketGrantingPrefix is the ID prefix of ticket-granting tickets.
const TicketGrantingPrefix = "TGT"

// AuthenticationHandler binds the request's authentication to its context
// before calling h, so a PrincipalResolver further down can find it.
//
// The authentication comes from the ticket-granting ticket named by the
// TGC cookie; tickets of any other type are ignored. A "username" form value is bound as the presented credential.
func AuthenticationHandler(registry TicketRegistry, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if username := r.FormValue("username"); username != "" {
			ctx = WithCredentials(ctx, Credential{ID: username})
		}

		if c, err := r.Cookie(TicketGrantingCookieName); err == nil && c.Value != "" {
			if glog.V(2) {
				glog.Infof("ticketregistry: handling %v request for %v with ticket-granting ticket", r.Method, r.URL)
			}

			if t, ok := registry.GetTicket(ctx, c.Value); ok {
				if a := authenticationOf(t); a != nil {
					ctx = WithAuthentication(ctx, a)
				}
			}
		}

		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authenticationOf(t Ticket) *Authentication {
	d, ok := t.(*TicketData)
	if !ok || d.Principal == "" {
		return nil
	}
	if p := d.Prefix(); p != TicketGrantingPrefix {
		glog.Warningf("ticketregistry: ignoring %v ticket %v presented as ticket-granting ticket", p, d.ID)
		return nil
	}
	return &Authentication{
		Principal: Principal{
			ID:         d.Principal,
			Attributes: d.Attributes,
		},
		AuthenticatedAt: d.Created,
	}
}
