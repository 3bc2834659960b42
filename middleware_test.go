package ticketregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthenticationHandler(t *testing.T) {
	registry := NewMemoryRegistry()
	tgt := NewTicket("TGT-1", "casuser", 60)
	tgt.Attributes = map[string][]string{"mail": {"casuser@example.org"}}
	registry.AddTicket(context.Background(), tgt)
	st := NewTicket("ST-1", "mallory", 60)
	st.Attributes = map[string][]string{"mail": {"mallory@example.org"}}
	registry.AddTicket(context.Background(), st)

	resolver := NewPrincipalResolver(AttributePrincipalIDProvider{Attribute: "mail"})

	var got string
	h := AuthenticationHandler(registry, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = resolver.ResolveOnReturn(r.Context(), AuditPoint{Action: "SERVICE_TICKET_CREATED"}, nil)
	}))

	tests := []struct {
		name   string
		target string
		cookie string
		want   string
	}{
		{name: "ticket-granting cookie", target: "/login", cookie: "TGT-1", want: "casuser@example.org"},
		{name: "unknown ticket falls back to credential", target: "/login?username=alice", cookie: "TGT-404", want: "alice"},
		{name: "service ticket is not bound", target: "/login", cookie: "ST-1", want: UnknownUser},
		{name: "service ticket falls back to credential", target: "/login?username=alice", cookie: "ST-1", want: "alice"},
		{name: "anonymous", target: "/login", want: UnknownUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TicketGrantingCookieName, Value: tt.cookie})
			}

			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Fatalf("principal = %q, want %q", got, tt.want)
			}
		})
	}
}
