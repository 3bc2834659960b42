package ticketregistry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ticket errors
var (
	// Given ticket cannot be represented by a Codec
	ErrInvalidTicket = errors.New("ticketregistry: invalid ticket")
)

// ExpirationPolicy reports how long a ticket may live.
type ExpirationPolicy interface {
	// TimeToLive is the ticket lifetime in seconds.
	TimeToLive() int64
}

// Ticket is an authentication ticket identified by an immutable ID.
type Ticket interface {
	TicketID() string
	ExpirationPolicy() ExpirationPolicy
}

// TimeoutPolicy is a fixed time-to-live expiration policy.
type TimeoutPolicy struct {
	TTL int64 `json:"ttl"` //seconds
}

// TimeToLive implements ExpirationPolicy.
func (p TimeoutPolicy) TimeToLive() int64 { return p.TTL }

// TicketData is the serialisable ticket stored by the registries.
type TicketData struct {
	ID         string              `json:"id"`
	Principal  string              `json:"principal,omitempty"`
	Attributes map[string][]string `json:"attributes,omitempty"`
	Created    time.Time           `json:"created"`
	Policy     TimeoutPolicy       `json:"policy"`
}

// NewTicket creates a TicketData for a principal with the given TTL in seconds.
func NewTicket(id, principal string, ttl int64) *TicketData {
	return &TicketData{
		ID:        id,
		Principal: principal,
		Created:   time.Now().UTC(),
		Policy:    TimeoutPolicy{TTL: ttl},
	}
}

// TicketID implements Ticket.
func (t *TicketData) TicketID() string { return t.ID }

// ExpirationPolicy implements Ticket.
func (t *TicketData) ExpirationPolicy() ExpirationPolicy { return t.Policy }

// Prefix returns the ticket type prefix, e.g. "TGT" for "TGT-1-abc".
func (t *TicketData) Prefix() string {
	if i := strings.IndexByte(t.ID, '-'); i > 0 {
		return t.ID[:i]
	}
	return ""
}

// toTicketData returns the serialisable form of t. Only *TicketData can be
// stored without losing the principal and attributes.
func toTicketData(t Ticket) (*TicketData, error) {
	d, ok := t.(*TicketData)
	if !ok || d == nil {
		return nil, fmt.Errorf("%w: %T", ErrInvalidTicket, t)
	}
	return d, nil
}

// ticketTimeout returns the cache timeout for a ticket. A TTL of zero
// becomes 1 so the cache does not read it as "never expire".
func ticketTimeout(t Ticket) int64 {
	ttl := t.ExpirationPolicy().TimeToLive()
	if ttl == 0 {
		return 1
	}
	return ttl
}
