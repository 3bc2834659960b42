package ticketregistry

import (
	"context"
	"errors"
)

// Outcome reports what a registry write is known to have done.
type Outcome int

const (
	// OutcomeSuccess means the store confirmed the operation.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the store rejected the operation or it errored.
	OutcomeFailure
	// OutcomeUnknown means the wait for the store was abandoned; the
	// operation may still complete server-side.
	OutcomeUnknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeUnknown:
		return "unknown"
	}
	return "invalid"
}

// TicketRegistry provides an interface for storing and retrieving tickets.
//
// Implementations never return transport errors to the caller: failures
// are logged and reported through the return values.
type TicketRegistry interface {
	// AddTicket stores a ticket that is not yet in the registry.
	AddTicket(ctx context.Context, t Ticket) Outcome

	// UpdateTicket replaces an existing ticket. A nil ticket is returned
	// when the registry rejected the update.
	UpdateTicket(ctx context.Context, t Ticket) (Ticket, Outcome)

	// GetTicket returns the ticket stored under id.
	GetTicket(ctx context.Context, id string) (Ticket, bool)

	// DeleteSingleTicket removes a ticket. Absence counts as deleted.
	DeleteSingleTicket(ctx context.Context, id string) bool

	// DeleteAll removes every ticket and returns how many were removed.
	DeleteAll(ctx context.Context) int64

	// GetTickets returns every live ticket.
	GetTickets(ctx context.Context) []Ticket

	// Shutdown releases the registry's resources.
	Shutdown() error
}

// interrupted reports whether err came from abandoning a wait.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
