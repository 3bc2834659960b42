package ticketregistry

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// memoryEntry is a ticket with the time it stops being visible.
type memoryEntry struct {
	ticket    Ticket
	expiresAt time.Time
}

func (e memoryEntry) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryRegistry implements the TicketRegistry interface storing tickets in memory.
// Expired tickets are invisible until Evict drops them.
type MemoryRegistry struct {
	mu    sync.RWMutex
	store map[string]memoryEntry
	now   func() time.Time
}

var _ TicketRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		store: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (s *MemoryRegistry) entry(t Ticket) memoryEntry {
	return memoryEntry{
		ticket:    t,
		expiresAt: s.now().Add(time.Duration(ticketTimeout(t)) * time.Second),
	}
}

// AddTicket stores the ticket unless a live ticket with its ID exists.
func (s *MemoryRegistry) AddTicket(ctx context.Context, t Ticket) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := t.TicketID()
	if e, ok := s.store[id]; ok && !e.isExpired(s.now()) {
		glog.Errorf("ticketregistry: failed to add %v: ticket exists", id)
		return OutcomeFailure
	}

	s.store[id] = s.entry(t)
	return OutcomeSuccess
}

// UpdateTicket replaces a live ticket.
func (s *MemoryRegistry) UpdateTicket(ctx context.Context, t Ticket) (Ticket, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := t.TicketID()
	if e, ok := s.store[id]; !ok || e.isExpired(s.now()) {
		glog.Errorf("ticketregistry: failed to update %v", id)
		return nil, OutcomeFailure
	}

	s.store[id] = s.entry(t)
	return t, OutcomeSuccess
}

// GetTicket returns the live ticket stored under id.
func (s *MemoryRegistry) GetTicket(ctx context.Context, id string) (Ticket, bool) {
	s.mu.RLock()
	e, ok := s.store[id]
	s.mu.RUnlock()

	if !ok || e.isExpired(s.now()) {
		return nil, false
	}
	return e.ticket, true
}

// DeleteSingleTicket removes the ticket for id
func (s *MemoryRegistry) DeleteSingleTicket(ctx context.Context, id string) bool {
	s.mu.Lock()
	delete(s.store, id)
	s.mu.Unlock()
	return true
}

// DeleteAll removes all tickets and returns how many were live.
func (s *MemoryRegistry) DeleteAll(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := s.now()
	for _, e := range s.store {
		if !e.isExpired(now) {
			n++
		}
	}

	s.store = make(map[string]memoryEntry)
	return n
}

// GetTickets returns every live ticket.
func (s *MemoryRegistry) GetTickets(ctx context.Context) []Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	tickets := make([]Ticket, 0, len(s.store))
	for _, e := range s.store {
		if !e.isExpired(now) {
			tickets = append(tickets, e.ticket)
		}
	}
	return tickets
}

// Evict drops expired tickets and returns how many were dropped.
func (s *MemoryRegistry) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted int
	now := s.now()
	for k, e := range s.store {
		if e.isExpired(now) {
			delete(s.store, k)
			evicted++
		}
	}

	if glog.V(2) {
		glog.Infof("ticketregistry: evicted %d expired tickets", evicted)
	}
	return evicted
}

// Shutdown clears the registry.
func (s *MemoryRegistry) Shutdown() error {
	s.mu.Lock()
	s.store = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *MemoryRegistry) Ping(ctx context.Context) error {
	return nil
}
