package ticketregistry

import (
	"context"

	"github.com/golang/glog"
)

//Options for registry configuration
type Options struct {
	Client CacheClient // Remote cache holding the tickets; operations panic if nil
	Codec  Codec       // Ticket serialisation, if nil a JSONCodec will be used
	Cipher *Cipher     // Ticket id/body encoding, if nil tickets are stored as-is
}

// MemcachedRegistry stores tickets in memcached keyed on the ticket ID.
//
// memcached cannot enumerate keys, so DeleteAll and GetTickets are not
// supported and return empty results.
type MemcachedRegistry struct {
	client CacheClient
	codec  Codec
	cipher *Cipher
}

var _ TicketRegistry = (*MemcachedRegistry)(nil)

// NewMemcachedRegistry creates a MemcachedRegistry with the provided Options.
func NewMemcachedRegistry(options *Options) *MemcachedRegistry {
	if options == nil {
		options = &Options{}
	}

	var codec Codec
	if options.Codec != nil {
		codec = options.Codec
	} else {
		codec = JSONCodec{}
	}

	return &MemcachedRegistry{
		client: options.Client,
		codec:  codec,
		cipher: options.Cipher,
	}
}

// mustClient panics when the registry was built without a client; that
// is a wiring mistake, not a runtime fault.
func (r *MemcachedRegistry) mustClient() {
	if r.client == nil {
		panic("ticketregistry: no memcached client is defined")
	}
}

// AddTicket stores the ticket if no ticket with its ID exists.
func (r *MemcachedRegistry) AddTicket(ctx context.Context, t Ticket) Outcome {
	r.mustClient()

	id := t.TicketID()
	if glog.V(2) {
		glog.Infof("ticketregistry: adding ticket %v", id)
	}

	key, value, err := r.encode(t)
	if err != nil {
		glog.Errorf("ticketregistry: failed adding %v: %v", id, err)
		return OutcomeFailure
	}

	timeout := ticketTimeout(t)
	added, err := r.client.Add(ctx, key, timeout, value)
	if err != nil {
		if interrupted(err) {
			glog.Warningf("ticketregistry: interrupted while waiting for response to add of ticket %v. "+
				"Cannot determine whether add was successful.", id)
			return OutcomeUnknown
		}
		glog.Errorf("ticketregistry: failed adding %v: %v", id, err)
		return OutcomeFailure
	}

	outcome := OutcomeSuccess
	if !added {
		glog.Errorf("ticketregistry: failed to add %v with timeout %v", id, timeout)
		outcome = OutcomeFailure
	}

	// Sanity check that the ticket can be read back
	_, found, err := r.client.Get(ctx, key)
	if err != nil {
		glog.Errorf("ticketregistry: failed reading back %v: %v", id, err)
		return outcome
	}
	if !found {
		glog.Warningf("ticketregistry: ticket %v was added with timeout %v, yet it cannot be retrieved. "+
			"Ticket expiration policy may be too aggressive?", id, timeout)
	}

	return outcome
}

// UpdateTicket replaces the stored ticket with t.
//
// A nil ticket is returned only when memcached rejected the replace. When
// the wait was abandoned or the client errored, t is returned with
// OutcomeUnknown.
func (r *MemcachedRegistry) UpdateTicket(ctx context.Context, t Ticket) (Ticket, Outcome) {
	r.mustClient()

	id := t.TicketID()
	if glog.V(2) {
		glog.Infof("ticketregistry: updating ticket %v", id)
	}

	key, value, err := r.encode(t)
	if err != nil {
		glog.Errorf("ticketregistry: failed encoding %v: %v", id, err)
		return nil, OutcomeFailure
	}

	replaced, err := r.client.Replace(ctx, key, ticketTimeout(t), value)
	switch {
	case err != nil && interrupted(err):
		glog.Warningf("ticketregistry: interrupted while waiting for response to replace of ticket %v. "+
			"Cannot determine whether update was successful.", id)
		return t, OutcomeUnknown
	case err != nil:
		glog.Errorf("ticketregistry: failed updating %v: %v", id, err)
		return t, OutcomeUnknown
	case !replaced:
		glog.Errorf("ticketregistry: failed to update %v", id)
		return nil, OutcomeFailure
	}

	return t, OutcomeSuccess
}

// GetTicket returns the ticket stored under id.
func (r *MemcachedRegistry) GetTicket(ctx context.Context, id string) (Ticket, bool) {
	r.mustClient()

	key := r.cipher.EncodeID(id)
	value, found, err := r.client.Get(ctx, key)
	if err != nil {
		glog.Errorf("ticketregistry: failed fetching %v: %v", key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	t, err := r.decode(key, value)
	if err != nil {
		glog.Errorf("ticketregistry: failed decoding %v: %v", key, err)
		return nil, false
	}

	return t, true
}

// DeleteSingleTicket removes the ticket. It reports true whether or not
// the ticket existed.
func (r *MemcachedRegistry) DeleteSingleTicket(ctx context.Context, id string) bool {
	r.mustClient()

	removed, err := r.client.Delete(ctx, r.cipher.EncodeID(id))
	switch {
	case err != nil:
		glog.Errorf("ticketregistry: ticket not found or is already removed. Failed deleting %v: %v", id, err)
	case removed:
		if glog.V(2) {
			glog.Infof("ticketregistry: removed ticket %v from the cache", id)
		}
	default:
		glog.Infof("ticketregistry: ticket %v not found or is already removed", id)
	}

	return true
}

// DeleteAll is not supported by memcached and always returns 0.
func (r *MemcachedRegistry) DeleteAll(ctx context.Context) int64 {
	glog.Infof("ticketregistry: DeleteAll isn't supported by memcached. Returning 0")
	return 0
}

// GetTickets is not supported by memcached and always returns an empty slice.
func (r *MemcachedRegistry) GetTickets(ctx context.Context) []Ticket {
	glog.Infof("ticketregistry: GetTickets isn't supported by memcached. Returning empty list")
	return []Ticket{}
}

// Shutdown shuts the memcached client down. Call it once.
func (r *MemcachedRegistry) Shutdown() error {
	if r.client == nil {
		return nil
	}
	return r.client.Shutdown()
}

func (r *MemcachedRegistry) encode(t Ticket) (string, []byte, error) {
	key := r.cipher.EncodeID(t.TicketID())

	data, err := r.codec.Marshal(t)
	if err != nil {
		return key, nil, err
	}

	sealed, err := r.cipher.Seal(key, data)
	if err != nil {
		return key, nil, err
	}

	return key, sealed, nil
}

func (r *MemcachedRegistry) decode(key string, value []byte) (Ticket, error) {
	data, err := r.cipher.Open(key, value)
	if err != nil {
		return nil, err
	}
	return r.codec.Unmarshal(data)
}

// Ping checks that the memcached servers answer.
func (r *MemcachedRegistry) Ping(ctx context.Context) error {
	r.mustClient()

	if p, ok := r.client.(interface{ Ping() error }); ok {
		return await(ctx, p.Ping)
	}
	return nil
}
