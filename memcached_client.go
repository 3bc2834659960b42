package ticketregistry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/golang/glog"
)

// ErrNoServers is returned when a memcached client is built without servers.
var ErrNoServers = errors.New("ticketregistry: no memcached servers configured")

// maxRelativeExpiration is the largest expiration memcached reads as
// seconds from now; larger values are absolute unix timestamps.
const maxRelativeExpiration = 60 * 60 * 24 * 30

// CacheClient is the remote cache the MemcachedRegistry writes to.
//
// Add, Replace and Delete may complete asynchronously; they block until
// the store answers or ctx is done, in which case ctx.Err() is returned
// and the outcome on the server is unknown.
type CacheClient interface {
	// Add stores value only if key is absent. false means not stored.
	Add(ctx context.Context, key string, ttl int64, value []byte) (bool, error)

	// Replace stores value only if key is present. false means not stored.
	Replace(ctx context.Context, key string, ttl int64, value []byte) (bool, error)

	// Delete removes key. false means the key was not found.
	Delete(ctx context.Context, key string) (bool, error)

	// Get returns the value for key; the bool is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Shutdown releases the client's connections.
	Shutdown() error
}

// MemcachedOptions for memcached client configuration
type MemcachedOptions struct {
	Servers      []string      // host:port of every memcached server
	Timeout      time.Duration // socket read/write timeout, gomemcache default if zero
	MaxIdleConns int           // idle connections kept per server, gomemcache default if zero
}

// MemcachedClient implements CacheClient on top of gomemcache.
type MemcachedClient struct {
	mc  *memcache.Client
	now func() time.Time
}

// NewMemcachedClient creates a MemcachedClient with the provided options.
func NewMemcachedClient(options *MemcachedOptions) (*MemcachedClient, error) {
	if options == nil || len(options.Servers) == 0 {
		return nil, ErrNoServers
	}

	if glog.V(2) {
		glog.Infof("ticketregistry: new memcached client for %v", options.Servers)
	}

	mc := memcache.New(options.Servers...)
	if options.Timeout > 0 {
		mc.Timeout = options.Timeout
	}
	if options.MaxIdleConns > 0 {
		mc.MaxIdleConns = options.MaxIdleConns
	}

	return &MemcachedClient{mc: mc, now: time.Now}, nil
}

// Add implements CacheClient.
func (c *MemcachedClient) Add(ctx context.Context, key string, ttl int64, value []byte) (bool, error) {
	return c.store(ctx, c.mc.Add, key, ttl, value)
}

// Replace implements CacheClient.
func (c *MemcachedClient) Replace(ctx context.Context, key string, ttl int64, value []byte) (bool, error) {
	return c.store(ctx, c.mc.Replace, key, ttl, value)
}

func (c *MemcachedClient) store(ctx context.Context, op func(*memcache.Item) error, key string, ttl int64, value []byte) (bool, error) {
	item := &memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: c.expiration(ttl),
	}

	err := await(ctx, func() error { return op(item) })
	if errors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements CacheClient.
func (c *MemcachedClient) Delete(ctx context.Context, key string) (bool, error) {
	err := await(ctx, func() error { return c.mc.Delete(key) })
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get implements CacheClient. The read is synchronous.
func (c *MemcachedClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item, err := c.mc.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return item.Value, true, nil
}

// Ping checks that every server answers.
func (c *MemcachedClient) Ping() error {
	return c.mc.Ping()
}

// Shutdown implements CacheClient.
func (c *MemcachedClient) Shutdown() error {
	return c.mc.Close()
}

// expiration converts a TTL in seconds to memcached's expiration field.
// Absolute timestamps past 2038 are clamped to math.MaxInt32.
func (c *MemcachedClient) expiration(ttl int64) int32 {
	if ttl > maxRelativeExpiration {
		now := c.now().Unix()
		if ttl > math.MaxInt32-now {
			glog.Warningf("ticketregistry: timeout %d exceeds memcached's range, clamping expiration to %d",
				ttl, int32(math.MaxInt32))
			return math.MaxInt32
		}
		return int32(now + ttl)
	}
	if ttl < math.MinInt32 {
		return math.MinInt32
	}
	return int32(ttl)
}

// await runs op in its own goroutine and waits for it or for ctx.
// Abandoning the wait does not cancel op.
func await(ctx context.Context, op func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- op()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
