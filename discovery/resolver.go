package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
)

// Resolver cache windows. Positive answers are reusable for minutes;
// negative answers expire quickly so a late-starting provider is picked up.
const (
	DefaultPositiveTTL = 5 * time.Minute
	DefaultNegativeTTL = 10 * time.Second
)

// CapabilitySlot is the FACT slot the registry answers queries with.
const CapabilitySlot = "capability.providers"

// Requester performs one request/reply exchange with another agent.
// Satisfied by the agent runtime.
type Requester interface {
	Request(ctx context.Context, to string, env *acl.Envelope) (*acl.Envelope, error)
}

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	RegistryAddr string              `yaml:"registry_addr" json:"registry_addr"`
	PositiveTTL  time.Duration       `yaml:"positive_ttl" json:"positive_ttl"`
	NegativeTTL  time.Duration       `yaml:"negative_ttl" json:"negative_ttl"`
	Static       map[string][]string `yaml:"static" json:"static"`
}

type cacheEntry struct {
	providers []string
	expiresAt time.Time
}

func (e cacheEntry) fresh(now time.Time) bool { return now.Before(e.expiresAt) }

// Resolver answers "who provides this capability key" with a two-level
// cache: a local map in front of an optional shared Redis tier. When the
// registry is unreachable a stale local answer is preferred over the static
// fallback table.
type Resolver struct {
	requester Requester
	rdb       *redis.Client
	cfg       ResolverConfig
	logger    *zap.Logger

	mu    sync.Mutex
	local map[string]cacheEntry

	now func() time.Time
}

// NewResolver builds a resolver. rdb may be nil to run without the shared
// cache tier.
func NewResolver(requester Requester, rdb *redis.Client, cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if cfg.PositiveTTL <= 0 {
		cfg.PositiveTTL = DefaultPositiveTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultNegativeTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		requester: requester,
		rdb:       rdb,
		cfg:       cfg,
		logger:    logger,
		local:     make(map[string]cacheEntry),
		now:       time.Now,
	}
}

// Resolve returns the providers of one capability key. The answer may be
// empty: a cached negative result is an answer, not an error.
func (r *Resolver) Resolve(ctx context.Context, key string) ([]string, error) {
	now := r.now()

	r.mu.Lock()
	entry, cached := r.local[key]
	r.mu.Unlock()
	if cached && entry.fresh(now) {
		return entry.providers, nil
	}

	if providers, ok := r.redisGet(ctx, key); ok {
		r.store(key, providers, now)
		return providers, nil
	}

	providers, err := r.query(ctx, key)
	if err != nil {
		if cached {
			r.logger.Warn("registry unreachable, serving stale providers",
				zap.String("key", key), zap.Error(err))
			return entry.providers, nil
		}
		if static, ok := r.cfg.Static[key]; ok {
			r.logger.Warn("registry unreachable, serving static fallback",
				zap.String("key", key), zap.Error(err))
			return static, nil
		}
		// Negative-cache the failure so retries within the window answer
		// immediately instead of waiting out the query deadline again.
		r.store(key, nil, now)
		return nil, err
	}

	r.store(key, providers, now)
	r.redisSet(ctx, key, providers)
	return providers, nil
}

// query performs the REQUEST/ASK ["CAPABILITY", key] exchange and extracts
// the providers for key from the FACT reply.
func (r *Resolver) query(ctx context.Context, key string) ([]string, error) {
	conv := "cap-" + uuid.NewString()
	ask, err := acl.NewAsk(conv, []string{acl.TypeCapability, key}, acl.WithOntology("system"))
	if err != nil {
		return nil, err
	}
	reply, err := r.requester.Request(ctx, r.cfg.RegistryAddr, ask)
	if err != nil {
		return nil, fmt.Errorf("discovery: capability query: %w", err)
	}
	fact, ok := reply.Payload.(acl.FactPayload)
	if !ok || fact.Slot != CapabilitySlot {
		return nil, fmt.Errorf("discovery: unexpected reply %s/%s", reply.Performative, reply.PayloadType())
	}
	table, ok := fact.Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("discovery: malformed providers table")
	}
	raw, ok := table[key].([]any)
	if !ok {
		return []string{}, nil
	}
	providers := make([]string, 0, len(raw))
	for _, p := range raw {
		if s, ok := p.(string); ok {
			providers = append(providers, s)
		}
	}
	return providers, nil
}

func (r *Resolver) store(key string, providers []string, now time.Time) {
	ttl := r.cfg.PositiveTTL
	if len(providers) == 0 {
		ttl = r.cfg.NegativeTTL
	}
	r.mu.Lock()
	r.local[key] = cacheEntry{providers: providers, expiresAt: now.Add(ttl)}
	r.mu.Unlock()
}

func (r *Resolver) redisKey(key string) string { return "voyagent:cap:" + key }

func (r *Resolver) redisGet(ctx context.Context, key string) ([]string, bool) {
	if r.rdb == nil {
		return nil, false
	}
	data, err := r.rdb.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var providers []string
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, false
	}
	return providers, true
}

func (r *Resolver) redisSet(ctx context.Context, key string, providers []string) {
	if r.rdb == nil || len(providers) == 0 {
		return
	}
	data, err := json.Marshal(providers)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, r.redisKey(key), data, r.cfg.PositiveTTL).Err(); err != nil {
		r.logger.Debug("shared capability cache write failed", zap.Error(err))
	}
}
