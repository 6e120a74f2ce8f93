package memory

import (
	"fmt"
	"sync"
	"time"

	"rpc-proxy/internal/config"
	domainRepo "rpc-proxy/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.FailureRepository = (*FailureRepository)(nil)

// FailureRepository implements domainRepo.FailureRepository on go-cache.
// An entry lives for the configured TTL after its first failure; repeated
// failures inside that window only bump the counter.
type FailureRepository struct {
	mu     sync.Mutex
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewFailureRepository creates a new in-memory failure tracker.
func NewFailureRepository(cfg config.FailuresConfig, logger *zap.Logger) *FailureRepository {
	ttl := cfg.GetTTL()
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cleanupInterval := cfg.GetCleanupInterval()
	if cleanupInterval <= 0 {
		cleanupInterval = 2 * ttl
	}

	logger = logger.Named("FailureStorage")
	logger.Info(
		"Initialized go-cache for upstream failures",
		zap.Duration("ttl", ttl),
		zap.Duration("cleanupInterval", cleanupInterval),
	)

	return &FailureRepository{
		cache:  cache.New(ttl, cleanupInterval),
		ttl:    ttl,
		logger: logger,
	}
}

// failureEntry keeps the expiry of the first failure so repeated failures do
// not extend the retention window.
type failureEntry struct {
	failure   domainRepo.UpstreamFailure
	expiresAt time.Time
}

// RecordFailure stores a failure and reports whether it is the first one for
// the network and protocol within the retention window.
func (r *FailureRepository) RecordFailure(network, protocol, reason string) bool {
	key := failureKey(network, protocol)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := failureEntry{
		failure:   domainRepo.UpstreamFailure{Network: network, Protocol: protocol, Reason: reason, At: now, Count: 1},
		expiresAt: now.Add(r.ttl),
	}
	if err := r.cache.Add(key, entry, r.ttl); err == nil {
		r.logger.Debug("Failure recorded", zap.String("key", key))
		return true
	}

	x, found := r.cache.Get(key)
	if !found {
		// Expired between Add and Get.
		r.cache.Set(key, entry, r.ttl)
		return true
	}
	prev, ok := x.(failureEntry)
	if !ok {
		r.logger.Warn(
			"Failure cache data type mismatch for key",
			zap.String("key", key), zap.String("type", fmt.Sprintf("%T", x)),
		)
		r.cache.Set(key, entry, r.ttl)
		return true
	}

	remaining := prev.expiresAt.Sub(now)
	if remaining <= 0 {
		r.cache.Set(key, entry, r.ttl)
		return true
	}
	entry.failure.Count = prev.failure.Count + 1
	entry.expiresAt = prev.expiresAt
	r.cache.Set(key, entry, remaining)
	return false
}

// RecentFailures returns the unexpired failures keyed by "network/protocol".
func (r *FailureRepository) RecentFailures() map[string]domainRepo.UpstreamFailure {
	items := r.cache.Items()
	out := make(map[string]domainRepo.UpstreamFailure, len(items))
	for key, item := range items {
		if entry, ok := item.Object.(failureEntry); ok {
			out[key] = entry.failure
		}
	}
	return out
}

func failureKey(network, protocol string) string {
	return network + "/" + protocol
}
