package cache

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"github.com/burnssa/superjective-extension/internal/observability"
	"github.com/burnssa/superjective-extension/internal/privacy"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ResultCache stores redaction results in Redis. Keys are an HMAC of the
// input so the cache never holds the original text, not even as a plain hash.
type ResultCache struct {
	client *redis.Client
	config config.CacheConfig
	secret []byte
	scope  string
	logger *logger.Logger
	stats  *cacheStats
	m      *observability.Metrics
}

type cacheStats struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// Entry is the cached form of a redaction result
type Entry struct {
	Result   privacy.Result `json:"result"`
	CachedAt time.Time      `json:"cached_at"`
	TTL      int64          `json:"ttl"`
}

// Stats represents cache performance statistics
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// NewResultCache connects to Redis. scope identifies the engine configuration
// (e.g. the enabled rule names) so differently configured engines never share
// entries.
func NewResultCache(cfg config.CacheConfig, scope string, log *logger.Logger, m *observability.Metrics) (*ResultCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	secret, err := keySecret(cfg.KeySecret)
	if err != nil {
		return nil, err
	}

	rc := &ResultCache{
		client: redis.NewClient(opts),
		config: cfg,
		secret: secret,
		scope:  scope,
		logger: log.WithComponent("cache"),
		stats:  &cacheStats{},
		m:      m,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.client.Ping(ctx).Err(); err != nil {
		rc.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rc.logger.Info("Result cache initialized successfully",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("default_ttl", cfg.DefaultTTL),
		zap.Bool("ephemeral_key", cfg.KeySecret == ""))

	return rc, nil
}

func keySecret(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate cache key secret: %w", err)
	}
	return secret, nil
}

// Get returns a cached result for text. Lookup errors are logged and
// reported as a miss.
func (rc *ResultCache) Get(ctx context.Context, text string) (*privacy.Result, bool) {
	key := rc.key(text)

	data, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		rc.miss()
		return nil, false
	} else if err != nil {
		rc.logger.Error("Cache lookup failed", zap.Error(err))
		rc.miss()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		rc.logger.Error("Failed to unmarshal cached result", zap.Error(err))
		rc.client.Del(ctx, key)
		rc.miss()
		return nil, false
	}

	rc.stats.hits.Add(1)
	rc.m.CacheLookup(true)
	rc.logger.Debug("Cache hit", zap.String("key", key))
	return &entry.Result, true
}

func (rc *ResultCache) miss() {
	rc.stats.misses.Add(1)
	rc.m.CacheLookup(false)
}

// Store caches result for text. Degraded results are not cached so a later
// request gets another chance at the name pass.
func (rc *ResultCache) Store(ctx context.Context, text string, result privacy.Result) error {
	if result.Degraded {
		return nil
	}
	key := rc.key(text)

	data, err := json.Marshal(Entry{
		Result:   result,
		CachedAt: time.Now(),
		TTL:      int64(rc.config.DefaultTTL.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	if err := rc.client.Set(ctx, key, data, rc.config.DefaultTTL).Err(); err != nil {
		rc.logger.Error("Failed to cache result", zap.Error(err))
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// GetStats returns cache performance statistics
func (rc *ResultCache) GetStats(ctx context.Context) (*Stats, error) {
	info, err := rc.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &Stats{
		Hits:   rc.stats.hits.Load(),
		Misses: rc.stats.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	stats.MemoryUsage = parseUsedMemory(info)

	if keys, err := rc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// Clear removes all cached results under the key prefix
func (rc *ResultCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.config.KeyPrefix+":res:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

func (rc *ResultCache) key(text string) string {
	return resultKey(rc.config.KeyPrefix, rc.secret, rc.scope, text)
}

// resultKey derives the Redis key for text under the given engine scope
func resultKey(prefix string, secret []byte, scope, text string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(scope))
	mac.Write([]byte{0})
	mac.Write([]byte(text))
	return fmt.Sprintf("%s:res:%s", prefix, hex.EncodeToString(mac.Sum(nil))[:32])
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	scheme := strings.Index(userPart, "://")
	if colon < 0 || colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
