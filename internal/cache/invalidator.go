package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"customer-cqrs-service/internal/logger"
)

// Cache key layout. Listing keys carry their query string so any filtered or
// paginated listing can be purged with one pattern.
func DetailKey(userID int64) string {
	return fmt.Sprintf("customer:detail:%d", userID)
}

func RoleKey(userID int64) string {
	return fmt.Sprintf("customer:role:%d", userID)
}

func EmailKey(email string) string {
	return fmt.Sprintf("customer:email:%s", email)
}

// ListKey builds a normalized listing key: query params sorted so equivalent
// requests share an entry.
func ListKey(params map[string]string) string {
	if len(params) == 0 {
		return "customer:list:all"
	}
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k+"="+v)
		}
	}
	if len(keys) == 0 {
		return "customer:list:all"
	}
	sort.Strings(keys)
	return "customer:list:" + strings.Join(keys, "&")
}

// Invalidator purges response-cache entries obsoleted by a write. Failures
// are logged and swallowed: a stale entry self-heals at TTL expiry, so
// invalidation must never block or fail the surrounding command.
type Invalidator struct {
	cache   Cache
	timeout time.Duration
}

func NewInvalidator(cache Cache) *Invalidator {
	return &Invalidator{
		cache:   cache,
		timeout: 2 * time.Second,
	}
}

// InvalidateCustomer purges the detail and derived views of the customer and
// every listing entry, since the customer may appear in any filtered page.
func (i *Invalidator) InvalidateCustomer(ctx context.Context, userID int64) {
	patterns := []string{
		DetailKey(userID) + "*",
		RoleKey(userID) + "*",
		"customer:email:*",
		"customer:list:*",
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	// Attempt every pattern even when one fails: a transient error on the
	// detail key must not leave the listing entries stale for a full TTL.
	var total int64
	for _, pattern := range patterns {
		n, err := i.cache.DeleteByPattern(ctx, pattern)
		total += n
		if err != nil {
			logger.Log.Warn("Cache invalidation failed, relying on TTL expiry",
				zap.Int64("userID", userID),
				zap.String("pattern", pattern),
				zap.Error(err),
			)
		}
	}

	logger.Log.Debug("Invalidated cache entries",
		zap.Int64("userID", userID),
		zap.Int64("keys", total),
	)
}
