package redis

import (
	"strconv"
	"strings"
	"time"
)

const keyNamespace = "op"

const (
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
)

// IdempotencyKey namespaces a replay entry, e.g. op:idempotency:<scope>:<key>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

// RateLimitKey namespaces a rate limit counter for scope.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

// windowKey pins a counter to the fixed window containing at, so each window
// starts from zero even if an EXPIRE was lost.
func windowKey(scope string, window time.Duration, at time.Time) string {
	bucket := at.Unix()
	if secs := int64(window / time.Second); secs > 0 {
		bucket -= bucket % secs
	}
	return buildKey(rateLimitPrefix, scope, strconv.FormatInt(bucket, 10))
}

// LockKey namespaces a distributed job lock.
func (c *Client) LockKey(name string) string {
	return buildKey(lockPrefix, name)
}

func buildKey(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
