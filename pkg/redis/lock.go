package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ReleaseIfOwner deletes key only when it still holds token. A lock that
// expired and was taken by another owner is left alone.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, token string) (bool, error) {
	current, err := c.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	case current != token:
		return false, nil
	}
	return true, c.store.Del(ctx, key).Err()
}
